// Package retention deletes uploads whose retention window has passed.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/mixsig/internal/store"
)

// Store lists and deletes expired uploads. Deleting an upload cascades to
// its messages, jobs, report and excerpts.
type Store interface {
	ExpiredUploads(ctx context.Context, now time.Time) ([]store.Upload, error)
	DeleteUpload(ctx context.Context, id uuid.UUID) error
}

// FileRemover deletes a stored raw export.
type FileRemover interface {
	Delete(path string) error
}

type Sweeper struct {
	store    Store
	files    FileRemover
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(s Store, files FileRemover, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: s, files: files, interval: interval, logger: logger, now: time.Now}
}

// SweepOnce deletes every expired upload and its file, returning how many
// uploads were removed. A failure on one upload does not stop the pass.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	expired, err := s.store.ExpiredUploads(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired uploads: %w", err)
	}

	deleted := 0
	var errs []error
	for _, u := range expired {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.files.Delete(u.FilePath); err != nil {
			s.logger.Warn("failed to delete upload file", "upload_id", u.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := s.store.DeleteUpload(ctx, u.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to delete upload", "upload_id", u.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	if deleted > 0 || len(errs) > 0 {
		s.logger.Info("retention sweep", "expired", len(expired), "deleted", deleted, "failed", len(errs))
	}
	return deleted, errors.Join(errs...)
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("retention sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("retention sweep failed", "error", err)
			}
		}
	}
}
