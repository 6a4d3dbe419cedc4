package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Job tracks one analysis request for an upload.
type Job struct {
	ID        uuid.UUID `json:"id"`
	UploadID  uuid.UUID `json:"upload_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateJob queues a new analysis job for an upload.
func (s *Store) CreateJob(ctx context.Context, uploadID uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, upload_id, status, progress)
		VALUES ($1, $2, $3, 0)
		RETURNING id, upload_id, status, progress, coalesce(error, ''), created_at, updated_at`,
		uuid.New(), uploadID, JobQueued,
	)
	var j Job
	if err := row.Scan(&j.ID, &j.UploadID, &j.Status, &j.Progress, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return &j, nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, upload_id, status, progress, coalesce(error, ''), created_at, updated_at
		FROM jobs WHERE id = $1`, id)

	var j Job
	if err := row.Scan(&j.ID, &j.UploadID, &j.Status, &j.Progress, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, notFound(err, "job")
	}
	return &j, nil
}

// UpdateJob sets a job's status, progress and error message.
func (s *Store) UpdateJob(ctx context.Context, id uuid.UUID, status string, progress int, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $1, progress = $2, error = nullif($3, ''), updated_at = now()
		WHERE id = $4`,
		status, progress, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job: %w", ErrNotFound)
	}
	return nil
}
