package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/mixsig/internal/store"
)

type fakeStore struct {
	uploads   []store.Upload
	listErr   error
	deleteErr map[uuid.UUID]error
	deleted   []uuid.UUID
	asOf      time.Time
}

func (f *fakeStore) ExpiredUploads(_ context.Context, now time.Time) ([]store.Upload, error) {
	f.asOf = now
	return f.uploads, f.listErr
}

func (f *fakeStore) DeleteUpload(_ context.Context, id uuid.UUID) error {
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeFiles struct {
	removed []string
	fail    map[string]bool
}

func (f *fakeFiles) Delete(path string) error {
	if f.fail[path] {
		return errors.New("permission denied")
	}
	f.removed = append(f.removed, path)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepOnce(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	fs := &fakeStore{uploads: []store.Upload{
		{ID: a, FilePath: "/data/a.txt"},
		{ID: b, FilePath: "/data/b.json"},
	}}
	files := &fakeFiles{}
	s := NewSweeper(fs, files, time.Minute, testLogger())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if !fs.asOf.Equal(now) {
		t.Errorf("expected sweep as of %v, got %v", now, fs.asOf)
	}
	if len(files.removed) != 2 || files.removed[0] != "/data/a.txt" {
		t.Errorf("unexpected removed files: %v", files.removed)
	}
	if len(fs.deleted) != 2 || fs.deleted[0] != a || fs.deleted[1] != b {
		t.Errorf("unexpected deleted uploads: %v", fs.deleted)
	}
}

func TestSweepOnce_ContinuesPastFailures(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	fs := &fakeStore{
		uploads: []store.Upload{
			{ID: a, FilePath: "/data/a.txt"},
			{ID: b, FilePath: "/data/b.txt"},
			{ID: c, FilePath: "/data/c.txt"},
		},
		deleteErr: map[uuid.UUID]error{c: store.ErrNotFound},
	}
	files := &fakeFiles{fail: map[string]bool{"/data/a.txt": true}}
	s := NewSweeper(fs, files, time.Minute, testLogger())

	n, err := s.SweepOnce(context.Background())
	if err == nil {
		t.Fatal("expected error for the failed file delete")
	}
	// c vanished concurrently; not-found still counts as swept.
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if len(fs.deleted) != 1 || fs.deleted[0] != b {
		t.Errorf("expected only b deleted from store, got %v", fs.deleted)
	}
}

func TestSweepOnce_ListError(t *testing.T) {
	fs := &fakeStore{listErr: errors.New("db down")}
	s := NewSweeper(fs, &fakeFiles{}, time.Minute, testLogger())

	if _, err := s.SweepOnce(context.Background()); err == nil {
		t.Error("expected list error")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	fs := &fakeStore{}
	s := NewSweeper(fs, &fakeFiles{}, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil on cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
