//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_UploadReportLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

	uploadID, err := s.CreateUpload(ctx, NewUpload{
		Platform:       "generic",
		Timezone:       "UTC",
		FilePath:       "/tmp/none.json",
		RetentionUntil: time.Now().Add(time.Hour),
		ParsingSummary: map[string]any{"parser": "generic_json"},
		Participants:   []string{"A"},
		Messages: []NewMessage{
			{Timestamp: base.Add(time.Hour), Sender: "B", EncryptedText: "c2"},
			{Timestamp: base, Sender: "A", EncryptedText: "c1"},
			{Timestamp: base, Sender: "B", EncryptedText: "c1b"},
		},
	})
	if err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteUpload(context.Background(), uploadID) })

	msgs, err := s.ListMessages(ctx, uploadID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].EncryptedText != "c1" || msgs[1].EncryptedText != "c1b" || msgs[2].EncryptedText != "c2" {
		t.Errorf("unexpected order: %q %q %q", msgs[0].EncryptedText, msgs[1].EncryptedText, msgs[2].EncryptedText)
	}
	if msgs[2].SenderName != "B" {
		t.Errorf("expected sender B, got %q", msgs[2].SenderName)
	}

	job, err := s.CreateJob(ctx, uploadID)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.Status != JobQueued {
		t.Errorf("expected queued job, got %q", job.Status)
	}

	for i := 0; i < 2; i++ {
		err = s.SaveReport(ctx, ReportWrite{
			UploadID:         uploadID,
			JobID:            job.ID,
			Engine:           "heuristic",
			ReportJSON:       []byte(`{"summary_text":"ok"}`),
			MixedSignalIndex: float64(10 * (i + 1)),
			Confidence:       0.5,
			SummaryText:      "ok",
			Excerpts:         []Excerpt{{MessageID: msgs[0].ID, Purpose: PurposeAmbiguityHighlight, EncryptedText: "x"}},
			RetentionUntil:   time.Now().Add(48 * time.Hour),
		})
		if err != nil {
			t.Fatalf("SaveReport #%d failed: %v", i, err)
		}
	}

	report, err := s.GetReport(ctx, uploadID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if report.MixedSignalIndex != 20 {
		t.Errorf("expected overwritten index 20, got %f", report.MixedSignalIndex)
	}

	excerpts, err := s.ListExcerpts(ctx, uploadID, PurposeAmbiguityHighlight)
	if err != nil {
		t.Fatalf("ListExcerpts failed: %v", err)
	}
	if len(excerpts) != 1 || excerpts[msgs[0].ID] != "x" {
		t.Errorf("unexpected excerpts: %v", excerpts)
	}

	job, err = s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != JobSucceeded || job.Progress != 100 {
		t.Errorf("expected succeeded job at 100, got %s/%d", job.Status, job.Progress)
	}

	upload, err := s.GetUpload(ctx, uploadID)
	if err != nil {
		t.Fatalf("GetUpload failed: %v", err)
	}
	if upload.Status != UploadAnalyzed {
		t.Errorf("expected analyzed upload, got %q", upload.Status)
	}
}

func TestIntegration_NotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.GetUpload(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetJob(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteUpload(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIntegration_ExpiredUploads(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUpload(ctx, NewUpload{
		Platform:       "generic",
		Timezone:       "UTC",
		RetentionUntil: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteUpload(context.Background(), id) })

	expired, err := s.ExpiredUploads(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpiredUploads failed: %v", err)
	}
	found := false
	for _, u := range expired {
		if u.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("expected upload to be reported as expired")
	}
}
