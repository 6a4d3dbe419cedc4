package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PurposeAmbiguityHighlight tags excerpts shown with moments of ambiguity.
const PurposeAmbiguityHighlight = "ambiguity_highlight"

// Report is the single live report of an upload.
type Report struct {
	ID               uuid.UUID `json:"id"`
	UploadID         uuid.UUID `json:"upload_id"`
	Engine           string    `json:"engine"`
	ReportJSON       []byte    `json:"-"`
	MixedSignalIndex float64   `json:"mixed_signal_index"`
	Confidence       float64   `json:"confidence"`
	SummaryText      string    `json:"summary_text"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Excerpt is encrypted message text stored apart from the report JSON.
type Excerpt struct {
	MessageID     uuid.UUID
	Purpose       string
	EncryptedText string
}

// ReportWrite is everything persisted when an analysis succeeds.
type ReportWrite struct {
	UploadID         uuid.UUID
	JobID            uuid.UUID // optional
	Engine           string
	ReportJSON       []byte
	MixedSignalIndex float64
	Confidence       float64
	SummaryText      string
	Excerpts         []Excerpt
	RetentionUntil   time.Time
}

// SaveReport upserts the upload's report, replaces its excerpts, marks the
// upload analyzed and the job succeeded, all in one transaction.
func (s *Store) SaveReport(ctx context.Context, w ReportWrite) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO reports (id, upload_id, engine, report_json, mixed_signal_index, confidence, summary_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (upload_id)
		DO UPDATE SET
			engine = $3,
			report_json = $4,
			mixed_signal_index = $5,
			confidence = $6,
			summary_text = $7,
			updated_at = now()`,
		uuid.New(), w.UploadID, w.Engine, w.ReportJSON, w.MixedSignalIndex, w.Confidence, w.SummaryText,
	)
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM excerpts WHERE upload_id = $1`, w.UploadID); err != nil {
		return fmt.Errorf("clear excerpts: %w", err)
	}
	if len(w.Excerpts) > 0 {
		rows := make([][]any, len(w.Excerpts))
		for i, e := range w.Excerpts {
			rows[i] = []any{uuid.New(), w.UploadID, e.MessageID, e.Purpose, e.EncryptedText}
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"excerpts"},
			[]string{"id", "upload_id", "message_id", "purpose", "encrypted_excerpt"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy excerpts: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE uploads SET status = $1, retention_until = $2, updated_at = now()
		WHERE id = $3`,
		UploadAnalyzed, w.RetentionUntil, w.UploadID,
	)
	if err != nil {
		return fmt.Errorf("mark upload analyzed: %w", err)
	}

	if w.JobID != uuid.Nil {
		_, err = tx.Exec(ctx, `
			UPDATE jobs SET status = $1, progress = 100, error = NULL, updated_at = now()
			WHERE id = $2`,
			JobSucceeded, w.JobID,
		)
		if err != nil {
			return fmt.Errorf("mark job succeeded: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetReport fetches the report for an upload.
func (s *Store) GetReport(ctx context.Context, uploadID uuid.UUID) (*Report, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, upload_id, engine, report_json, mixed_signal_index, confidence, summary_text, created_at, updated_at
		FROM reports WHERE upload_id = $1`, uploadID)

	var r Report
	err := row.Scan(&r.ID, &r.UploadID, &r.Engine, &r.ReportJSON, &r.MixedSignalIndex, &r.Confidence, &r.SummaryText, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "report")
	}
	return &r, nil
}

// ListExcerpts returns an upload's excerpts for a purpose keyed by message ID.
func (s *Store) ListExcerpts(ctx context.Context, uploadID uuid.UUID, purpose string) (map[uuid.UUID]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT message_id, encrypted_excerpt
		FROM excerpts WHERE upload_id = $1 AND purpose = $2`, uploadID, purpose)
	if err != nil {
		return nil, fmt.Errorf("query excerpts: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]string)
	for rows.Next() {
		var id uuid.UUID
		var text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan excerpt: %w", err)
		}
		out[id] = text
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate excerpts: %w", err)
	}
	return out, nil
}
