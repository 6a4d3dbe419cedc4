package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Upload statuses.
const (
	UploadParsed   = "parsed"
	UploadAnalyzed = "analyzed"
)

// Upload is one stored chat export.
type Upload struct {
	ID             uuid.UUID      `json:"id"`
	Platform       string         `json:"platform"`
	Timezone       string         `json:"timezone"`
	Status         string         `json:"status"`
	FilePath       string         `json:"-"`
	RetentionUntil time.Time      `json:"retention_until"`
	ParsingSummary map[string]any `json:"parsing_summary"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewUpload is a parsed export ready to persist. Message text must already
// be encrypted.
type NewUpload struct {
	Platform       string
	Timezone       string
	FilePath       string
	RetentionUntil time.Time
	ParsingSummary map[string]any
	Participants   []string
	Messages       []NewMessage
}

// NewMessage is one message of a NewUpload.
type NewMessage struct {
	Timestamp     time.Time
	Sender        string
	EncryptedText string
}

// MessageRow is a stored message joined with its sender.
type MessageRow struct {
	ID            uuid.UUID
	Timestamp     time.Time
	SenderID      uuid.UUID
	SenderName    string
	EncryptedText string
}

// CreateUpload writes the upload, its participants and its messages in one
// transaction. Senders missing from Participants are added on the fly.
func (s *Store) CreateUpload(ctx context.Context, u NewUpload) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	summary := u.ParsingSummary
	if summary == nil {
		summary = map[string]any{}
	}

	uploadID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO uploads (id, platform, timezone, status, file_path, retention_until, parsing_summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uploadID, u.Platform, u.Timezone, UploadParsed, u.FilePath, u.RetentionUntil, summary,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert upload: %w", err)
	}

	participants := make(map[string]uuid.UUID)
	addParticipant := func(name string) (uuid.UUID, error) {
		if id, ok := participants[name]; ok {
			return id, nil
		}
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO participants (id, upload_id, display_name, normalized_id)
			VALUES ($1, $2, $3, $4)`,
			id, uploadID, name, strings.ToLower(strings.TrimSpace(name)),
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert participant: %w", err)
		}
		participants[name] = id
		return id, nil
	}

	for _, name := range u.Participants {
		if _, err := addParticipant(name); err != nil {
			return uuid.Nil, err
		}
	}

	rows := make([][]any, 0, len(u.Messages))
	for i, m := range u.Messages {
		senderID, err := addParticipant(m.Sender)
		if err != nil {
			return uuid.Nil, err
		}
		rows = append(rows, []any{uuid.New(), uploadID, i, m.Timestamp.UTC(), senderID, m.EncryptedText})
	}

	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"messages"},
			[]string{"id", "upload_id", "seq", "ts", "sender_id", "encrypted_text"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("copy messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return uploadID, nil
}

// GetUpload fetches an upload by ID.
func (s *Store) GetUpload(ctx context.Context, id uuid.UUID) (*Upload, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, platform, timezone, status, file_path, retention_until, parsing_summary, created_at, updated_at
		FROM uploads WHERE id = $1`, id)

	var u Upload
	err := row.Scan(&u.ID, &u.Platform, &u.Timezone, &u.Status, &u.FilePath, &u.RetentionUntil, &u.ParsingSummary, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "upload")
	}
	return &u, nil
}

// DeleteUpload removes an upload and, by cascade, everything derived from it.
func (s *Store) DeleteUpload(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload: %w", ErrNotFound)
	}
	return nil
}

// CountMessages returns the number of messages stored for an upload.
func (s *Store) CountMessages(ctx context.Context, uploadID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM messages WHERE upload_id = $1`, uploadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// ListMessages returns an upload's messages in chronological order; ties
// keep their parse order.
func (s *Store) ListMessages(ctx context.Context, uploadID uuid.UUID) ([]MessageRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.ts, m.sender_id, p.display_name, m.encrypted_text
		FROM messages m
		JOIN participants p ON p.id = m.sender_id
		WHERE m.upload_id = $1
		ORDER BY m.ts ASC, m.seq ASC`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.SenderID, &m.SenderName, &m.EncryptedText); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// ExpiredUploads lists uploads whose retention window ended before now.
func (s *Store) ExpiredUploads(ctx context.Context, now time.Time) ([]Upload, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, platform, timezone, status, file_path, retention_until, parsing_summary, created_at, updated_at
		FROM uploads WHERE retention_until < $1
		ORDER BY retention_until ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("query expired uploads: %w", err)
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var u Upload
		if err := rows.Scan(&u.ID, &u.Platform, &u.Timezone, &u.Status, &u.FilePath, &u.RetentionUntil, &u.ParsingSummary, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}
