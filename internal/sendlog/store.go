// Package sendlog owns the per-attempt delivery log. Every send attempt gets
// exactly one row: created PENDING before the transport call, moved to SENT
// or FAILED afterward. Rows are append-only across retries; the log is an
// attempt history, not a per-recipient status field.
package sendlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Log row states. Each row reaches exactly one terminal state per attempt.
const (
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)

// maxErrorLen caps stored provider error text.
const maxErrorLen = 500

// Store persists send-log rows in Postgres.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateParams describes the attempt being logged.
type CreateParams struct {
	Recipient  string
	Name       string
	Subject    string
	Content    string
	CampaignID string // empty for ad-hoc sends
	IsTest     bool
}

// Create inserts a PENDING row and returns its id. The id is generated
// client-side because tracking-link generation needs it before the insert's
// round-trip would matter.
func (s *Store) Create(ctx context.Context, p CreateParams) (uuid.UUID, error) {
	id := uuid.New()

	var campaignID interface{}
	if p.CampaignID != "" {
		campaignID = p.CampaignID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO send_log (id, recipient, recipient_name, subject, content, campaign_id, is_test, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, id, p.Recipient, p.Name, p.Subject, p.Content, campaignID, p.IsTest, StatusPending)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert send log: %w", err)
	}
	return id, nil
}

// MarkSent moves a row to SENT with the provider message id and timestamp.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE send_log
		SET status = $2, provider_message_id = $3, sent_at = $4
		WHERE id = $1
	`, id, StatusSent, providerMessageID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return checkOneRow(res, id)
}

// MarkFailed moves a row to FAILED with the transport error text.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	if len(errText) > maxErrorLen {
		errText = errText[:maxErrorLen]
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE send_log
		SET status = $2, error_message = $3, failed_at = $4
		WHERE id = $1
	`, id, StatusFailed, errText, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return checkOneRow(res, id)
}

func checkOneRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil // driver without RowsAffected support; trust the update
	}
	if n == 0 {
		return fmt.Errorf("send log row %s not found", id)
	}
	return nil
}
