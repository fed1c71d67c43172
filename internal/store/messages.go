package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
)

// DueScheduledMessages returns one-shot messages whose scheduled time has
// arrived and which no other invocation has recently claimed.
func (s *Store) DueScheduledMessages(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, client_id, related_invoice_id,
		       COALESCE(subject, ''), body, status, scheduled_at, sent_at,
		       COALESCE(failure_reason, ''), created_at, updated_at
		FROM scheduled_messages
		WHERE status IN ('draft', 'queued')
		  AND scheduled_at <= $1
		  AND (claimed_at IS NULL OR claimed_at < $2)
		ORDER BY scheduled_at ASC
		LIMIT $3
	`, now, now.Add(-ClaimWindow), limit)
	if err != nil {
		return nil, fmt.Errorf("querying due scheduled messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.ScheduledMessage
	for rows.Next() {
		var (
			m         domain.ScheduledMessage
			invoiceID sql.NullString
			sentAt    sql.NullTime
		)
		if err := rows.Scan(
			&m.ID, &m.OwnerID, &m.ClientID, &invoiceID,
			&m.Subject, &m.Body, &m.Status, &m.ScheduledAt, &sentAt,
			&m.FailureReason, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning scheduled message: %w", err)
		}
		m.RelatedInvoiceID = stringFromNull(invoiceID)
		m.SentAt = timeFromNull(sentAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// ClaimScheduledMessage atomically claims a due message before any send
// attempt. Returns false if another invocation already holds the claim or
// the message left the sendable states.
func (s *Store) ClaimScheduledMessage(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET claimed_at = NOW()
		WHERE id = $1
		  AND status IN ('draft', 'queued')
		  AND (claimed_at IS NULL OR claimed_at < NOW() - INTERVAL '5 minutes')
	`, id)
	if err != nil {
		return false, fmt.Errorf("claiming scheduled message %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkMessageSent terminally transitions a message to sent.
func (s *Store) MarkMessageSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'sent', sent_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("marking message %s sent: %w", id, err)
	}
	return nil
}

// MarkMessageCancelled terminally cancels a message, recording why.
func (s *Store) MarkMessageCancelled(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'cancelled', failure_reason = $2, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("cancelling message %s: %w", id, err)
	}
	return nil
}

// MarkMessageFailed terminally transitions a message to failed with the
// delivery error recorded.
func (s *Store) MarkMessageFailed(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("marking message %s failed: %w", id, err)
	}
	return nil
}
