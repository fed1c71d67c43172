package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
)

// DueQueueItems returns conditionally-suppressible follow-ups whose time
// has arrived. Failed items inside their retry budget are included so the
// next invocation retries them.
func (s *Store) DueQueueItems(ctx context.Context, now time.Time, limit int) ([]*domain.FollowupQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, client_id, related_invoice_id,
		       COALESCE(subject, ''), body, status, scheduled_at,
		       pause_on_reply, cancel_if_paid, retry_count, max_retries,
		       sent_at, COALESCE(skip_reason, ''), created_at, updated_at
		FROM followup_queue
		WHERE (status = 'queued' OR (status = 'failed' AND retry_count < max_retries))
		  AND scheduled_at <= $1
		  AND (claimed_at IS NULL OR claimed_at < $2)
		ORDER BY scheduled_at ASC
		LIMIT $3
	`, now, now.Add(-ClaimWindow), limit)
	if err != nil {
		return nil, fmt.Errorf("querying due queue items: %w", err)
	}
	defer rows.Close()

	var items []*domain.FollowupQueueItem
	for rows.Next() {
		var (
			q         domain.FollowupQueueItem
			invoiceID sql.NullString
			sentAt    sql.NullTime
		)
		if err := rows.Scan(
			&q.ID, &q.OwnerID, &q.ClientID, &invoiceID,
			&q.Subject, &q.Body, &q.Status, &q.ScheduledAt,
			&q.PauseOnReply, &q.CancelIfPaid, &q.RetryCount, &q.MaxRetries,
			&sentAt, &q.SkipReason, &q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning queue item: %w", err)
		}
		q.RelatedInvoiceID = stringFromNull(invoiceID)
		q.SentAt = timeFromNull(sentAt)
		items = append(items, &q)
	}
	return items, rows.Err()
}

// ClaimQueueItem atomically claims a due queue item before evaluation.
func (s *Store) ClaimQueueItem(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE followup_queue
		SET claimed_at = NOW()
		WHERE id = $1
		  AND status IN ('queued', 'failed')
		  AND (claimed_at IS NULL OR claimed_at < NOW() - INTERVAL '5 minutes')
	`, id)
	if err != nil {
		return false, fmt.Errorf("claiming queue item %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkQueueItemSent terminally transitions an item to sent.
func (s *Store) MarkQueueItemSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE followup_queue
		SET status = 'sent', sent_at = $2, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("marking queue item %s sent: %w", id, err)
	}
	return nil
}

// MarkQueueItemCancelled terminally cancels an item (paid invoice).
func (s *Store) MarkQueueItemCancelled(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE followup_queue
		SET status = 'cancelled', skip_reason = $2, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("cancelling queue item %s: %w", id, err)
	}
	return nil
}

// MarkQueueItemPaused parks an item after the client replied. A paused
// item can be resumed externally; the dispatcher never touches it again
// until then.
func (s *Store) MarkQueueItemPaused(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE followup_queue
		SET status = 'paused', skip_reason = $2, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("pausing queue item %s: %w", id, err)
	}
	return nil
}

// MarkQueueItemSkipped records a client-level suppression skip. The record
// survives with its reason instead of being silently re-evaluated forever.
func (s *Store) MarkQueueItemSkipped(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE followup_queue
		SET status = 'skipped', skip_reason = $2, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("skipping queue item %s: %w", id, err)
	}
	return nil
}

// RecordQueueItemFailure bumps the retry counter and sets failed status.
// Items inside their retry budget are picked up again by the next due
// query; past the budget the failed status is terminal.
func (s *Store) RecordQueueItemFailure(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE followup_queue
		SET status = 'failed',
		    retry_count = retry_count + 1,
		    skip_reason = $2,
		    claimed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("recording queue item %s failure: %w", id, err)
	}
	return nil
}
