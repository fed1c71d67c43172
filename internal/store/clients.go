package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
)

// GetClient loads a client by ID.
func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var (
		c          domain.Client
		lastBounce sql.NullTime
		lastReply  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, email, COALESCE(company, ''),
		       bounce_count, soft_bounce_count, last_bounce_at,
		       followups_paused, unsubscribed, last_reply_at,
		       engagement_score, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.Company,
		&c.BounceCount, &c.SoftBounceCount, &lastBounce,
		&c.FollowupsPaused, &c.Unsubscribed, &lastReply,
		&c.EngagementScore, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading client %s: %w", id, err)
	}
	c.LastBounceAt = timeFromNull(lastBounce)
	c.LastReplyAt = timeFromNull(lastReply)
	return &c, nil
}

// UpdateClientTrust persists the trust signals the engagement tracker
// mutates: bounce counters, pause flags, and the engagement score.
func (s *Store) UpdateClientTrust(ctx context.Context, c *domain.Client) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET bounce_count = $2,
		    soft_bounce_count = $3,
		    last_bounce_at = $4,
		    followups_paused = $5,
		    unsubscribed = $6,
		    engagement_score = $7,
		    updated_at = NOW()
		WHERE id = $1
	`, c.ID, c.BounceCount, c.SoftBounceCount, nullTime(c.LastBounceAt),
		c.FollowupsPaused, c.Unsubscribed, c.EngagementScore)
	if err != nil {
		return fmt.Errorf("updating client %s trust signals: %w", c.ID, err)
	}
	return nil
}

// ReactivateClient resets the trust signals after manual review:
// follow-ups unpaused, bounce accounting cleared, score back to default.
// The unsubscribed flag is deliberately left alone; only the client
// themselves can undo an unsubscribe.
func (s *Store) ReactivateClient(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET followups_paused = false,
		    bounce_count = 0,
		    soft_bounce_count = 0,
		    engagement_score = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, id, domain.EngagementScoreDefault)
	if err != nil {
		return fmt.Errorf("reactivating client %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("client %s not found", id)
	}
	return nil
}

// RecordClientReply stamps the client's last reply time. Called by the
// inbound-mail integration; the suppression evaluator reads it.
func (s *Store) RecordClientReply(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE clients SET last_reply_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	return err
}

// CancelQueuedForClient terminally cancels every still-queued follow-up
// for a client. Used on hard bounce, complaint, and unsubscribe.
// Returns the number of items cancelled.
func (s *Store) CancelQueuedForClient(ctx context.Context, clientID, reason string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE followup_queue
		SET status = 'cancelled', skip_reason = $2, updated_at = NOW()
		WHERE client_id = $1 AND status = 'queued'
	`, clientID, reason)
	if err != nil {
		return 0, fmt.Errorf("cancelling queued items for client %s: %w", clientID, err)
	}
	queueCancelled, _ := result.RowsAffected()

	// Scheduled one-shot messages for the client are cancelled the same way.
	_, err = s.db.ExecContext(ctx, `
		UPDATE scheduled_messages
		SET status = 'cancelled', failure_reason = $2, updated_at = NOW()
		WHERE client_id = $1 AND status IN ('draft', 'queued')
	`, clientID, reason)
	if err != nil {
		return int(queueCancelled), fmt.Errorf("cancelling scheduled messages for client %s: %w", clientID, err)
	}

	return int(queueCancelled), nil
}
