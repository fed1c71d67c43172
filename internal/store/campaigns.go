package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
	"github.com/clienthq/followup-engine/internal/pkg/logger"
	"github.com/google/uuid"
)

// DueCampaigns returns recurring campaigns whose next run has arrived.
func (s *Store) DueCampaigns(ctx context.Context, now time.Time, limit int) ([]*domain.RecurringCampaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, client_id, related_invoice_id, name,
		       COALESCE(tone, 'professional'), status, recurrence,
		       send_count, max_sends, next_run_at, last_sent_at,
		       created_at, updated_at
		FROM recurring_campaigns
		WHERE status = 'scheduled'
		  AND next_run_at IS NOT NULL
		  AND next_run_at <= $1
		  AND (claimed_at IS NULL OR claimed_at < $2)
		ORDER BY next_run_at ASC
		LIMIT $3
	`, now, now.Add(-ClaimWindow), limit)
	if err != nil {
		return nil, fmt.Errorf("querying due campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*domain.RecurringCampaign
	for rows.Next() {
		var (
			c             domain.RecurringCampaign
			invoiceID     sql.NullString
			recurrenceRaw []byte
			maxSends      sql.NullInt64
			nextRunAt     sql.NullTime
			lastSentAt    sql.NullTime
		)
		if err := rows.Scan(
			&c.ID, &c.OwnerID, &c.ClientID, &invoiceID, &c.Name,
			&c.Tone, &c.Status, &recurrenceRaw,
			&c.SendCount, &maxSends, &nextRunAt, &lastSentAt,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning campaign: %w", err)
		}
		if err := json.Unmarshal(recurrenceRaw, &c.Recurrence); err != nil {
			return nil, fmt.Errorf("campaign %s has malformed recurrence: %w", c.ID, err)
		}
		// A rule the calculator cannot work with would loop through every
		// run without progress; keep it out of the batch.
		if err := c.Recurrence.Validate(); err != nil {
			logger.Warn("skipping campaign with invalid recurrence",
				"campaign_id", c.ID, "error", err.Error())
			continue
		}
		c.RelatedInvoiceID = stringFromNull(invoiceID)
		c.MaxSends = intFromNull(maxSends)
		c.NextRunAt = timeFromNull(nextRunAt)
		c.LastSentAt = timeFromNull(lastSentAt)
		campaigns = append(campaigns, &c)
	}
	return campaigns, rows.Err()
}

// ClaimCampaign atomically claims a due campaign before generation/send.
func (s *Store) ClaimCampaign(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE recurring_campaigns
		SET claimed_at = NOW()
		WHERE id = $1
		  AND status = 'scheduled'
		  AND (claimed_at IS NULL OR claimed_at < NOW() - INTERVAL '5 minutes')
	`, id)
	if err != nil {
		return false, fmt.Errorf("claiming campaign %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AdvanceCampaign records a successful send: bumps the send count, stamps
// last_sent_at, and moves next_run_at forward. The previous-count guard
// keeps a racing invocation from double-incrementing.
func (s *Store) AdvanceCampaign(ctx context.Context, id string, prevSendCount int, sentAt time.Time, nextRunAt *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE recurring_campaigns
		SET send_count = send_count + 1,
		    last_sent_at = $3,
		    next_run_at = $4,
		    claimed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND send_count = $2
	`, id, prevSendCount, sentAt, nullTime(nextRunAt))
	if err != nil {
		return fmt.Errorf("advancing campaign %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("campaign %s send_count moved underneath us", id)
	}
	return nil
}

// CompleteCampaign transitions a campaign to its terminal completed state.
func (s *Store) CompleteCampaign(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recurring_campaigns
		SET status = 'completed', next_run_at = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return fmt.Errorf("completing campaign %s: %w", id, err)
	}
	return nil
}

// ReleaseCampaignClaim clears the claim after a failed run so the campaign
// is retried on the next invocation with its state untouched.
func (s *Store) ReleaseCampaignClaim(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recurring_campaigns SET claimed_at = NULL WHERE id = $1
	`, id)
	return err
}

// InsertCampaignMessage appends a content-history record for a campaign
// send. Recent records feed the generator's variation requirement.
func (s *Store) InsertCampaignMessage(ctx context.Context, m *domain.CampaignMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaign_messages (id, campaign_id, subject, body, sent_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.CampaignID, m.Subject, m.Body, m.SentAt)
	if err != nil {
		return fmt.Errorf("inserting campaign message: %w", err)
	}
	return nil
}

// RecentCampaignMessages returns the most recent history records for a
// campaign, newest first.
func (s *Store) RecentCampaignMessages(ctx context.Context, campaignID string, limit int) ([]*domain.CampaignMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, subject, body, sent_at
		FROM campaign_messages
		WHERE campaign_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying campaign history: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.CampaignMessage
	for rows.Next() {
		var m domain.CampaignMessage
		if err := rows.Scan(&m.ID, &m.CampaignID, &m.Subject, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("scanning campaign message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
