// Package engagement turns provider delivery events into client trust
// state. Hard failures pause follow-ups and cancel queued work; opens and
// clicks nudge the engagement score up.
package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
	"github.com/clienthq/followup-engine/internal/pkg/logger"
	"github.com/clienthq/followup-engine/internal/store"
)

// softBounceThreshold is the strike count that pauses a client.
const softBounceThreshold = 3

// Score adjustments per event.
const (
	scoreHardBounce = -20
	scoreSoftBounce = -5
	scoreComplaint  = -30
	scoreOpened     = 1
	scoreClicked    = 2
)

// Tracker applies the client trust state machine.
type Tracker struct {
	store *store.Store
	now   func() time.Time
}

// NewTracker creates a tracker over the store.
func NewTracker(s *store.Store) *Tracker {
	return &Tracker{store: s, now: time.Now}
}

// Record appends the event to the analytics log and applies its effect
// on the client's trust signals.
func (t *Tracker) Record(ctx context.Context, event *domain.AnalyticsEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = t.now()
	}
	if err := t.store.InsertAnalyticsEvent(ctx, event); err != nil {
		return fmt.Errorf("recording %s event: %w", event.Event, err)
	}
	if event.ClientID == "" {
		return nil
	}

	client, err := t.store.GetClient(ctx, event.ClientID)
	if err != nil {
		return fmt.Errorf("loading client for %s event: %w", event.Event, err)
	}
	if client == nil {
		logger.Warn("engagement event for unknown client",
			"client_id", event.ClientID, "event", string(event.Event))
		return nil
	}

	cancelReason := ""
	switch event.Event {
	case domain.EventBounced:
		client.BounceCount++
		if event.BounceType == domain.BounceSoft {
			client.SoftBounceCount++
			client.EngagementScore += scoreSoftBounce
			if client.SoftBounceCount >= softBounceThreshold {
				client.FollowupsPaused = true
			}
		} else {
			client.FollowupsPaused = true
			client.EngagementScore += scoreHardBounce
			cancelReason = "hard bounce"
		}
		at := t.now()
		client.LastBounceAt = &at

	case domain.EventComplained:
		client.FollowupsPaused = true
		client.EngagementScore += scoreComplaint
		cancelReason = "spam complaint"

	case domain.EventUnsubscribed:
		client.Unsubscribed = true
		cancelReason = "unsubscribed"

	case domain.EventOpened:
		client.EngagementScore += scoreOpened

	case domain.EventClicked:
		client.EngagementScore += scoreClicked

	case domain.EventReplied:
		// A reply pauses queued follow-ups through the suppression
		// evaluator, which reads the stamped time.
		return t.store.RecordClientReply(ctx, client.ID, t.now())

	case domain.EventSent, domain.EventDelivered:
		// Logged only; no trust change.
		return nil

	default:
		return fmt.Errorf("unknown engagement event %q", event.Event)
	}

	client.EngagementScore = domain.ClampScore(client.EngagementScore)
	if err := t.store.UpdateClientTrust(ctx, client); err != nil {
		return err
	}

	if cancelReason != "" {
		n, err := t.store.CancelQueuedForClient(ctx, client.ID, cancelReason)
		if err != nil {
			return err
		}
		logger.Info("cancelled pending follow-ups",
			"client_id", client.ID, "reason", cancelReason, "count", n)
	}
	return nil
}

// Reactivate clears a client's pause state after manual review.
func (t *Tracker) Reactivate(ctx context.Context, clientID string) error {
	return t.store.ReactivateClient(ctx, clientID)
}
