package domain

import "time"

// AnalyticsEventType enumerates delivery lifecycle events.
type AnalyticsEventType string

const (
	EventSent         AnalyticsEventType = "sent"
	EventDelivered    AnalyticsEventType = "delivered"
	EventOpened       AnalyticsEventType = "opened"
	EventClicked      AnalyticsEventType = "clicked"
	EventBounced      AnalyticsEventType = "bounced"
	EventComplained   AnalyticsEventType = "complained"
	EventUnsubscribed AnalyticsEventType = "unsubscribed"
	EventReplied      AnalyticsEventType = "replied"
)

// BounceType distinguishes permanent from temporary delivery failures.
type BounceType string

const (
	BounceHard BounceType = "hard"
	BounceSoft BounceType = "soft"
)

// AnalyticsEvent is one append-only entry in the delivery event log.
// Events are never mutated or deleted.
type AnalyticsEvent struct {
	ID        string             `json:"id" db:"id"`
	OwnerID   string             `json:"owner_id" db:"owner_id"`
	Event     AnalyticsEventType `json:"event" db:"event"`
	ClientID  string             `json:"client_id" db:"client_id"`
	MessageID string             `json:"message_id" db:"message_id"`
	// BounceType is set only for bounced events.
	BounceType BounceType     `json:"bounce_type,omitempty" db:"bounce_type"`
	Data       map[string]any `json:"data,omitempty" db:"data"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
