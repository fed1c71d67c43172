package domain

import "time"

// QueueItemStatus enumerates the lifecycle of a conditionally-suppressible
// follow-up queue item.
type QueueItemStatus string

const (
	QueueQueued    QueueItemStatus = "queued"
	QueueSent      QueueItemStatus = "sent"
	QueuePaused    QueueItemStatus = "paused"
	QueueCancelled QueueItemStatus = "cancelled"
	QueueSkipped   QueueItemStatus = "skipped"
	QueueFailed    QueueItemStatus = "failed"
)

// FollowupQueueItem is a one-shot follow-up whose delivery is conditional
// on external state at dispatch time: a reply from the client can pause it,
// payment of the related invoice can cancel it.
type FollowupQueueItem struct {
	ID               string          `json:"id" db:"id"`
	OwnerID          string          `json:"owner_id" db:"owner_id"`
	ClientID         string          `json:"client_id" db:"client_id"`
	RelatedInvoiceID *string         `json:"related_invoice_id" db:"related_invoice_id"`
	Subject          string          `json:"subject" db:"subject"`
	Body             string          `json:"body" db:"body"`
	Status           QueueItemStatus `json:"status" db:"status"`
	ScheduledAt      time.Time       `json:"scheduled_at" db:"scheduled_at"`
	PauseOnReply     bool            `json:"pause_on_reply" db:"pause_on_reply"`
	CancelIfPaid     bool            `json:"cancel_if_paid" db:"cancel_if_paid"`
	RetryCount       int             `json:"retry_count" db:"retry_count"`
	MaxRetries       int             `json:"max_retries" db:"max_retries"`
	SentAt           *time.Time      `json:"sent_at" db:"sent_at"`
	SkipReason       string          `json:"skip_reason" db:"skip_reason"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true once the item can no longer be sent without
// explicit reactivation. A failed item is terminal only past its retry budget.
func (q *FollowupQueueItem) IsTerminal() bool {
	switch q.Status {
	case QueueSent, QueueCancelled:
		return true
	case QueueFailed:
		return q.RetriesExhausted()
	default:
		return false
	}
}

// RetriesExhausted reports whether the retry budget has been used up.
func (q *FollowupQueueItem) RetriesExhausted() bool {
	return q.RetryCount >= q.MaxRetries
}

// Kind implements SchedulableItem.
func (q *FollowupQueueItem) Kind() ItemKind { return KindConditional }

// ItemID implements SchedulableItem.
func (q *FollowupQueueItem) ItemID() string { return q.ID }

// DueAt implements SchedulableItem.
func (q *FollowupQueueItem) DueAt() time.Time { return q.ScheduledAt }
