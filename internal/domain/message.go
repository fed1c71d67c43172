package domain

import "time"

// MessageStatus enumerates the lifecycle of a one-shot scheduled message.
type MessageStatus string

const (
	MessageDraft     MessageStatus = "draft"
	MessageQueued    MessageStatus = "queued"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
	MessageCancelled MessageStatus = "cancelled"
)

// ScheduledMessage is a one-shot message created by the composition flow
// and terminally transitioned by the dispatcher. Its content is fixed at
// composition time; the dispatcher renders placeholders but never
// regenerates the copy.
type ScheduledMessage struct {
	ID               string        `json:"id" db:"id"`
	OwnerID          string        `json:"owner_id" db:"owner_id"`
	ClientID         string        `json:"client_id" db:"client_id"`
	RelatedInvoiceID *string       `json:"related_invoice_id" db:"related_invoice_id"`
	Subject          string        `json:"subject" db:"subject"`
	Body             string        `json:"body" db:"body"`
	Status           MessageStatus `json:"status" db:"status"`
	ScheduledAt      time.Time     `json:"scheduled_at" db:"scheduled_at"`
	SentAt           *time.Time    `json:"sent_at" db:"sent_at"`
	FailureReason    string        `json:"failure_reason" db:"failure_reason"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

// Kind implements SchedulableItem.
func (m *ScheduledMessage) Kind() ItemKind { return KindOneShot }

// ItemID implements SchedulableItem.
func (m *ScheduledMessage) ItemID() string { return m.ID }

// DueAt implements SchedulableItem.
func (m *ScheduledMessage) DueAt() time.Time { return m.ScheduledAt }

// CampaignMessage is a history record of one content generation + send for
// a recurring campaign. Recent records feed the generator so each send
// varies from the ones before it.
type CampaignMessage struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	Subject    string    `json:"subject" db:"subject"`
	Body       string    `json:"body" db:"body"`
	SentAt     time.Time `json:"sent_at" db:"sent_at"`
}
