package domain

import (
	"fmt"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a recurring campaign.
type CampaignStatus string

const (
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
	CampaignFailed    CampaignStatus = "failed"
)

// RecurrenceType enumerates the supported recurrence cadences.
type RecurrenceType string

const (
	RecurrenceOnce    RecurrenceType = "once"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
)

// RecurrenceRule is the persisted recurrence shape, accepted as-is from the
// composition layer. DaysOfWeek uses time.Weekday numbering (0 = Sunday).
type RecurrenceRule struct {
	Type       RecurrenceType `json:"type"`
	Interval   int            `json:"interval"`
	TimeOfDay  string         `json:"timeOfDay"` // "HH:MM", 24-hour
	DaysOfWeek []int          `json:"daysOfWeek,omitempty"`
	EndAfter   *int           `json:"endAfter,omitempty"`
	EndDate    *time.Time     `json:"endDate,omitempty"`
}

// Validate checks the rule for shapes the calculator cannot work with.
func (r *RecurrenceRule) Validate() error {
	switch r.Type {
	case RecurrenceOnce, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
	default:
		return fmt.Errorf("unknown recurrence type %q", r.Type)
	}
	if r.Interval < 1 {
		return fmt.Errorf("recurrence interval must be >= 1, got %d", r.Interval)
	}
	var hh, mm int
	if _, err := fmt.Sscanf(r.TimeOfDay, "%d:%d", &hh, &mm); err != nil {
		return fmt.Errorf("timeOfDay %q is not HH:MM", r.TimeOfDay)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return fmt.Errorf("timeOfDay %q out of range", r.TimeOfDay)
	}
	for _, d := range r.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("daysOfWeek entry %d out of range 0-6", d)
		}
	}
	return nil
}

// ClockTime returns the hour and minute encoded in TimeOfDay.
// Falls back to 09:00 when the field is malformed.
func (r *RecurrenceRule) ClockTime() (hour, minute int) {
	if _, err := fmt.Sscanf(r.TimeOfDay, "%d:%d", &hour, &minute); err != nil {
		return 9, 0
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 9, 0
	}
	return hour, minute
}

// RecurringCampaign is a follow-up schedule tied to one client, bounded by
// an optional maximum send count.
type RecurringCampaign struct {
	ID               string         `json:"id" db:"id"`
	OwnerID          string         `json:"owner_id" db:"owner_id"`
	ClientID         string         `json:"client_id" db:"client_id"`
	RelatedInvoiceID *string        `json:"related_invoice_id" db:"related_invoice_id"`
	Name             string         `json:"name" db:"name"`
	Tone             string         `json:"tone" db:"tone"`
	Status           CampaignStatus `json:"status" db:"status"`
	Recurrence       RecurrenceRule `json:"recurrence" db:"recurrence"`
	SendCount        int            `json:"send_count" db:"send_count"`
	MaxSends         *int           `json:"max_sends" db:"max_sends"`
	NextRunAt        *time.Time     `json:"next_run_at" db:"next_run_at"`
	LastSentAt       *time.Time     `json:"last_sent_at" db:"last_sent_at"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// MaxSendsReached reports whether the campaign has used up its send budget.
func (c *RecurringCampaign) MaxSendsReached() bool {
	return c.MaxSends != nil && c.SendCount >= *c.MaxSends
}

// Kind implements SchedulableItem.
func (c *RecurringCampaign) Kind() ItemKind { return KindRecurring }

// ItemID implements SchedulableItem.
func (c *RecurringCampaign) ItemID() string { return c.ID }

// DueAt implements SchedulableItem.
func (c *RecurringCampaign) DueAt() time.Time {
	if c.NextRunAt == nil {
		return time.Time{}
	}
	return *c.NextRunAt
}
