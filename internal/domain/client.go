package domain

import "time"

// EngagementScoreDefault is the score assigned to new and reactivated clients.
const EngagementScoreDefault = 50

// Client represents a business contact that follow-ups are sent to.
// Trust signals (bounce count, engagement score, pause flags) are mutated
// only by the engagement tracker and by explicit reactivation. Clients are
// never deleted by this subsystem.
type Client struct {
	ID              string     `json:"id" db:"id"`
	OwnerID         string     `json:"owner_id" db:"owner_id"`
	Name            string     `json:"name" db:"name"`
	Email           string     `json:"email" db:"email"`
	Company         string     `json:"company" db:"company"`
	BounceCount     int        `json:"bounce_count" db:"bounce_count"`
	SoftBounceCount int        `json:"soft_bounce_count" db:"soft_bounce_count"`
	LastBounceAt    *time.Time `json:"last_bounce_at" db:"last_bounce_at"`
	FollowupsPaused bool       `json:"followups_paused" db:"followups_paused"`
	Unsubscribed    bool       `json:"unsubscribed" db:"unsubscribed"`
	LastReplyAt     *time.Time `json:"last_reply_at" db:"last_reply_at"`
	EngagementScore int        `json:"engagement_score" db:"engagement_score"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Sendable reports whether follow-ups may currently be delivered to this client.
func (c *Client) Sendable() bool {
	return !c.Unsubscribed && !c.FollowupsPaused
}

// ClampScore bounds an engagement score to the valid [0, 100] range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
