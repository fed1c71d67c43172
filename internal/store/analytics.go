package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
	"github.com/google/uuid"
)

// InsertAnalyticsEvent appends to the delivery event log. The log is
// append-only; there are no update or delete paths.
func (s *Store) InsertAnalyticsEvent(ctx context.Context, e *domain.AnalyticsEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var data []byte
	if e.Data != nil {
		var err error
		data, err = json.Marshal(e.Data)
		if err != nil {
			return fmt.Errorf("marshaling event data: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_events (id, owner_id, event, client_id, message_id, bounce_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.OwnerID, e.Event, e.ClientID, e.MessageID, string(e.BounceType), data, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting analytics event: %w", err)
	}
	return nil
}
