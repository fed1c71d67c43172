package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupTestDB(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return New(db), mock, func() { db.Close() }
}

var now = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func TestClaimScheduledMessage(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		want    bool
	}{
		{"claim succeeds", 1, true},
		{"already claimed elsewhere", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock, cleanup := setupTestDB(t)
			defer cleanup()

			mock.ExpectExec("UPDATE scheduled_messages").
				WithArgs("msg-1").
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			got, err := s.ClaimScheduledMessage(context.Background(), "msg-1")
			if err != nil {
				t.Fatalf("ClaimScheduledMessage() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("claimed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueScheduledMessages(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	cols := []string{
		"id", "owner_id", "client_id", "related_invoice_id",
		"subject", "body", "status", "scheduled_at", "sent_at",
		"failure_reason", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM scheduled_messages").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("msg-1", "owner-1", "client-1", nil,
				"Friendly reminder", "Hi {{client.name}}", "queued", now.Add(-time.Hour), nil,
				"", now.Add(-24*time.Hour), now.Add(-time.Hour)))

	msgs, err := s.DueScheduledMessages(context.Background(), now, 25)
	if err != nil {
		t.Fatalf("DueScheduledMessages() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != "msg-1" {
		t.Errorf("ID = %q, want msg-1", msgs[0].ID)
	}
	if msgs[0].RelatedInvoiceID != nil {
		t.Errorf("RelatedInvoiceID = %v, want nil", *msgs[0].RelatedInvoiceID)
	}
}

func TestDueCampaigns_ParsesRecurrence(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	cols := []string{
		"id", "owner_id", "client_id", "related_invoice_id", "name",
		"tone", "status", "recurrence", "send_count", "max_sends",
		"next_run_at", "last_sent_at", "created_at", "updated_at",
	}
	recurrence := `{"type":"weekly","interval":1,"timeOfDay":"09:00","daysOfWeek":[1,3]}`
	mock.ExpectQuery("SELECT (.+) FROM recurring_campaigns").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("camp-1", "owner-1", "client-1", nil, "Overdue nudges",
				"professional", "scheduled", []byte(recurrence), 2, 5,
				now.Add(-time.Minute), now.Add(-7*24*time.Hour), now.Add(-30*24*time.Hour), now))

	campaigns, err := s.DueCampaigns(context.Background(), now, 25)
	if err != nil {
		t.Fatalf("DueCampaigns() error: %v", err)
	}
	if len(campaigns) != 1 {
		t.Fatalf("got %d campaigns, want 1", len(campaigns))
	}
	c := campaigns[0]
	if c.Recurrence.Type != "weekly" || len(c.Recurrence.DaysOfWeek) != 2 {
		t.Errorf("recurrence parsed wrong: %+v", c.Recurrence)
	}
	if c.MaxSends == nil || *c.MaxSends != 5 {
		t.Errorf("MaxSends = %v, want 5", c.MaxSends)
	}
}

func TestDueCampaigns_DropsInvalidRecurrence(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	cols := []string{
		"id", "owner_id", "client_id", "related_invoice_id", "name",
		"tone", "status", "recurrence", "send_count", "max_sends",
		"next_run_at", "last_sent_at", "created_at", "updated_at",
	}
	// "hourly" parses as JSON but the calculator has no such cadence.
	bad := `{"type":"hourly","interval":1,"timeOfDay":"09:00"}`
	good := `{"type":"daily","interval":2,"timeOfDay":"08:30"}`
	mock.ExpectQuery("SELECT (.+) FROM recurring_campaigns").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("camp-bad", "owner-1", "client-1", nil, "Broken",
				"professional", "scheduled", []byte(bad), 0, nil,
				now.Add(-time.Minute), nil, now, now).
			AddRow("camp-good", "owner-1", "client-2", nil, "Working",
				"professional", "scheduled", []byte(good), 0, nil,
				now.Add(-time.Minute), nil, now, now))

	campaigns, err := s.DueCampaigns(context.Background(), now, 25)
	if err != nil {
		t.Fatalf("DueCampaigns() error: %v", err)
	}
	if len(campaigns) != 1 || campaigns[0].ID != "camp-good" {
		t.Fatalf("campaigns = %+v, want only camp-good", campaigns)
	}
}

func TestAdvanceCampaign_GuardsOnSendCount(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	next := now.AddDate(0, 0, 7)
	mock.ExpectExec("UPDATE recurring_campaigns").
		WithArgs("camp-1", 2, now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.AdvanceCampaign(context.Background(), "camp-1", 2, now, &next)
	if err == nil {
		t.Error("AdvanceCampaign() should error when the count guard misses")
	}
}

func TestRecordQueueItemFailure(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE followup_queue").
		WithArgs("item-1", "provider exhausted").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RecordQueueItemFailure(context.Background(), "item-1", "provider exhausted"); err != nil {
		t.Fatalf("RecordQueueItemFailure() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCancelQueuedForClient(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE followup_queue").
		WithArgs("client-1", "hard bounce").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("UPDATE scheduled_messages").
		WithArgs("client-1", "hard bounce").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.CancelQueuedForClient(context.Background(), "client-1", "hard bounce")
	if err != nil {
		t.Fatalf("CancelQueuedForClient() error: %v", err)
	}
	if n != 3 {
		t.Errorf("cancelled = %d, want 3", n)
	}
}

func TestGetClient_NotFound(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM clients").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	c, err := s.GetClient(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetClient() error: %v", err)
	}
	if c != nil {
		t.Error("GetClient() should return nil for a missing client")
	}
}

func TestReactivateClient_NotFound(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE clients").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.ReactivateClient(context.Background(), "nope"); err == nil {
		t.Error("ReactivateClient() should error for a missing client")
	}
}
