package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/clienthq/followup-engine/internal/config"
	"github.com/clienthq/followup-engine/internal/delivery"
	"github.com/clienthq/followup-engine/internal/dispatcher"
	"github.com/clienthq/followup-engine/internal/engagement"
	"github.com/clienthq/followup-engine/internal/store"
)

type okSender struct{}

func (okSender) Send(context.Context, *delivery.Message) *delivery.Result {
	return &delivery.Result{Success: true, ProviderUsed: "simulation"}
}

func setupServer(t *testing.T) (*Server, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	st := store.New(db)
	d := dispatcher.New(dispatcher.Options{
		Store:     st,
		Sender:    okSender{},
		FromEmail: "billing@clienthq.com",
	})
	handlers := NewHandlers(d, engagement.NewTracker(st), "dispatch-secret")
	srv := NewServer(config.ServerConfig{Port: 8080}, handlers)
	return srv, mock, func() { db.Close() }
}

func expectEmptyDue(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT (.+) FROM scheduled_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT (.+) FROM recurring_campaigns").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}

func TestHealth(t *testing.T) {
	srv, _, cleanup := setupServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestDispatchRun_EmptyBatch(t *testing.T) {
	srv, mock, cleanup := setupServer(t)
	defer cleanup()
	expectEmptyDue(mock)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/dispatch/run", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Success   bool `json:"success"`
		Processed int  `json:"processedCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success || resp.Processed != 0 {
		t.Errorf("response = %s", rec.Body.String())
	}
}

func TestDispatchQueue_RequiresBearerToken(t *testing.T) {
	srv, mock, cleanup := setupServer(t)
	defer cleanup()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dispatch-secret", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer dispatch-secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want == http.StatusOK {
				expectEmptyDue(mock)
				mock.ExpectQuery("SELECT (.+) FROM followup_queue").
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
			}
			req := httptest.NewRequest("POST", "/api/dispatch/queue", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRecordEvent(t *testing.T) {
	srv, mock, cleanup := setupServer(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO analytics_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	clientCols := []string{
		"id", "owner_id", "name", "email", "company",
		"bounce_count", "soft_bounce_count", "last_bounce_at",
		"followups_paused", "unsubscribed", "last_reply_at",
		"engagement_score", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM clients").
		WillReturnRows(sqlmock.NewRows(clientCols))

	body := `{"event":"opened","clientId":"ghost","messageId":"msg-1"}`
	req := httptest.NewRequest("POST", "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRecordEvent_MissingEvent(t *testing.T) {
	srv, _, cleanup := setupServer(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/api/events", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestReactivateClient(t *testing.T) {
	srv, mock, cleanup := setupServer(t)
	defer cleanup()

	mock.ExpectExec("UPDATE clients").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/clients/client-1/reactivate", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestReactivateClient_Missing(t *testing.T) {
	srv, mock, cleanup := setupServer(t)
	defer cleanup()

	mock.ExpectExec("UPDATE clients").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/api/clients/ghost/reactivate", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
