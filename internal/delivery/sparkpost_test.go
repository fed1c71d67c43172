package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSparkPostSend(t *testing.T) {
	var received spTransmission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transmissions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "sp-key" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"results":{"id":"tx-123","total_accepted_recipients":1}}`))
	}))
	defer srv.Close()

	p := NewSparkPostProvider("sp-key", time.Second)
	p.baseURL = srv.URL

	msg := testMsg()
	msg.ToName = "Maria"
	msg.Metadata = map[string]interface{}{"message_id": "msg-1"}

	result, err := p.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if result.MessageID != "tx-123" {
		t.Errorf("MessageID = %q, want tx-123", result.MessageID)
	}

	if len(received.Recipients) != 1 {
		t.Fatalf("recipients = %d, want 1", len(received.Recipients))
	}
	if received.Recipients[0].Address.Email != "client@example.com" {
		t.Errorf("recipient = %q", received.Recipients[0].Address.Email)
	}
	if received.Content.Subject != "Invoice reminder" {
		t.Errorf("subject = %q", received.Content.Subject)
	}
}

func TestSparkPostSend_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"code":"1902","message":"invalid recipient"}]}`))
	}))
	defer srv.Close()

	p := NewSparkPostProvider("sp-key", time.Second)
	p.baseURL = srv.URL

	if _, err := p.Send(context.Background(), testMsg()); err == nil {
		t.Error("Send() should surface the API error")
	}
}

func TestSparkPostSend_CarriesAttachment(t *testing.T) {
	var received spTransmission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"results":{"id":"tx-1"}}`))
	}))
	defer srv.Close()

	p := NewSparkPostProvider("sp-key", time.Second)
	p.baseURL = srv.URL

	msg := testMsg()
	msg.Attachment = &Attachment{
		Filename:    "INV-42.pdf",
		ContentType: "application/pdf",
		Data:        []byte("%PDF-1.4"),
	}

	if _, err := p.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(received.Content.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(received.Content.Attachments))
	}
	if received.Content.Attachments[0].Name != "INV-42.pdf" {
		t.Errorf("attachment name = %q", received.Content.Attachments[0].Name)
	}
}
