package content

import (
	"testing"
	"time"

	"github.com/clienthq/followup-engine/internal/domain"
)

func TestRender(t *testing.T) {
	r := NewRenderer()
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	client := &domain.Client{Name: "Maria", Email: "maria@example.com", Company: "Acme"}
	invoice := &domain.Invoice{
		Number:    "INV-42",
		AmountDue: 1250.50,
		Currency:  "EUR",
		Status:    domain.InvoiceOverdue,
		DueDate:   &due,
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"client fields",
			"Hi {{client.name}} at {{client.company}},",
			"Hi Maria at Acme,",
		},
		{
			"invoice with currency filter",
			"Invoice {{invoice.number}} for {{invoice.amount_due | currency: invoice.currency}}",
			"Invoice INV-42 for 1250.50 EUR",
		},
		{
			"friendly date",
			"Due {{invoice.due_date | friendly_date}}.",
			"Due April 1, 2026.",
		},
		{
			"default filter on empty value",
			"Hello {{missing | default: \"there\"}}!",
			"Hello there!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Render(tt.body, client, invoice)
			if err != nil {
				t.Fatalf("Render() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_NoInvoice(t *testing.T) {
	r := NewRenderer()
	got, err := r.Render("Hi {{client.name}}", &domain.Client{Name: "Sam"}, nil)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if got != "Hi Sam" {
		t.Errorf("Render() = %q", got)
	}
}

func TestRender_BadTemplate(t *testing.T) {
	r := NewRenderer()
	if _, err := r.Render("{% broken", &domain.Client{Name: "Sam"}, nil); err == nil {
		t.Error("Render() should error on a malformed template")
	}
}
