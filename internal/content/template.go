package content

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"

	"github.com/clienthq/followup-engine/internal/domain"
)

// Renderer personalizes fixed one-shot message bodies with Liquid.
// Templates are parsed once and cached.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the follow-up filter set.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}

	// {{ client.name | default: "there" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil || strings.TrimSpace(fmt.Sprintf("%v", value)) == "" {
			return defaultVal
		}
		return value
	})

	// {{ invoice.amount_due | currency: invoice.currency }}
	r.engine.RegisterFilter("currency", func(amount float64, code string) string {
		if code == "" {
			code = "USD"
		}
		return fmt.Sprintf("%.2f %s", amount, code)
	})

	// {{ invoice.due_date | friendly_date }}
	r.engine.RegisterFilter("friendly_date", func(t time.Time) string {
		return t.Format("January 2, 2006")
	})

	return r
}

// Render expands a one-shot body against the client and optional invoice.
func (r *Renderer) Render(body string, client *domain.Client, invoice *domain.Invoice) (string, error) {
	tmpl, err := r.parse(body)
	if err != nil {
		return "", fmt.Errorf("parsing message template: %w", err)
	}

	bindings := map[string]interface{}{
		"client": map[string]interface{}{
			"name":    client.Name,
			"email":   client.Email,
			"company": client.Company,
		},
	}
	if invoice != nil {
		inv := map[string]interface{}{
			"number":     invoice.Number,
			"amount_due": invoice.AmountDue,
			"currency":   invoice.Currency,
			"status":     string(invoice.Status),
		}
		if invoice.DueDate != nil {
			inv["due_date"] = *invoice.DueDate
		}
		bindings["invoice"] = inv
	}

	out, err := tmpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("rendering message template: %w", err)
	}
	return out, nil
}

func (r *Renderer) parse(body string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(body); ok {
		return cached.(*liquid.Template), nil
	}
	tmpl, err := r.engine.ParseString(body)
	if err != nil {
		return nil, err
	}
	r.cache.Store(body, tmpl)
	return tmpl, nil
}
