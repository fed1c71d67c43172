package domain

import "time"

// InvoiceStatus enumerates the lifecycle states of an invoice.
// Invoices are read-only inputs to this subsystem; the composition layer
// owns their lifecycle.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoiceVoid    InvoiceStatus = "void"
)

// Invoice is the payment document a follow-up may be tied to.
type Invoice struct {
	ID        string        `json:"id" db:"id"`
	OwnerID   string        `json:"owner_id" db:"owner_id"`
	ClientID  string        `json:"client_id" db:"client_id"`
	Number    string        `json:"number" db:"number"`
	Status    InvoiceStatus `json:"status" db:"status"`
	AmountDue float64       `json:"amount_due" db:"amount_due"`
	Currency  string        `json:"currency" db:"currency"`
	DueDate   *time.Time    `json:"due_date" db:"due_date"`
	// DocumentKey is the S3 object key of the rendered PDF, if one exists.
	DocumentKey string    `json:"document_key" db:"document_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
