package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clienthq/followup-engine/internal/domain"
)

// GetInvoice loads an invoice by ID. Invoices are read-only inputs to
// this subsystem; only the suppression evaluator and the attachment
// fetcher consume them.
func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	var (
		inv     domain.Invoice
		dueDate sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, client_id, number, status, amount_due,
		       COALESCE(currency, 'USD'), due_date, COALESCE(document_key, ''),
		       created_at
		FROM invoices
		WHERE id = $1
	`, id).Scan(
		&inv.ID, &inv.OwnerID, &inv.ClientID, &inv.Number, &inv.Status,
		&inv.AmountDue, &inv.Currency, &dueDate, &inv.DocumentKey,
		&inv.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading invoice %s: %w", id, err)
	}
	inv.DueDate = timeFromNull(dueDate)
	return &inv, nil
}
