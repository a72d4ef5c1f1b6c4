package finance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

// CreatePayment records one payment and its allocations atomically.
// Referenced invoices are locked FOR UPDATE so their balances cannot
// move between the guard checks and the recomputation; a failed check
// rolls back the whole payment.
func (s *Store) CreatePayment(ctx context.Context, tenantID uuid.UUID, createdBy *uuid.UUID, provider string, reference *string, amount float64, allocations []AllocationInput) (*PaymentView, error) {
	invoiceIDs := make([]uuid.UUID, 0, len(allocations))
	for _, alloc := range allocations {
		invoiceIDs = append(invoiceIDs, alloc.InvoiceID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, balance_amount FROM invoices WHERE tenant_id = $1 AND id = ANY($2) FOR UPDATE`,
		tenantID, pq.Array(invoiceIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to lock invoices: %w", err)
	}
	balances := make(map[uuid.UUID]float64, len(invoiceIDs))
	for rows.Next() {
		var id uuid.UUID
		var balance float64
		if err := rows.Scan(&id, &balance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan invoice balance: %w", err)
		}
		balances[id] = balance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read invoice balances: %w", err)
	}
	if len(balances) != len(invoiceIDs) {
		return nil, apperrors.E(apperrors.KindNotFound, "one or more invoices not found in this school")
	}

	for _, alloc := range allocations {
		balance := balances[alloc.InvoiceID]
		if balance <= 0 {
			return nil, apperrors.Errorf(apperrors.KindValidationFailed,
				"invoice %s is already fully paid", alloc.InvoiceID)
		}
		if alloc.Amount > balance {
			return nil, apperrors.Errorf(apperrors.KindValidationFailed,
				"allocation exceeds outstanding balance for invoice %s", alloc.InvoiceID)
		}
	}

	payment := &Payment{}
	query := `
		INSERT INTO payments (tenant_id, provider, reference, amount, currency, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, provider, reference, amount, currency, received_at, created_by
	`
	err = tx.QueryRowContext(ctx, query, tenantID, provider, reference, amount, DefaultCurrency, createdBy).Scan(
		&payment.ID, &payment.TenantID, &payment.Provider, &payment.Reference,
		&payment.Amount, &payment.Currency, &payment.ReceivedAt, &payment.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	view := &PaymentView{Payment: *payment}
	for _, alloc := range allocations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payment_allocations (payment_id, invoice_id, amount) VALUES ($1, $2, $3)`,
			payment.ID, alloc.InvoiceID, alloc.Amount)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, apperrors.E(apperrors.KindConflict, "duplicate invoice allocation")
			}
			return nil, fmt.Errorf("failed to insert allocation: %w", err)
		}
		view.Allocations = append(view.Allocations, PaymentAllocation{
			InvoiceID: alloc.InvoiceID,
			Amount:    alloc.Amount,
		})
	}

	for _, invoiceID := range invoiceIDs {
		if _, err := s.recomputeInvoiceTx(ctx, tx, invoiceID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return view, nil
}

// ListPayments returns the tenant's payments with their allocations,
// newest first. With an enrollment filter, only allocations against that
// enrollment's invoices are shown and payments with none are skipped.
func (s *Store) ListPayments(ctx context.Context, tenantID uuid.UUID, enrollmentID *uuid.UUID) ([]*PaymentView, error) {
	query := `
		SELECT id, tenant_id, provider, reference, amount, currency, received_at, created_by
		FROM payments
		WHERE tenant_id = $1
		ORDER BY received_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*PaymentView
	for rows.Next() {
		payment := &PaymentView{}
		if err := rows.Scan(&payment.ID, &payment.TenantID, &payment.Provider,
			&payment.Reference, &payment.Amount, &payment.Currency,
			&payment.ReceivedAt, &payment.CreatedBy); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	filtered := make([]*PaymentView, 0, len(payments))
	for _, payment := range payments {
		allocations, err := s.listAllocations(ctx, tenantID, payment.ID, enrollmentID)
		if err != nil {
			return nil, err
		}
		if enrollmentID != nil && len(allocations) == 0 {
			continue
		}
		payment.Allocations = allocations
		filtered = append(filtered, payment)
	}
	return filtered, nil
}

func (s *Store) listAllocations(ctx context.Context, tenantID, paymentID uuid.UUID, enrollmentID *uuid.UUID) ([]PaymentAllocation, error) {
	query := `
		SELECT pa.invoice_id, pa.amount
		FROM payment_allocations pa
		JOIN invoices i ON i.id = pa.invoice_id
		WHERE pa.payment_id = $1 AND i.tenant_id = $2
	`
	args := []interface{}{paymentID, tenantID}
	if enrollmentID != nil {
		args = append(args, *enrollmentID)
		query += fmt.Sprintf(" AND i.enrollment_id = $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var allocations []PaymentAllocation
	for rows.Next() {
		var alloc PaymentAllocation
		if err := rows.Scan(&alloc.InvoiceID, &alloc.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, alloc)
	}
	return allocations, rows.Err()
}
