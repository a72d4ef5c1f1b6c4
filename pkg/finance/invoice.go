package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

const invoiceColumns = `id, tenant_id, invoice_no, invoice_type, status, enrollment_id,
	currency, total_amount, paid_amount, balance_amount, meta, created_at, updated_at`

func scanInvoice(row interface{ Scan(...interface{}) error }) (*Invoice, error) {
	invoice := &Invoice{}
	var rawMeta []byte
	err := row.Scan(&invoice.ID, &invoice.TenantID, &invoice.InvoiceNo, &invoice.InvoiceType,
		&invoice.Status, &invoice.EnrollmentID, &invoice.Currency, &invoice.TotalAmount,
		&invoice.PaidAmount, &invoice.BalanceAmount, &rawMeta, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if invoice.Meta, err = unmarshalMeta(rawMeta); err != nil {
		return nil, err
	}
	return invoice, nil
}

// newInvoiceNo generates a short human-quotable reference.
func newInvoiceNo() string {
	return "INV-" + strings.ToUpper(uuid.NewString()[:8])
}

// CreateInvoice inserts an invoice with its lines and computes the
// derived totals, all in one transaction.
func (s *Store) CreateInvoice(ctx context.Context, tenantID uuid.UUID, invoiceType string, enrollmentID *uuid.UUID, lines []LineInput) (*Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	invoice, err := s.createInvoiceTx(ctx, tx, tenantID, invoiceType, enrollmentID, lines)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}
	return invoice, nil
}

func (s *Store) createInvoiceTx(ctx context.Context, tx *sql.Tx, tenantID uuid.UUID, invoiceType string, enrollmentID *uuid.UUID, lines []LineInput) (*Invoice, error) {
	query := `
		INSERT INTO invoices (tenant_id, invoice_no, invoice_type, enrollment_id, currency)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + invoiceColumns
	invoice, err := scanInvoice(tx.QueryRowContext(ctx, query,
		tenantID, newInvoiceNo(), invoiceType, enrollmentID, DefaultCurrency))
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	for _, line := range lines {
		if err := s.insertLineTx(ctx, tx, invoice.ID, line); err != nil {
			return nil, err
		}
	}
	return s.recomputeInvoiceTx(ctx, tx, invoice.ID)
}

func (s *Store) insertLineTx(ctx context.Context, tx *sql.Tx, invoiceID uuid.UUID, line LineInput) error {
	rawMeta, err := marshalMeta(line.Meta)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO invoice_lines (invoice_id, description, amount, meta) VALUES ($1, $2, $3, $4)`,
		invoiceID, line.Description, line.Amount, rawMeta)
	if err != nil {
		return fmt.Errorf("failed to insert invoice line: %w", err)
	}
	return nil
}

// recomputeInvoiceTx re-derives totals and status from the line and
// allocation rows and writes them back, returning the fresh invoice.
func (s *Store) recomputeInvoiceTx(ctx context.Context, tx querier, invoiceID uuid.UUID) (*Invoice, error) {
	var total, paid float64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM invoice_lines WHERE invoice_id = $1`, invoiceID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to sum invoice lines: %w", err)
	}
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE invoice_id = $1`, invoiceID).Scan(&paid)
	if err != nil {
		return nil, fmt.Errorf("failed to sum allocations: %w", err)
	}

	total = Round2(total)
	paid = Round2(paid)
	status := DeriveInvoiceStatus(total, paid)

	query := `
		UPDATE invoices
		SET total_amount = $1, paid_amount = $2, balance_amount = $3, status = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING ` + invoiceColumns
	invoice, err := scanInvoice(tx.QueryRowContext(ctx, query,
		total, paid, Round2(total-paid), status, invoiceID))
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice totals: %w", err)
	}
	return invoice, nil
}

// GetInvoice resolves an invoice within the tenant.
func (s *Store) GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	invoice, err := scanInvoice(s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "invoice not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// ListInvoices returns the tenant's invoices, newest first, optionally
// narrowed by enrollment and type.
func (s *Store) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if filter.EnrollmentID != nil {
		args = append(args, *filter.EnrollmentID)
		query += fmt.Sprintf(" AND enrollment_id = $%d", len(args))
	}
	if filter.InvoiceType != "" {
		args = append(args, strings.ToUpper(trimName(filter.InvoiceType)))
		query += fmt.Sprintf(" AND invoice_type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// ListInvoiceLines returns an invoice's lines in insertion order.
func (s *Store) ListInvoiceLines(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceLine, error) {
	query := `SELECT id, invoice_id, description, amount, meta FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []*InvoiceLine
	for rows.Next() {
		line := &InvoiceLine{}
		var rawMeta []byte
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.Description, &line.Amount, &rawMeta); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		if line.Meta, err = unmarshalMeta(rawMeta); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GenerateSchoolFeesInvoice builds a SCHOOL_FEES invoice from the
// tenant's active structure for the class: one line per structure item,
// plus one negative scholarship line when a scholarship is supplied.
func (s *Store) GenerateSchoolFeesInvoice(ctx context.Context, tenantID, enrollmentID uuid.UUID, classCode string, scholarshipID *uuid.UUID) (*Invoice, error) {
	structure, err := s.FindStructureByClass(ctx, tenantID, classCode)
	if err != nil {
		return nil, err
	}
	items, err := s.ListStructureItems(ctx, tenantID, structure.ID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperrors.E(apperrors.KindValidationFailed, "fee structure has no items")
	}

	lines := make([]LineInput, 0, len(items)+1)
	for _, item := range items {
		lines = append(lines, LineInput{
			Description: fmt.Sprintf("%s (%s)", item.FeeItemName, structure.ClassCode),
			Amount:      item.Amount,
			Meta: map[string]interface{}{
				"fee_item_id":   item.FeeItemID.String(),
				"fee_item_code": item.FeeItemCode,
			},
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var scholarship *Scholarship
	if scholarshipID != nil {
		scholarship, err = s.getActiveScholarship(ctx, tx, tenantID, *scholarshipID)
		if err != nil {
			return nil, err
		}
	}

	invoice, err := s.createInvoiceTx(ctx, tx, tenantID, InvoiceTypeSchoolFees, &enrollmentID, lines)
	if err != nil {
		return nil, err
	}

	if scholarship != nil {
		discount := scholarship.Value
		if scholarship.Type == ScholarshipPercent {
			discount = Round2(invoice.TotalAmount * scholarship.Value / 100)
		}
		if discount > 0 {
			err = s.insertLineTx(ctx, tx, invoice.ID, LineInput{
				Description: "Scholarship: " + scholarship.Name,
				Amount:      -discount,
				Meta:        map[string]interface{}{"scholarship_id": scholarship.ID.String()},
			})
			if err != nil {
				return nil, err
			}
			if invoice, err = s.recomputeInvoiceTx(ctx, tx, invoice.ID); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}
	return invoice, nil
}
