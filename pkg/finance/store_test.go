package finance

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, func() { db.Close() }
}

func invoiceRows(id, tenantID uuid.UUID, invoiceType, status string, total, paid float64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "invoice_no", "invoice_type", "status", "enrollment_id",
		"currency", "total_amount", "paid_amount", "balance_amount", "meta", "created_at", "updated_at",
	}).AddRow(id, tenantID, "INV-AB12CD34", invoiceType, status, nil, "KES", total, paid, total-paid, nil, now, now)
}

func expectRecompute(mock sqlmock.Sqlmock, invoiceID, tenantID uuid.UUID, invoiceType string, lineSum, allocSum float64) {
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM invoice_lines`).
		WithArgs(invoiceID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(lineSum))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM payment_allocations`).
		WithArgs(invoiceID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(allocSum))
	mock.ExpectQuery("UPDATE invoices").
		WillReturnRows(invoiceRows(invoiceID, tenantID, invoiceType, DeriveInvoiceStatus(lineSum, allocSum), lineSum, allocSum))
}

func TestStore_GetOrCreatePolicy_DefaultsOnFirstRead(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	tenantID := uuid.New()
	now := time.Now()
	mock.ExpectQuery("INSERT INTO finance_policies").
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "allow_partial_enrollment", "min_percent_to_enroll",
			"min_amount_to_enroll", "require_interview_fee_before_submit", "created_at", "updated_at",
		}).AddRow(uuid.New(), tenantID, false, nil, nil, true, now, now))

	policy, err := store.GetOrCreatePolicy(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, policy.AllowPartialEnrollment)
	assert.True(t, policy.RequireInterviewFeeBeforeSubmit)
	assert.Nil(t, policy.MinPercentToEnroll)
	assert.Nil(t, policy.MinAmountToEnroll)
}

func TestStore_CreatePayment_RecomputesLockedInvoices(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	tenantID := uuid.New()
	invoiceID := uuid.New()
	paymentID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, balance_amount FROM invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance_amount"}).AddRow(invoiceID, 500.0))
	mock.ExpectQuery("INSERT INTO payments").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "provider", "reference", "amount", "currency", "received_at", "created_by",
		}).AddRow(paymentID, tenantID, "MPESA", "TX123", 500.0, "KES", now, nil))
	mock.ExpectExec("INSERT INTO payment_allocations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, invoiceID, tenantID, InvoiceTypeInterview, 500, 500)
	mock.ExpectCommit()

	reference := "TX123"
	view, err := store.CreatePayment(context.Background(), tenantID, nil, "MPESA", &reference, 500,
		[]AllocationInput{{InvoiceID: invoiceID, Amount: 500}})
	require.NoError(t, err)
	assert.Equal(t, paymentID, view.ID)
	require.Len(t, view.Allocations, 1)
	assert.Equal(t, invoiceID, view.Allocations[0].InvoiceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreatePayment_AllocationExceedsBalance(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	invoiceID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, balance_amount FROM invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance_amount"}).AddRow(invoiceID, 100.0))
	mock.ExpectRollback()

	_, err := store.CreatePayment(context.Background(), uuid.New(), nil, "CASH", nil, 200,
		[]AllocationInput{{InvoiceID: invoiceID, Amount: 200}})
	assert.True(t, apperrors.IsValidationFailed(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreatePayment_FullyPaidInvoiceRejected(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	invoiceID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, balance_amount FROM invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance_amount"}).AddRow(invoiceID, 0.0))
	mock.ExpectRollback()

	_, err := store.CreatePayment(context.Background(), uuid.New(), nil, "CASH", nil, 50,
		[]AllocationInput{{InvoiceID: invoiceID, Amount: 50}})
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestStore_CreatePayment_ForeignInvoiceNotFound(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	mock.ExpectBegin()
	// The lock query matches nothing: the invoice belongs to another tenant.
	mock.ExpectQuery("SELECT id, balance_amount FROM invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id", "balance_amount"}))
	mock.ExpectRollback()

	_, err := store.CreatePayment(context.Background(), uuid.New(), nil, "CASH", nil, 50,
		[]AllocationInput{{InvoiceID: uuid.New(), Amount: 50}})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_GenerateSchoolFeesInvoice_AppliesPercentScholarship(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	tenantID := uuid.New()
	enrollmentID := uuid.New()
	structureID := uuid.New()
	scholarshipID := uuid.New()
	invoiceID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM fee_structures").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "class_code", "name", "is_active", "created_at"}).
			AddRow(structureID, tenantID, "G1", "Grade 1 Fees", true, now))
	mock.ExpectQuery("SELECT si.fee_item_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"fee_item_id", "amount", "code", "name", "id", "code", "name",
		}).AddRow(uuid.New(), 1000.0, "tuition", "Tuition", uuid.New(), "academic", "Academic"))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM scholarships").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "type", "value", "is_active", "created_at"}).
			AddRow(scholarshipID, tenantID, "Merit", "PERCENT", 10.0, true, now))
	mock.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(invoiceRows(invoiceID, tenantID, InvoiceTypeSchoolFees, InvoiceStatusDraft, 0, 0))
	mock.ExpectExec("INSERT INTO invoice_lines").WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, invoiceID, tenantID, InvoiceTypeSchoolFees, 1000, 0)
	// Discount line: 10% of 1000 = 100, appended as -100.
	mock.ExpectExec("INSERT INTO invoice_lines").WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, invoiceID, tenantID, InvoiceTypeSchoolFees, 900, 0)
	mock.ExpectCommit()

	invoice, err := store.GenerateSchoolFeesInvoice(context.Background(), tenantID, enrollmentID, "G1", &scholarshipID)
	require.NoError(t, err)
	assert.Equal(t, 900.0, invoice.TotalAmount)
	assert.Equal(t, InvoiceStatusIssued, invoice.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GenerateSchoolFeesInvoice_EmptyStructureRejected(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	tenantID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM fee_structures").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "class_code", "name", "is_active", "created_at"}).
			AddRow(uuid.New(), tenantID, "G1", "Grade 1 Fees", true, time.Now()))
	mock.ExpectQuery("SELECT si.fee_item_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"fee_item_id", "amount", "code", "name", "id", "code", "name",
		}))

	_, err := store.GenerateSchoolFeesInvoice(context.Background(), tenantID, uuid.New(), "G1", nil)
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestStore_ReplaceStructureItems_RejectsDuplicates(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	tenantID := uuid.New()
	structureID := uuid.New()
	itemID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM fee_structures").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "class_code", "name", "is_active", "created_at"}).
			AddRow(structureID, tenantID, "G1", "Grade 1 Fees", true, time.Now()))

	err := store.ReplaceStructureItems(context.Background(), tenantID, structureID, []StructureItemInput{
		{FeeItemID: itemID, Amount: 100},
		{FeeItemID: itemID, Amount: 200},
	})
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestStore_ReplaceStructureItems_RejectsForeignItems(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	tenantID := uuid.New()
	structureID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM fee_structures").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "class_code", "name", "is_active", "created_at"}).
			AddRow(structureID, tenantID, "G1", "Grade 1 Fees", true, time.Now()))
	// Only one of the two items resolves within the tenant.
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM fee_items`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := store.ReplaceStructureItems(context.Background(), tenantID, structureID, []StructureItemInput{
		{FeeItemID: uuid.New(), Amount: 100},
		{FeeItemID: uuid.New(), Amount: 200},
	})
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestStore_EnrollmentFinanceStatus_PicksInvoicesByType(t *testing.T) {
	store, mock, done := newTestStore(t)
	defer done()

	tenantID := uuid.New()
	enrollmentID := uuid.New()
	interviewID := uuid.New()
	feesID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "invoice_no", "invoice_type", "status", "enrollment_id",
		"currency", "total_amount", "paid_amount", "balance_amount", "meta", "created_at", "updated_at",
	}).
		AddRow(feesID, tenantID, nil, InvoiceTypeSchoolFees, InvoiceStatusPartial, enrollmentID, "KES", 1000.0, 600.0, 400.0, nil, now, now).
		AddRow(interviewID, tenantID, nil, InvoiceTypeInterview, InvoiceStatusPaid, enrollmentID, "KES", 500.0, 500.0, 0.0, nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM invoices").WillReturnRows(rows)

	policyRows := sqlmock.NewRows([]string{
		"id", "tenant_id", "allow_partial_enrollment", "min_percent_to_enroll",
		"min_amount_to_enroll", "require_interview_fee_before_submit", "created_at", "updated_at",
	}).AddRow(uuid.New(), tenantID, true, 50, nil, true, now, now)
	mock.ExpectQuery("INSERT INTO finance_policies").WillReturnRows(policyRows)

	status, err := store.EnrollmentFinanceStatus(context.Background(), tenantID, enrollmentID)
	require.NoError(t, err)
	assert.True(t, status.Interview.PaidOK)
	assert.False(t, status.Fees.PaidOK)
	// 600 of 1000 paid clears the 50% threshold.
	assert.True(t, status.Fees.PartialOK)
	assert.Equal(t, &feesID, status.Fees.InvoiceID)
}
