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
	"github.com/shulecore/shulecore/pkg/audit"
)

// captureRecorder collects events synchronously for assertions.
type captureRecorder struct {
	events []audit.Event
}

func (r *captureRecorder) Record(event audit.Event) {
	r.events = append(r.events, event)
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *captureRecorder, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	recorder := &captureRecorder{}
	svc := NewService(NewStore(db), recorder, nil, Hooks{})
	return svc, mock, recorder, func() { db.Close() }
}

func TestService_CreatePayment_ReportsRejectionReasons(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var reasons []string
	svc := NewService(NewStore(db), nil, nil, Hooks{
		OnPaymentRejected: func(reason string) { reasons = append(reasons, reason) },
	})

	ctx := context.Background()
	tenantID := uuid.New()
	invoiceID := uuid.New()

	svc.CreatePayment(ctx, tenantID, nil, "BITCOIN", nil, 100, []AllocationInput{{InvoiceID: invoiceID, Amount: 100}})
	svc.CreatePayment(ctx, tenantID, nil, "CASH", nil, 0, []AllocationInput{{InvoiceID: invoiceID, Amount: 100}})
	svc.CreatePayment(ctx, tenantID, nil, "CASH", nil, 100, nil)
	svc.CreatePayment(ctx, tenantID, nil, "CASH", nil, 100, []AllocationInput{{InvoiceID: invoiceID, Amount: 99.99}})

	assert.Equal(t, []string{"provider", "amount", "no_allocations", "sum_mismatch"}, reasons)
}

func TestService_CreatePayment_ReportsProviderOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var recorded []string
	svc := NewService(NewStore(db), nil, nil, Hooks{
		OnPaymentRecorded: func(provider string) { recorded = append(recorded, provider) },
	})

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
		}).AddRow(paymentID, tenantID, "MPESA", nil, 500.0, "KES", now, nil))
	mock.ExpectExec("INSERT INTO payment_allocations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, invoiceID, tenantID, InvoiceTypeInterview, 500, 500)
	mock.ExpectCommit()

	_, err = svc.CreatePayment(context.Background(), tenantID, nil, "MPESA", nil, 500,
		[]AllocationInput{{InvoiceID: invoiceID, Amount: 500}})
	require.NoError(t, err)
	assert.Equal(t, []string{"MPESA"}, recorded)
}

func TestService_CreateInvoice_ReportsType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var types []string
	svc := NewService(NewStore(db), nil, nil, Hooks{
		OnInvoiceCreated: func(invoiceType string) { types = append(types, invoiceType) },
	})

	tenantID := uuid.New()
	invoiceID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(invoiceRows(invoiceID, tenantID, InvoiceTypeInterview, InvoiceStatusDraft, 0, 0))
	expectRecompute(mock, invoiceID, tenantID, InvoiceTypeInterview, 0, 0)
	mock.ExpectCommit()

	_, err = svc.CreateInvoice(context.Background(), tenantID, nil, "interview", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{InvoiceTypeInterview}, types)
}

func TestService_CreatePayment_RejectsBadInput(t *testing.T) {
	svc, _, recorder, done := newTestService(t)
	defer done()

	ctx := context.Background()
	tenantID := uuid.New()
	invoiceID := uuid.New()

	tests := []struct {
		name        string
		provider    string
		amount      float64
		allocations []AllocationInput
	}{
		{"unknown provider", "BITCOIN", 100, []AllocationInput{{InvoiceID: invoiceID, Amount: 100}}},
		{"zero amount", "CASH", 0, []AllocationInput{{InvoiceID: invoiceID, Amount: 100}}},
		{"negative amount", "CASH", -5, []AllocationInput{{InvoiceID: invoiceID, Amount: 100}}},
		{"no allocations", "CASH", 100, nil},
		{"duplicate invoice", "CASH", 100, []AllocationInput{
			{InvoiceID: invoiceID, Amount: 50}, {InvoiceID: invoiceID, Amount: 50},
		}},
		{"non-positive allocation", "CASH", 100, []AllocationInput{
			{InvoiceID: invoiceID, Amount: 100}, {InvoiceID: uuid.New(), Amount: 0},
		}},
		{"sum mismatch", "CASH", 100, []AllocationInput{{InvoiceID: invoiceID, Amount: 99.99}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreatePayment(ctx, tenantID, nil, tt.provider, nil, tt.amount, tt.allocations)
			assert.True(t, apperrors.IsValidationFailed(err))
		})
	}
	// Nothing reached the store, nothing was audited.
	assert.Empty(t, recorder.events)
}

func TestService_CreateScholarship_RejectsBadInput(t *testing.T) {
	svc, _, _, done := newTestService(t)
	defer done()

	_, err := svc.CreateScholarship(context.Background(), uuid.New(), nil, "Merit", "HALF_OFF", 50, true)
	assert.True(t, apperrors.IsValidationFailed(err))

	_, err = svc.CreateScholarship(context.Background(), uuid.New(), nil, "Merit", "PERCENT", 0, true)
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestService_CreateInvoice_RejectsBadType(t *testing.T) {
	svc, _, _, done := newTestService(t)
	defer done()

	_, err := svc.CreateInvoice(context.Background(), uuid.New(), nil, "RANDOM", nil, nil)
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestService_UpsertPolicy_RejectsBadThresholds(t *testing.T) {
	svc, _, _, done := newTestService(t)
	defer done()

	_, err := svc.UpsertPolicy(context.Background(), uuid.New(), nil, PolicyUpdate{MinPercentToEnroll: intPtr(101)})
	assert.True(t, apperrors.IsValidationFailed(err))

	_, err = svc.UpsertPolicy(context.Background(), uuid.New(), nil, PolicyUpdate{MinAmountToEnroll: floatPtr(-1)})
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestService_AddOrUpdateStructureItem_RejectsAmbiguousItem(t *testing.T) {
	svc, _, _, done := newTestService(t)
	defer done()

	itemID := uuid.New()
	inline := &InlineFeeItem{CategoryID: uuid.New(), Code: "tuition", Name: "Tuition"}

	_, err := svc.AddOrUpdateStructureItem(context.Background(), uuid.New(), nil, uuid.New(), &itemID, inline, 100)
	assert.True(t, apperrors.IsValidationFailed(err))

	_, err = svc.AddOrUpdateStructureItem(context.Background(), uuid.New(), nil, uuid.New(), nil, nil, 100)
	assert.True(t, apperrors.IsValidationFailed(err))

	_, err = svc.AddOrUpdateStructureItem(context.Background(), uuid.New(), nil, uuid.New(), &itemID, nil, 0)
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestService_CreateFeeCategory_NormalizesCodeAndAudits(t *testing.T) {
	svc, mock, recorder, done := newTestService(t)
	defer done()

	tenantID := uuid.New()
	mock.ExpectQuery("INSERT INTO fee_categories").
		WithArgs(tenantID, "tuition", "Tuition", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "code", "name", "is_active", "created_at"}).
			AddRow(uuid.New(), tenantID, "tuition", "Tuition", true, time.Now()))

	category, err := svc.CreateFeeCategory(context.Background(), tenantID, nil, "  TUITION ", "Tuition", true)
	require.NoError(t, err)
	assert.Equal(t, "tuition", category.Code)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, audit.ActionFeeCategoryCreate, recorder.events[0].Action)
	assert.Equal(t, "tuition", recorder.events[0].Payload["code"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_AssignStructure_SoftFailsInvoiceGeneration(t *testing.T) {
	svc, mock, recorder, done := newTestService(t)
	defer done()

	tenantID := uuid.New()
	structureID := uuid.New()
	enrollmentID := uuid.New()
	now := time.Now()

	structureRow := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "tenant_id", "class_code", "name", "is_active", "created_at"}).
			AddRow(structureID, tenantID, "G1", "Grade 1 Fees", true, now)
	}

	mock.ExpectQuery("SELECT (.+) FROM fee_structures").WillReturnRows(structureRow())
	mock.ExpectQuery("SELECT (.+) FROM fee_structures").WillReturnRows(structureRow())
	mock.ExpectQuery("INSERT INTO student_fee_assignments").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "enrollment_id", "fee_structure_id", "status", "assigned_at",
		}).AddRow(uuid.New(), tenantID, enrollmentID, structureID, "assigned", now))
	// Invoice generation finds the structure but zero items; the assignment
	// survives the ValidationFailed.
	mock.ExpectQuery("SELECT (.+) FROM fee_structures").WillReturnRows(structureRow())
	mock.ExpectQuery("SELECT si.fee_item_id").
		WillReturnRows(sqlmock.NewRows([]string{
			"fee_item_id", "amount", "code", "name", "id", "code", "name",
		}))

	assignment, err := svc.AssignStructure(context.Background(), tenantID, nil, enrollmentID, structureID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, structureID, assignment.FeeStructureID)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, audit.ActionStructureAssign, recorder.events[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}
