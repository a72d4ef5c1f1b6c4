package enrollment

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulecore/shulecore/pkg/apperrors"
	"github.com/shulecore/shulecore/pkg/audit"
	"github.com/shulecore/shulecore/pkg/finance"
)

// stubGate serves canned finance eligibility without a ledger.
type stubGate struct {
	status    *finance.EnrollmentFinanceStatus
	assigned  []uuid.UUID
	assignErr error
}

func (g *stubGate) EnrollmentFinanceStatus(context.Context, uuid.UUID, uuid.UUID) (*finance.EnrollmentFinanceStatus, error) {
	return g.status, nil
}

func (g *stubGate) AssignStructure(_ context.Context, tenantID uuid.UUID, _ *uuid.UUID, enrollmentID, structureID uuid.UUID, _ bool, _ map[string]interface{}) (*finance.StudentFeeAssignment, error) {
	if g.assignErr != nil {
		return nil, g.assignErr
	}
	g.assigned = append(g.assigned, structureID)
	return &finance.StudentFeeAssignment{
		ID:             uuid.New(),
		TenantID:       tenantID,
		EnrollmentID:   enrollmentID,
		FeeStructureID: structureID,
	}, nil
}

type captureRecorder struct {
	events []audit.Event
}

func (r *captureRecorder) Record(event audit.Event) {
	r.events = append(r.events, event)
}

func financeStatus(interviewPaid, feesPaid, feesPartial bool) *finance.EnrollmentFinanceStatus {
	return &finance.EnrollmentFinanceStatus{
		Policy:    &finance.Policy{RequireInterviewFeeBeforeSubmit: true},
		Interview: finance.InvoiceEligibility{PaidOK: interviewPaid},
		Fees:      finance.InvoiceEligibility{PaidOK: feesPaid, PartialOK: feesPartial},
	}
}

func newTestService(t *testing.T, gate FinanceGate) (*Service, sqlmock.Sqlmock, *captureRecorder, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	recorder := &captureRecorder{}
	svc := NewService(NewStore(db), gate, recorder, Hooks{})
	return svc, mock, recorder, func() { db.Close() }
}

func TestService_Create_AssignsSelectedFeeStructure(t *testing.T) {
	gate := &stubGate{}
	svc, mock, recorder, done := newTestService(t, gate)
	defer done()

	tenantID := uuid.New()
	structureID := uuid.New()
	payload := `{"fee_structure_id":"` + structureID.String() + `"}`
	mock.ExpectQuery("INSERT INTO enrollments").
		WillReturnRows(enrollmentRows(uuid.New(), tenantID, StatusDraft, payload))

	_, err := svc.Create(context.Background(), tenantID, nil, Payload{"fee_structure_id": structureID.String()})
	require.NoError(t, err)
	require.Len(t, gate.assigned, 1)
	assert.Equal(t, structureID, gate.assigned[0])
	require.Len(t, recorder.events, 1)
	assert.Equal(t, audit.ActionEnrollmentCreate, recorder.events[0].Action)
}

func TestService_Create_RollsBackWhenAssignmentFails(t *testing.T) {
	gate := &stubGate{assignErr: apperrors.E(apperrors.KindNotFound, "fee structure not found")}
	svc, mock, recorder, done := newTestService(t, gate)
	defer done()

	tenantID := uuid.New()
	id := uuid.New()
	structureID := uuid.New()
	payload := `{"fee_structure_id":"` + structureID.String() + `"}`
	mock.ExpectQuery("INSERT INTO enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusDraft, payload))
	mock.ExpectExec("DELETE FROM enrollments").
		WithArgs(tenantID, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Create(context.Background(), tenantID, nil, Payload{"fee_structure_id": structureID.String()})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, recorder.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Hooks_ObserveTransitionsAndGuardFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var transitions []Status
	var guardFails []string
	svc := NewService(NewStore(db), &stubGate{status: financeStatus(true, false, false)}, audit.NopRecorder{}, Hooks{
		OnTransition: func(to Status) { transitions = append(transitions, to) },
		OnGuardFail:  func(transition string) { guardFails = append(guardFails, transition) },
	})

	tenantID := uuid.New()
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusDraft, "{}"))
	mock.ExpectQuery("UPDATE enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusSubmitted, "{}"))
	_, err = svc.Submit(context.Background(), tenantID, nil, id)
	require.NoError(t, err)

	// A second submit is refused by the status guard.
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusSubmitted, "{}"))
	_, err = svc.Submit(context.Background(), tenantID, nil, id)
	require.Error(t, err)

	assert.Equal(t, []Status{StatusSubmitted}, transitions)
	assert.Equal(t, []string{"submit"}, guardFails)
}

func TestService_Submit_RequiresDraft(t *testing.T) {
	svc, mock, _, done := newTestService(t, &stubGate{status: financeStatus(true, false, false)})
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(uuid.New(), uuid.New(), StatusSubmitted, "{}"))

	_, err := svc.Submit(context.Background(), uuid.New(), nil, uuid.New())
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestService_Submit_BlockedByUnpaidInterviewFee(t *testing.T) {
	svc, mock, recorder, done := newTestService(t, &stubGate{status: financeStatus(false, false, false)})
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(uuid.New(), uuid.New(), StatusDraft, "{}"))

	_, err := svc.Submit(context.Background(), uuid.New(), nil, uuid.New())
	assert.True(t, apperrors.IsValidationFailed(err))
	assert.Empty(t, recorder.events)
}

func TestService_Submit_Succeeds(t *testing.T) {
	svc, mock, recorder, done := newTestService(t, &stubGate{status: financeStatus(true, false, false)})
	defer done()

	tenantID := uuid.New()
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusDraft, "{}"))
	mock.ExpectQuery("UPDATE enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusSubmitted, "{}"))

	enrollment, err := svc.Submit(context.Background(), tenantID, nil, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, enrollment.Status)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, audit.ActionEnrollmentSubmit, recorder.events[0].Action)
	assert.Equal(t, "SUBMITTED", recorder.events[0].Payload["status"])
}

func TestService_Submit_PolicyWaivesInterviewFee(t *testing.T) {
	status := financeStatus(false, false, false)
	status.Policy.RequireInterviewFeeBeforeSubmit = false
	svc, mock, _, done := newTestService(t, &stubGate{status: status})
	defer done()

	tenantID := uuid.New()
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusDraft, "{}"))
	mock.ExpectQuery("UPDATE enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusSubmitted, "{}"))

	_, err := svc.Submit(context.Background(), tenantID, nil, id)
	assert.NoError(t, err)
}

func TestService_MarkEnrolled_FullClearance(t *testing.T) {
	svc, mock, _, done := newTestService(t, &stubGate{status: financeStatus(true, true, true)})
	defer done()

	tenantID := uuid.New()
	id := uuid.New()
	payload := `{"assessment_no":"A-1","nemis_no":"N-1"}`
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusApproved, payload))
	mock.ExpectQuery("UPDATE enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusFullyEnrolled, payload))

	enrollment, err := svc.MarkEnrolled(context.Background(), tenantID, nil, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFullyEnrolled, enrollment.Status)
}

func TestService_MarkEnrolled_PartialUnderPolicy(t *testing.T) {
	// Fees at 60% with a 50% threshold: partial passes, full does not.
	svc, mock, _, done := newTestService(t, &stubGate{status: financeStatus(true, false, true)})
	defer done()

	tenantID := uuid.New()
	id := uuid.New()
	payload := `{"assessment_no":"A-1","nemis_no":"N-1"}`
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusSubmitted, payload))
	mock.ExpectQuery("UPDATE enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusEnrolledPartial, payload))

	enrollment, err := svc.MarkEnrolled(context.Background(), tenantID, nil, id)
	require.NoError(t, err)
	assert.Equal(t, StatusEnrolledPartial, enrollment.Status)
}

func TestService_MarkEnrolled_BelowThresholdFails(t *testing.T) {
	// Fees at 40% with a 50% threshold: neither paid nor partial-ok.
	svc, mock, _, done := newTestService(t, &stubGate{status: financeStatus(true, false, false)})
	defer done()

	payload := `{"assessment_no":"A-1","nemis_no":"N-1"}`
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(uuid.New(), uuid.New(), StatusApproved, payload))

	_, err := svc.MarkEnrolled(context.Background(), uuid.New(), nil, uuid.New())
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestService_MarkEnrolled_MissingIdentifiers(t *testing.T) {
	svc, mock, _, done := newTestService(t, &stubGate{status: financeStatus(true, true, true)})
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(uuid.New(), uuid.New(), StatusApproved, `{"assessment_no":"A-1"}`))

	_, err := svc.MarkEnrolled(context.Background(), uuid.New(), nil, uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationFailed(err))
	assert.Contains(t, err.Error(), "nemis_no")
}

func TestService_ApproveTransfer_DemandsFullClearance(t *testing.T) {
	// Partial-ok never satisfies transfer finalization.
	svc, mock, _, done := newTestService(t, &stubGate{status: financeStatus(true, false, true)})
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(uuid.New(), uuid.New(), StatusTransferRequested, `{"assessment_no":"A-1","nemis_no":"N-1"}`))

	_, err := svc.ApproveTransfer(context.Background(), uuid.New(), nil, uuid.New())
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestService_ApproveTransfer_Succeeds(t *testing.T) {
	svc, mock, _, done := newTestService(t, &stubGate{status: financeStatus(true, true, true)})
	defer done()

	tenantID := uuid.New()
	id := uuid.New()
	payload := `{"assessment_no":"A-1","nemis_no":"N-1"}`
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusTransferRequested, payload))
	mock.ExpectQuery("UPDATE enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusTransferred, payload))

	enrollment, err := svc.ApproveTransfer(context.Background(), tenantID, nil, id)
	require.NoError(t, err)
	assert.Equal(t, StatusTransferred, enrollment.Status)
}

func TestService_Update_EditLockedWhenFinalized(t *testing.T) {
	svc, mock, _, done := newTestService(t, &stubGate{})
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(uuid.New(), uuid.New(), StatusFullyEnrolled, "{}"))

	_, err := svc.Update(context.Background(), uuid.New(), nil, uuid.New(), Payload{"x": "y"})
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestService_Reject_RecordsReason(t *testing.T) {
	svc, mock, recorder, done := newTestService(t, &stubGate{})
	defer done()

	tenantID := uuid.New()
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusSubmitted, "{}"))
	mock.ExpectQuery("UPDATE enrollments").
		WillReturnRows(enrollmentRows(id, tenantID, StatusRejected, "{}"))

	_, err := svc.Reject(context.Background(), tenantID, nil, id, "incomplete documents")
	require.NoError(t, err)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, audit.ActionEnrollmentReject, recorder.events[0].Action)
	assert.Equal(t, "incomplete documents", recorder.events[0].Payload["reason"])
}

func TestService_RequestTransfer_RequiresEnrolledState(t *testing.T) {
	svc, mock, _, done := newTestService(t, &stubGate{})
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM enrollments").
		WillReturnRows(enrollmentRows(uuid.New(), uuid.New(), StatusDraft, "{}"))

	_, err := svc.RequestTransfer(context.Background(), uuid.New(), nil, uuid.New())
	assert.True(t, apperrors.IsValidationFailed(err))
}
