package enrollment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
	"github.com/shulecore/shulecore/pkg/audit"
	"github.com/shulecore/shulecore/pkg/finance"
)

// FinanceGate is the slice of the finance service the state machine
// consults: eligibility reads and the fee-structure assignment side
// effect at creation.
type FinanceGate interface {
	EnrollmentFinanceStatus(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*finance.EnrollmentFinanceStatus, error)
	AssignStructure(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, enrollmentID, structureID uuid.UUID, generateInvoice bool, meta map[string]interface{}) (*finance.StudentFeeAssignment, error)
}

// Hooks are optional metric callbacks; any field may be nil.
type Hooks struct {
	OnTransition func(to Status)
	OnGuardFail  func(transition string)
}

// Service runs the enrollment state machine. Authorization happens
// before calls reach this layer.
type Service struct {
	store    *Store
	finance  FinanceGate
	recorder audit.Recorder
	hooks    Hooks
}

// NewService creates an enrollment service. recorder may be nil.
func NewService(store *Store, financeGate FinanceGate, recorder audit.Recorder, hooks Hooks) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{store: store, finance: financeGate, recorder: recorder, hooks: hooks}
}

// guardFail reports a refused transition attempt.
func (s *Service) guardFail(transition string) {
	if s.hooks.OnGuardFail != nil {
		s.hooks.OnGuardFail(transition)
	}
}

// Create opens a DRAFT enrollment. A fee-structure selector in the
// payload immediately links the enrollment to that structure; when the
// assignment fails the fresh enrollment row is deleted again, so the
// caller never holds an enrollment with a half-applied selection.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, payload Payload) (*Enrollment, error) {
	enrollment, err := s.store.Create(ctx, tenantID, actor, payload)
	if err != nil {
		return nil, err
	}

	if structureID, ok := feeStructureSelector(payload); ok {
		if _, err := s.finance.AssignStructure(ctx, tenantID, actor, enrollment.ID, structureID, false, nil); err != nil {
			if delErr := s.store.Delete(ctx, tenantID, enrollment.ID); delErr != nil {
				return nil, delErr
			}
			return nil, err
		}
	}

	s.record(enrollment, actor, audit.ActionEnrollmentCreate, nil)
	return enrollment, nil
}

func feeStructureSelector(payload Payload) (uuid.UUID, bool) {
	raw := payload.field(feeStructureKeyLegacy)
	if raw == "" {
		raw = payload.field(feeStructureKey)
	}
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Get returns one enrollment.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Enrollment, error) {
	return s.store.Get(ctx, tenantID, id)
}

// List returns enrollments, optionally narrowed by status.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, status Status) ([]*Enrollment, error) {
	if status != "" && !status.Valid() {
		return nil, apperrors.E(apperrors.KindValidationFailed, "unknown enrollment status")
	}
	return s.store.List(ctx, tenantID, status)
}

// Update replaces the payload wholesale. Finalized enrollments are
// edit-locked.
func (s *Service) Update(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, id uuid.UUID, payload Payload) (*Enrollment, error) {
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status.editLocked() {
		return nil, apperrors.E(apperrors.KindValidationFailed, "cannot edit enrollment in this status")
	}

	enrollment, err := s.store.ReplacePayload(ctx, tenantID, id, actor, current.Status, payload)
	if err != nil {
		return nil, err
	}
	s.record(enrollment, actor, audit.ActionEnrollmentUpdate, nil)
	return enrollment, nil
}

// Submit moves DRAFT to SUBMITTED. When the tenant's policy requires the
// interview fee before submission, the INTERVIEW invoice must be PAID.
func (s *Service) Submit(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, id uuid.UUID) (*Enrollment, error) {
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusDraft {
		s.guardFail("submit")
		return nil, apperrors.E(apperrors.KindValidationFailed, "only DRAFT enrollments can be submitted")
	}

	status, err := s.finance.EnrollmentFinanceStatus(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if status.Policy.RequireInterviewFeeBeforeSubmit && !status.Interview.PaidOK {
		s.guardFail("submit")
		return nil, apperrors.E(apperrors.KindValidationFailed, "interview fee must be fully paid before submission")
	}

	return s.transition(ctx, tenantID, actor, id, current.Status, StatusSubmitted, audit.ActionEnrollmentSubmit, nil)
}

// Approve moves SUBMITTED to APPROVED.
func (s *Service) Approve(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, id uuid.UUID) (*Enrollment, error) {
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusSubmitted {
		s.guardFail("approve")
		return nil, apperrors.E(apperrors.KindValidationFailed, "only SUBMITTED enrollments can be approved")
	}
	return s.transition(ctx, tenantID, actor, id, current.Status, StatusApproved, audit.ActionEnrollmentApprove, nil)
}

// Reject moves SUBMITTED or APPROVED to REJECTED, recording an optional
// reason.
func (s *Service) Reject(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, id uuid.UUID, reason string) (*Enrollment, error) {
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusSubmitted && current.Status != StatusApproved {
		s.guardFail("reject")
		return nil, apperrors.E(apperrors.KindValidationFailed, "only SUBMITTED or APPROVED enrollments can be rejected")
	}

	var extra map[string]interface{}
	if reason = strings.TrimSpace(reason); reason != "" {
		extra = map[string]interface{}{"reason": reason}
	}
	return s.transition(ctx, tenantID, actor, id, current.Status, StatusRejected, audit.ActionEnrollmentReject, extra)
}

// MarkEnrolled finalizes an admission: FULLY_ENROLLED when school fees
// are cleared, ENROLLED_PARTIAL when the policy's partial test passes.
// The interview fee must be settled and the assessment and NEMIS
// identifiers must be present either way.
func (s *Service) MarkEnrolled(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, id uuid.UUID) (*Enrollment, error) {
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusSubmitted && current.Status != StatusApproved {
		s.guardFail("mark_enrolled")
		return nil, apperrors.E(apperrors.KindValidationFailed, "enrollment must be SUBMITTED or APPROVED first")
	}
	if err := requirePayloadFields(current.Payload, FieldAssessmentNo, FieldNemisNo); err != nil {
		s.guardFail("mark_enrolled")
		return nil, err
	}

	status, err := s.finance.EnrollmentFinanceStatus(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !status.Interview.PaidOK {
		s.guardFail("mark_enrolled")
		return nil, apperrors.E(apperrors.KindValidationFailed, "interview fee must be fully paid")
	}

	var target Status
	switch {
	case status.Fees.PaidOK:
		target = StatusFullyEnrolled
	case status.Fees.PartialOK:
		target = StatusEnrolledPartial
	default:
		s.guardFail("mark_enrolled")
		return nil, apperrors.E(apperrors.KindValidationFailed, "school fees not cleared and partial enrollment policy not satisfied")
	}

	return s.transition(ctx, tenantID, actor, id, current.Status, target, audit.ActionEnrollmentEnroll, nil)
}

// RequestTransfer moves an enrolled student to TRANSFER_REQUESTED.
func (s *Service) RequestTransfer(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, id uuid.UUID) (*Enrollment, error) {
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusFullyEnrolled && current.Status != StatusEnrolledPartial {
		s.guardFail("request_transfer")
		return nil, apperrors.E(apperrors.KindValidationFailed, "only enrolled students can request transfer")
	}
	return s.transition(ctx, tenantID, actor, id, current.Status, StatusTransferRequested, audit.ActionEnrollmentTransferRequest, nil)
}

// ApproveTransfer finalizes a transfer. School fees must be fully
// cleared; the partial-enrollment policy never applies here.
func (s *Service) ApproveTransfer(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, id uuid.UUID) (*Enrollment, error) {
	current, err := s.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusTransferRequested {
		s.guardFail("approve_transfer")
		return nil, apperrors.E(apperrors.KindValidationFailed, "transfer must be requested first")
	}

	status, err := s.finance.EnrollmentFinanceStatus(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !status.Fees.PaidOK {
		s.guardFail("approve_transfer")
		return nil, apperrors.E(apperrors.KindValidationFailed, "school fees must be fully cleared before transfer is approved")
	}
	if err := requirePayloadFields(current.Payload, FieldAssessmentNo, FieldNemisNo); err != nil {
		s.guardFail("approve_transfer")
		return nil, err
	}

	return s.transition(ctx, tenantID, actor, id, current.Status, StatusTransferred, audit.ActionEnrollmentTransferApprove, nil)
}

func (s *Service) transition(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, id uuid.UUID, from, to Status, action string, extra map[string]interface{}) (*Enrollment, error) {
	enrollment, err := s.store.Transition(ctx, tenantID, id, actor, from, to)
	if err != nil {
		return nil, err
	}
	if s.hooks.OnTransition != nil {
		s.hooks.OnTransition(to)
	}
	s.record(enrollment, actor, action, extra)
	return enrollment, nil
}

func requirePayloadFields(payload Payload, fields ...string) error {
	var missing []string
	for _, field := range fields {
		if payload.field(field) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return apperrors.Errorf(apperrors.KindValidationFailed,
			"missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) record(enrollment *Enrollment, actor *uuid.UUID, action string, extra map[string]interface{}) {
	payload := map[string]interface{}{"status": string(enrollment.Status)}
	for key, value := range extra {
		payload[key] = value
	}
	s.recorder.Record(audit.Event{
		TenantID:    enrollment.TenantID,
		ActorUserID: actor,
		Action:      action,
		Resource:    audit.ResourceEnrollment,
		ResourceID:  &enrollment.ID,
		Payload:     payload,
	})
}
