package enrollment

import (
	"time"

	"github.com/google/uuid"
)

// Status is an enrollment's position in the admission state machine.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusSubmitted         Status = "SUBMITTED"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusFullyEnrolled     Status = "FULLY_ENROLLED"
	StatusEnrolledPartial   Status = "ENROLLED_PARTIAL"
	StatusTransferRequested Status = "TRANSFER_REQUESTED"
	StatusTransferred       Status = "TRANSFERRED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected,
		StatusFullyEnrolled, StatusEnrolledPartial, StatusTransferRequested, StatusTransferred:
		return true
	}
	return false
}

// editLocked reports whether payload edits are forbidden in this status.
func (s Status) editLocked() bool {
	return s == StatusFullyEnrolled || s == StatusTransferred
}

// Payload field names required before an enrollment can be finalized.
const (
	FieldAssessmentNo = "assessment_no"
	FieldNemisNo      = "nemis_no"
)

// Payload keys that select a fee structure at creation time.
const (
	feeStructureKey       = "fee_structure_id"
	feeStructureKeyLegacy = "_fee_structure_id"
)

// Payload is the free-form applicant document, replaced wholesale on
// update.
type Payload map[string]interface{}

// field returns the named payload value as a non-empty string, or "".
func (p Payload) field(name string) string {
	if p == nil {
		return ""
	}
	value, ok := p[name].(string)
	if !ok {
		return ""
	}
	return value
}

// Enrollment is one admission application.
type Enrollment struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	StudentID *uuid.UUID `json:"student_id"`
	Status    Status     `json:"status"`
	Payload   Payload    `json:"payload"`
	CreatedBy *uuid.UUID `json:"created_by"`
	UpdatedBy *uuid.UUID `json:"updated_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
