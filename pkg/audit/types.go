package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action codes follow a dotted "<area>.<operation>" convention.
const (
	ActionAuthLogin   = "auth.login"
	ActionAuthRefresh = "auth.refresh"
	ActionAuthLogout  = "auth.logout"

	ActionTenantCreate   = "tenant.create"
	ActionTenantUpdate   = "tenant.update"
	ActionTenantSuspend  = "tenant.suspend"
	ActionTenantActivate = "tenant.activate"
	ActionTenantDelete   = "tenant.delete"

	ActionRoleCreate     = "rbac.role.create"
	ActionRoleUpdate     = "rbac.role.update"
	ActionRoleDelete     = "rbac.role.delete"
	ActionRoleAssign     = "rbac.user_role.assign"
	ActionRoleUnassign   = "rbac.user_role.unassign"
	ActionOverrideUpsert = "rbac.override.upsert"
	ActionOverrideRemove = "rbac.override.remove"

	ActionEnrollmentCreate          = "enrollment.create"
	ActionEnrollmentUpdate          = "enrollment.update"
	ActionEnrollmentSubmit          = "enrollment.submit"
	ActionEnrollmentApprove         = "enrollment.approve"
	ActionEnrollmentReject          = "enrollment.reject"
	ActionEnrollmentEnroll          = "enrollment.enroll"
	ActionEnrollmentTransferRequest = "enrollment.transfer.request"
	ActionEnrollmentTransferApprove = "enrollment.transfer.approve"

	ActionPolicyUpsert          = "finance.policy.upsert"
	ActionFeeCategoryCreate     = "fees.category.create"
	ActionFeeItemCreate         = "fees.item.create"
	ActionFeeStructureCreate    = "fees.structure.create"
	ActionFeeStructureUpdate    = "fees.structure.update"
	ActionFeeStructureDelete    = "fees.structure.delete"
	ActionStructureItemsReplace = "fees.structure.items.replace"
	ActionStructureItemUpsert   = "fees.structure.item.upsert"
	ActionStructureItemRemove   = "fees.structure.item.remove"
	ActionStructureAssign       = "fees.structure.assign"
	ActionScholarshipCreate     = "scholarship.create"
	ActionInvoiceCreate         = "invoice.create"
	ActionScholarshipApply      = "invoice.scholarship.apply"
	ActionPaymentCreate         = "payment.create"
)

// Resource type names used in audit rows.
const (
	ResourceTenant        = "tenant"
	ResourceRole          = "role"
	ResourceUserRole      = "user_role"
	ResourceOverride      = "user_permission_override"
	ResourceSession       = "auth_session"
	ResourceEnrollment    = "enrollment"
	ResourceFinancePolicy = "finance_policy"
	ResourceFeeCategory   = "fee_category"
	ResourceFeeItem       = "fee_item"
	ResourceFeeStructure  = "fee_structure"
	ResourceFeeAssignment = "student_fee_assignment"
	ResourceScholarship   = "scholarship"
	ResourceInvoice       = "invoice"
	ResourcePayment       = "payment"
)

// Event is a single audit log entry.
type Event struct {
	ID          uuid.UUID              `json:"id"`
	TenantID    uuid.UUID              `json:"tenant_id"`
	ActorUserID *uuid.UUID             `json:"actor_user_id,omitempty"`
	Action      string                 `json:"action"`
	Resource    string                 `json:"resource"`
	ResourceID  *uuid.UUID             `json:"resource_id,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Recorder accepts audit events. Implementations must never block the
// caller's request path and must never surface sink failures.
type Recorder interface {
	Record(event Event)
}

// NopRecorder discards all events. Used in tests.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}
