package finance

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency is applied to invoices and payments that do not name
// one.
const DefaultCurrency = "KES"

// Invoice types.
const (
	InvoiceTypeInterview  = "INTERVIEW"
	InvoiceTypeSchoolFees = "SCHOOL_FEES"
)

// ValidInvoiceType reports whether t is a known invoice type.
func ValidInvoiceType(t string) bool {
	return t == InvoiceTypeInterview || t == InvoiceTypeSchoolFees
}

// Derived invoice statuses. Status is a projection of totals, never set
// directly.
const (
	InvoiceStatusDraft   = "DRAFT"
	InvoiceStatusIssued  = "ISSUED"
	InvoiceStatusPartial = "PARTIAL"
	InvoiceStatusPaid    = "PAID"
)

// Payment providers.
const (
	ProviderCash   = "CASH"
	ProviderMpesa  = "MPESA"
	ProviderBank   = "BANK"
	ProviderCheque = "CHEQUE"
)

// ValidProvider reports whether p is a known payment provider.
func ValidProvider(p string) bool {
	switch p {
	case ProviderCash, ProviderMpesa, ProviderBank, ProviderCheque:
		return true
	}
	return false
}

// Scholarship types.
const (
	ScholarshipPercent = "PERCENT"
	ScholarshipFixed   = "FIXED"
)

// ValidScholarshipType reports whether t is a known scholarship type.
func ValidScholarshipType(t string) bool {
	return t == ScholarshipPercent || t == ScholarshipFixed
}

// Policy holds a tenant's enrollment finance policy. One row per tenant,
// lazily created with defaults on first read.
type Policy struct {
	ID                              uuid.UUID `json:"id"`
	TenantID                        uuid.UUID `json:"tenant_id"`
	AllowPartialEnrollment          bool      `json:"allow_partial_enrollment"`
	MinPercentToEnroll              *int      `json:"min_percent_to_enroll"`
	MinAmountToEnroll               *float64  `json:"min_amount_to_enroll"`
	RequireInterviewFeeBeforeSubmit bool      `json:"require_interview_fee_before_submit"`
	CreatedAt                       time.Time `json:"created_at"`
	UpdatedAt                       time.Time `json:"updated_at"`
}

// PolicyUpdate carries partial policy changes; nil fields are untouched.
type PolicyUpdate struct {
	AllowPartialEnrollment          *bool    `json:"allow_partial_enrollment,omitempty"`
	MinPercentToEnroll              *int     `json:"min_percent_to_enroll,omitempty"`
	MinAmountToEnroll               *float64 `json:"min_amount_to_enroll,omitempty"`
	RequireInterviewFeeBeforeSubmit *bool    `json:"require_interview_fee_before_submit,omitempty"`
}

// FeeCategory is a catalog grouping node with a tenant-unique code.
type FeeCategory struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// FeeItem is a billable catalog entry under exactly one category.
type FeeItem struct {
	ID         uuid.UUID `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	CategoryID uuid.UUID `json:"category_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// CatalogFilter narrows catalog listings. Page numbering starts at 1;
// PageSize is capped at 500. Sort accepts "code" or "created_at" with a
// "-" prefix for descending order.
type CatalogFilter struct {
	Search     string
	CategoryID *uuid.UUID
	IsActive   *bool
	Page       int
	PageSize   int
	Sort       string
}

// FeeStructure is a priced bundle of fee items keyed by class code,
// unique per tenant.
type FeeStructure struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ClassCode string    `json:"class_code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// StructureUpdate carries partial structure changes.
type StructureUpdate struct {
	ClassCode *string `json:"class_code,omitempty"`
	Name      *string `json:"name,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

// StructureItemInput prices one fee item within a structure.
type StructureItemInput struct {
	FeeItemID uuid.UUID `json:"fee_item_id"`
	Amount    float64   `json:"amount"`
}

// InlineFeeItem lets a structure item create its fee item on the fly. If
// the code already exists in the same category the existing item is
// reused and refreshed; a code collision with a different category is an
// error.
type InlineFeeItem struct {
	CategoryID uuid.UUID `json:"category_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	IsActive   bool      `json:"is_active"`
}

// StructureItemDetail is a structure item joined with its fee item and
// category, as returned by detailed listings.
type StructureItemDetail struct {
	FeeItemID    uuid.UUID `json:"fee_item_id"`
	Amount       float64   `json:"amount"`
	FeeItemCode  string    `json:"fee_item_code"`
	FeeItemName  string    `json:"fee_item_name"`
	CategoryID   uuid.UUID `json:"category_id"`
	CategoryCode string    `json:"category_code"`
	CategoryName string    `json:"category_name"`
}

// Scholarship is a tenant-scoped discount, applied to generated invoices
// as one negative line.
type Scholarship struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Value     float64   `json:"value"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// StudentFeeAssignment links an enrollment to a fee structure.
type StudentFeeAssignment struct {
	ID             uuid.UUID              `json:"id"`
	TenantID       uuid.UUID              `json:"tenant_id"`
	EnrollmentID   uuid.UUID              `json:"enrollment_id"`
	FeeStructureID uuid.UUID              `json:"fee_structure_id"`
	Status         string                 `json:"status"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
	AssignedAt     time.Time              `json:"assigned_at"`
}

// Invoice carries derived totals. Status follows the derivation table in
// DeriveInvoiceStatus and is recomputed on every line or allocation
// change.
type Invoice struct {
	ID            uuid.UUID              `json:"id"`
	TenantID      uuid.UUID              `json:"tenant_id"`
	InvoiceNo     *string                `json:"invoice_no"`
	InvoiceType   string                 `json:"invoice_type"`
	Status        string                 `json:"status"`
	EnrollmentID  *uuid.UUID             `json:"enrollment_id"`
	Currency      string                 `json:"currency"`
	TotalAmount   float64                `json:"total_amount"`
	PaidAmount    float64                `json:"paid_amount"`
	BalanceAmount float64                `json:"balance_amount"`
	Meta          map[string]interface{} `json:"meta,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// InvoiceLine is one signed line on an invoice; negative amounts are
// discounts.
type InvoiceLine struct {
	ID          uuid.UUID              `json:"id"`
	InvoiceID   uuid.UUID              `json:"invoice_id"`
	Description string                 `json:"description"`
	Amount      float64                `json:"amount"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// LineInput is a caller-supplied invoice line.
type LineInput struct {
	Description string                 `json:"description"`
	Amount      float64                `json:"amount"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	EnrollmentID *uuid.UUID
	InvoiceType  string
}

// Payment is one received amount, split across invoices by allocations.
type Payment struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	Provider   string     `json:"provider"`
	Reference  *string    `json:"reference"`
	Amount     float64    `json:"amount"`
	Currency   string     `json:"currency"`
	ReceivedAt time.Time  `json:"received_at"`
	CreatedBy  *uuid.UUID `json:"created_by"`
}

// PaymentAllocation applies part of a payment to one invoice.
type PaymentAllocation struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Amount    float64   `json:"amount"`
}

// PaymentView is a payment with its allocations, as returned by
// listings.
type PaymentView struct {
	Payment
	Allocations []PaymentAllocation `json:"allocations"`
}

// AllocationInput is a caller-supplied allocation.
type AllocationInput struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
	Amount    float64   `json:"amount"`
}

// InvoiceEligibility summarizes one invoice's payment state for
// enrollment gating.
type InvoiceEligibility struct {
	InvoiceID *uuid.UUID `json:"invoice_id"`
	Status    string     `json:"status"`
	PaidOK    bool       `json:"paid_ok"`
	PartialOK bool       `json:"partial_ok"`
}

// EnrollmentFinanceStatus is the finance eligibility view the enrollment
// state machine consults at gated transitions.
type EnrollmentFinanceStatus struct {
	Policy    *Policy            `json:"policy"`
	Interview InvoiceEligibility `json:"interview"`
	Fees      InvoiceEligibility `json:"fees"`
}
