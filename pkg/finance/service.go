package finance

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
	"github.com/shulecore/shulecore/pkg/audit"
	"github.com/shulecore/shulecore/pkg/observability"
)

// Hooks are optional metric callbacks; any field may be nil.
type Hooks struct {
	OnPaymentRecorded func(provider string)
	OnPaymentRejected func(reason string)
	OnInvoiceCreated  func(invoiceType string)
}

// Service validates and orchestrates ledger operations, recording audit
// events after committed mutations. Authorization happens before calls
// reach this layer.
type Service struct {
	store    *Store
	recorder audit.Recorder
	logger   *observability.Logger
	hooks    Hooks
}

// NewService creates a finance service. recorder may be nil.
func NewService(store *Store, recorder audit.Recorder, logger *observability.Logger, hooks Hooks) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{store: store, recorder: recorder, logger: logger, hooks: hooks}
}

func (s *Service) paymentRejected(reason string) {
	if s.hooks.OnPaymentRejected != nil {
		s.hooks.OnPaymentRejected(reason)
	}
}

func (s *Service) invoiceCreated(invoiceType string) {
	if s.hooks.OnInvoiceCreated != nil {
		s.hooks.OnInvoiceCreated(invoiceType)
	}
}

// GetPolicy returns the tenant's policy, creating defaults on first
// read.
func (s *Service) GetPolicy(ctx context.Context, tenantID uuid.UUID) (*Policy, error) {
	return s.store.GetOrCreatePolicy(ctx, tenantID)
}

// UpsertPolicy applies partial policy changes.
func (s *Service) UpsertPolicy(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, update PolicyUpdate) (*Policy, error) {
	if update.MinPercentToEnroll != nil {
		pct := *update.MinPercentToEnroll
		if pct < 0 || pct > 100 {
			return nil, apperrors.E(apperrors.KindValidationFailed, "min percent to enroll must be between 0 and 100")
		}
	}
	if update.MinAmountToEnroll != nil && *update.MinAmountToEnroll < 0 {
		return nil, apperrors.E(apperrors.KindValidationFailed, "min amount to enroll must not be negative")
	}

	policy, err := s.store.UpsertPolicy(ctx, tenantID, update)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionPolicyUpsert, audit.ResourceFinancePolicy, policy.ID, map[string]interface{}{
		"allow_partial_enrollment": policy.AllowPartialEnrollment,
	})
	return policy, nil
}

// CreateFeeCategory adds a catalog category.
func (s *Service) CreateFeeCategory(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, code, name string, isActive bool) (*FeeCategory, error) {
	category, err := s.store.CreateFeeCategory(ctx, tenantID, code, name, isActive)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionFeeCategoryCreate, audit.ResourceFeeCategory, category.ID, map[string]interface{}{
		"code": category.Code,
	})
	return category, nil
}

// ListFeeCategories returns a filtered page of categories.
func (s *Service) ListFeeCategories(ctx context.Context, tenantID uuid.UUID, filter CatalogFilter) ([]*FeeCategory, error) {
	return s.store.ListFeeCategories(ctx, tenantID, filter)
}

// CreateFeeItem adds a catalog item under an owned category.
func (s *Service) CreateFeeItem(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, categoryID uuid.UUID, code, name string, isActive bool) (*FeeItem, error) {
	item, err := s.store.CreateFeeItem(ctx, tenantID, categoryID, code, name, isActive)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionFeeItemCreate, audit.ResourceFeeItem, item.ID, map[string]interface{}{
		"code": item.Code,
	})
	return item, nil
}

// ListFeeItems returns a filtered page of fee items.
func (s *Service) ListFeeItems(ctx context.Context, tenantID uuid.UUID, filter CatalogFilter) ([]*FeeItem, error) {
	return s.store.ListFeeItems(ctx, tenantID, filter)
}

// CreateStructure adds a fee structure.
func (s *Service) CreateStructure(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, classCode, name string, isActive bool) (*FeeStructure, error) {
	structure, err := s.store.CreateStructure(ctx, tenantID, classCode, name, isActive)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionFeeStructureCreate, audit.ResourceFeeStructure, structure.ID, map[string]interface{}{
		"class_code": structure.ClassCode,
	})
	return structure, nil
}

// ListStructures returns the tenant's structures.
func (s *Service) ListStructures(ctx context.Context, tenantID uuid.UUID) ([]*FeeStructure, error) {
	return s.store.ListStructures(ctx, tenantID)
}

// GetStructureWithItems returns a structure and its detailed item list.
func (s *Service) GetStructureWithItems(ctx context.Context, tenantID, structureID uuid.UUID) (*FeeStructure, []StructureItemDetail, error) {
	structure, err := s.store.GetStructure(ctx, tenantID, structureID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.store.ListStructureItems(ctx, tenantID, structureID)
	if err != nil {
		return nil, nil, err
	}
	return structure, items, nil
}

// UpdateStructure applies partial changes to a structure.
func (s *Service) UpdateStructure(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, structureID uuid.UUID, update StructureUpdate) (*FeeStructure, error) {
	structure, err := s.store.UpdateStructure(ctx, tenantID, structureID, update)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionFeeStructureUpdate, audit.ResourceFeeStructure, structure.ID, map[string]interface{}{
		"class_code": structure.ClassCode,
		"name":       structure.Name,
		"is_active":  structure.IsActive,
	})
	return structure, nil
}

// DeleteStructure removes a structure.
func (s *Service) DeleteStructure(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, structureID uuid.UUID) error {
	if err := s.store.DeleteStructure(ctx, tenantID, structureID); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionFeeStructureDelete, audit.ResourceFeeStructure, structureID, nil)
	return nil
}

// ReplaceStructureItems swaps a structure's item set wholesale.
func (s *Service) ReplaceStructureItems(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, structureID uuid.UUID, items []StructureItemInput) error {
	if err := s.store.ReplaceStructureItems(ctx, tenantID, structureID, items); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionStructureItemsReplace, audit.ResourceFeeStructure, structureID, map[string]interface{}{
		"count": len(items),
	})
	return nil
}

// AddOrUpdateStructureItem prices one fee item within a structure. Either
// feeItemID or inline must be supplied, not both; the inline path reuses
// an existing item when the code already maps to the same category.
func (s *Service) AddOrUpdateStructureItem(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, structureID uuid.UUID, feeItemID *uuid.UUID, inline *InlineFeeItem, amount float64) (*StructureItemDetail, error) {
	if amount <= 0 {
		return nil, apperrors.E(apperrors.KindValidationFailed, "amount must be > 0")
	}
	if feeItemID != nil && inline != nil {
		return nil, apperrors.E(apperrors.KindValidationFailed, "provide either fee_item_id or an inline fee item, not both")
	}
	if feeItemID == nil && inline == nil {
		return nil, apperrors.E(apperrors.KindValidationFailed, "fee_item_id or an inline fee item is required")
	}
	if _, err := s.store.GetStructure(ctx, tenantID, structureID); err != nil {
		return nil, err
	}

	var itemID uuid.UUID
	if inline != nil {
		resolved, err := s.resolveInlineFeeItem(ctx, tenantID, actor, inline)
		if err != nil {
			return nil, err
		}
		itemID = resolved
	} else {
		item, err := s.store.GetFeeItem(ctx, tenantID, *feeItemID)
		if err != nil {
			return nil, err
		}
		itemID = item.ID
	}

	if err := s.store.UpsertStructureItem(ctx, structureID, itemID, amount); err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionStructureItemUpsert, audit.ResourceFeeStructure, structureID, map[string]interface{}{
		"fee_item_id": itemID.String(),
		"amount":      amount,
	})

	details, err := s.store.ListStructureItems(ctx, tenantID, structureID)
	if err != nil {
		return nil, err
	}
	for i := range details {
		if details[i].FeeItemID == itemID {
			return &details[i], nil
		}
	}
	return nil, apperrors.E(apperrors.KindNotFound, "failed to load structure item details")
}

func (s *Service) resolveInlineFeeItem(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, inline *InlineFeeItem) (uuid.UUID, error) {
	category, err := s.store.GetFeeCategory(ctx, tenantID, inline.CategoryID)
	if err != nil {
		return uuid.Nil, err
	}

	existing, err := s.store.getFeeItemByCode(ctx, tenantID, inline.Code)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		if existing.CategoryID != category.ID {
			return uuid.Nil, apperrors.E(apperrors.KindConflict, "fee item code already exists in a different category")
		}
		return existing.ID, nil
	}

	item, err := s.CreateFeeItem(ctx, tenantID, actor, category.ID, inline.Code, inline.Name, inline.IsActive)
	if err != nil {
		return uuid.Nil, err
	}
	return item.ID, nil
}

// RemoveStructureItem detaches one fee item from a structure.
func (s *Service) RemoveStructureItem(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, structureID, feeItemID uuid.UUID) error {
	if err := s.store.RemoveStructureItem(ctx, tenantID, structureID, feeItemID); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionStructureItemRemove, audit.ResourceFeeStructure, structureID, map[string]interface{}{
		"fee_item_id": feeItemID.String(),
	})
	return nil
}

// AssignStructure links an enrollment to a fee structure, optionally
// generating the SCHOOL_FEES invoice immediately. Invoice generation is
// a soft-fail side effect: expected ledger failures (missing or empty
// structure) are logged and do not undo the assignment, but store
// breakage still propagates.
func (s *Service) AssignStructure(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, enrollmentID, structureID uuid.UUID, generateInvoice bool, meta map[string]interface{}) (*StudentFeeAssignment, error) {
	structure, err := s.store.GetStructure(ctx, tenantID, structureID)
	if err != nil {
		return nil, err
	}

	assignment, err := s.store.CreateAssignment(ctx, tenantID, enrollmentID, structureID, meta)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionStructureAssign, audit.ResourceFeeAssignment, assignment.ID, map[string]interface{}{
		"fee_structure_id": structureID.String(),
		"enrollment_id":    enrollmentID.String(),
	})

	if generateInvoice {
		_, err := s.GenerateSchoolFeesInvoice(ctx, tenantID, actor, enrollmentID, structure.ClassCode, nil)
		if err != nil {
			if !apperrors.IsValidationFailed(err) && !apperrors.IsNotFound(err) {
				return nil, err
			}
			if s.logger != nil {
				s.logger.Warnf("invoice generation skipped after fee assignment: %v", err)
			}
		}
	}
	return assignment, nil
}

// CreateScholarship adds a tenant scholarship.
func (s *Service) CreateScholarship(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, name, scholarshipType string, value float64, isActive bool) (*Scholarship, error) {
	scholarshipType = strings.ToUpper(trimName(scholarshipType))
	if !ValidScholarshipType(scholarshipType) {
		return nil, apperrors.E(apperrors.KindValidationFailed, "scholarship type must be PERCENT or FIXED")
	}
	if value <= 0 {
		return nil, apperrors.E(apperrors.KindValidationFailed, "scholarship value must be > 0")
	}

	scholarship, err := s.store.CreateScholarship(ctx, tenantID, trimName(name), scholarshipType, value, isActive)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionScholarshipCreate, audit.ResourceScholarship, scholarship.ID, map[string]interface{}{
		"type":  scholarship.Type,
		"value": scholarship.Value,
	})
	return scholarship, nil
}

// ListScholarships returns the tenant's scholarships.
func (s *Service) ListScholarships(ctx context.Context, tenantID uuid.UUID) ([]*Scholarship, error) {
	return s.store.ListScholarships(ctx, tenantID)
}

// CreateInvoice adds an invoice with caller-supplied lines.
func (s *Service) CreateInvoice(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, invoiceType string, enrollmentID *uuid.UUID, lines []LineInput) (*Invoice, error) {
	invoiceType = strings.ToUpper(trimName(invoiceType))
	if !ValidInvoiceType(invoiceType) {
		return nil, apperrors.E(apperrors.KindValidationFailed, "invoice type must be INTERVIEW or SCHOOL_FEES")
	}

	invoice, err := s.store.CreateInvoice(ctx, tenantID, invoiceType, enrollmentID, lines)
	if err != nil {
		return nil, err
	}
	s.invoiceCreated(invoice.InvoiceType)
	s.record(tenantID, actor, audit.ActionInvoiceCreate, audit.ResourceInvoice, invoice.ID, map[string]interface{}{
		"type":   invoice.InvoiceType,
		"status": invoice.Status,
	})
	return invoice, nil
}

// GetInvoice returns one invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, tenantID, invoiceID uuid.UUID) (*Invoice, []*InvoiceLine, error) {
	invoice, err := s.store.GetInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	lines, err := s.store.ListInvoiceLines(ctx, invoice.ID)
	if err != nil {
		return nil, nil, err
	}
	return invoice, lines, nil
}

// ListInvoices returns a filtered invoice listing.
func (s *Service) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter InvoiceFilter) ([]*Invoice, error) {
	return s.store.ListInvoices(ctx, tenantID, filter)
}

// GenerateSchoolFeesInvoice builds a SCHOOL_FEES invoice from the active
// structure for the class, applying a scholarship discount when given.
func (s *Service) GenerateSchoolFeesInvoice(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, enrollmentID uuid.UUID, classCode string, scholarshipID *uuid.UUID) (*Invoice, error) {
	invoice, err := s.store.GenerateSchoolFeesInvoice(ctx, tenantID, enrollmentID, classCode, scholarshipID)
	if err != nil {
		return nil, err
	}
	s.invoiceCreated(invoice.InvoiceType)
	s.record(tenantID, actor, audit.ActionInvoiceCreate, audit.ResourceInvoice, invoice.ID, map[string]interface{}{
		"type":   invoice.InvoiceType,
		"status": invoice.Status,
	})
	if scholarshipID != nil {
		s.record(tenantID, actor, audit.ActionScholarshipApply, audit.ResourceInvoice, invoice.ID, map[string]interface{}{
			"scholarship_id": scholarshipID.String(),
		})
	}
	return invoice, nil
}

// CreatePayment validates and records a payment with its allocations as
// one atomic unit.
func (s *Service) CreatePayment(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, provider string, reference *string, amount float64, allocations []AllocationInput) (*PaymentView, error) {
	provider = strings.ToUpper(trimName(provider))
	if !ValidProvider(provider) {
		s.paymentRejected("provider")
		return nil, apperrors.E(apperrors.KindValidationFailed, "invalid payment provider")
	}
	if amount <= 0 {
		s.paymentRejected("amount")
		return nil, apperrors.E(apperrors.KindValidationFailed, "payment amount must be > 0")
	}
	if len(allocations) == 0 {
		s.paymentRejected("no_allocations")
		return nil, apperrors.E(apperrors.KindValidationFailed, "allocations are required")
	}

	seen := make(map[uuid.UUID]struct{}, len(allocations))
	var allocSum float64
	for _, alloc := range allocations {
		if _, dup := seen[alloc.InvoiceID]; dup {
			s.paymentRejected("duplicate_invoice")
			return nil, apperrors.E(apperrors.KindValidationFailed, "duplicate invoice allocations are not allowed")
		}
		seen[alloc.InvoiceID] = struct{}{}
		if alloc.Amount <= 0 {
			s.paymentRejected("allocation_amount")
			return nil, apperrors.E(apperrors.KindValidationFailed, "allocation amount must be > 0")
		}
		allocSum += alloc.Amount
	}
	if Round2(allocSum) != Round2(amount) {
		s.paymentRejected("sum_mismatch")
		return nil, apperrors.E(apperrors.KindValidationFailed, "allocations sum must equal payment amount")
	}

	payment, err := s.store.CreatePayment(ctx, tenantID, actor, provider, reference, amount, allocations)
	if err != nil {
		switch {
		case apperrors.IsNotFound(err):
			s.paymentRejected("unknown_invoice")
		case apperrors.IsValidationFailed(err):
			s.paymentRejected("balance")
		case apperrors.IsConflict(err):
			s.paymentRejected("duplicate_allocation")
		}
		return nil, err
	}
	if s.hooks.OnPaymentRecorded != nil {
		s.hooks.OnPaymentRecorded(payment.Provider)
	}
	s.record(tenantID, actor, audit.ActionPaymentCreate, audit.ResourcePayment, payment.ID, map[string]interface{}{
		"provider": payment.Provider,
		"amount":   payment.Amount,
	})
	return payment, nil
}

// ListPayments returns payments with allocations, optionally narrowed to
// one enrollment.
func (s *Service) ListPayments(ctx context.Context, tenantID uuid.UUID, enrollmentID *uuid.UUID) ([]*PaymentView, error) {
	return s.store.ListPayments(ctx, tenantID, enrollmentID)
}

// EnrollmentFinanceStatus exposes the eligibility view to the enrollment
// state machine.
func (s *Service) EnrollmentFinanceStatus(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*EnrollmentFinanceStatus, error) {
	return s.store.EnrollmentFinanceStatus(ctx, tenantID, enrollmentID)
}

func (s *Service) record(tenantID uuid.UUID, actor *uuid.UUID, action, resource string, resourceID uuid.UUID, payload map[string]interface{}) {
	s.recorder.Record(audit.Event{
		TenantID:    tenantID,
		ActorUserID: actor,
		Action:      action,
		Resource:    resource,
		ResourceID:  &resourceID,
		Payload:     payload,
	})
}
