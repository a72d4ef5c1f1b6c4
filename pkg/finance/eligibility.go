package finance

import (
	"context"

	"github.com/google/uuid"
)

// EnrollmentFinanceStatus builds the eligibility view the enrollment
// state machine consults: one INTERVIEW and one SCHOOL_FEES invoice per
// enrollment, evaluated against the tenant's policy.
func (s *Store) EnrollmentFinanceStatus(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*EnrollmentFinanceStatus, error) {
	invoices, err := s.ListInvoices(ctx, tenantID, InvoiceFilter{EnrollmentID: &enrollmentID})
	if err != nil {
		return nil, err
	}

	var interview, fees *Invoice
	for _, invoice := range invoices {
		switch invoice.InvoiceType {
		case InvoiceTypeInterview:
			if interview == nil {
				interview = invoice
			}
		case InvoiceTypeSchoolFees:
			if fees == nil {
				fees = invoice
			}
		}
	}

	policy, err := s.GetOrCreatePolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &EnrollmentFinanceStatus{
		Policy:    policy,
		Interview: eligibilityOf(policy, interview, false),
		Fees:      eligibilityOf(policy, fees, true),
	}, nil
}

func eligibilityOf(policy *Policy, inv *Invoice, withPartial bool) InvoiceEligibility {
	el := InvoiceEligibility{PaidOK: paidOK(inv)}
	if inv != nil {
		id := inv.ID
		el.InvoiceID = &id
		el.Status = inv.Status
	}
	if withPartial {
		el.PartialOK = partialOK(policy, inv)
	}
	return el
}
