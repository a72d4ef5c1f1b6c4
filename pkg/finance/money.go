package finance

import "math"

// Round2 rounds to currency precision (2 decimal places, half away from
// zero).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DeriveInvoiceStatus maps totals to the derived invoice status. balance
// is total - paid.
func DeriveInvoiceStatus(total, paid float64) string {
	balance := Round2(total - paid)
	switch {
	case Round2(total) == 0:
		return InvoiceStatusDraft
	case balance <= 0:
		return InvoiceStatusPaid
	case Round2(paid) > 0:
		return InvoiceStatusPartial
	default:
		return InvoiceStatusIssued
	}
}

// paidOK reports whether the invoice is fully settled. A missing invoice
// never counts.
func paidOK(inv *Invoice) bool {
	return inv != nil && inv.Status == InvoiceStatusPaid
}

// partialOK applies the partial-enrollment policy test: PAID always
// passes; otherwise the policy must allow partial enrollment and the
// paid amount must clear the percent threshold, or the amount threshold,
// or be simply nonzero when neither threshold is set.
func partialOK(policy *Policy, inv *Invoice) bool {
	if inv == nil {
		return false
	}
	if inv.Status == InvoiceStatusPaid {
		return true
	}
	if !policy.AllowPartialEnrollment {
		return false
	}
	if policy.MinPercentToEnroll != nil && inv.TotalAmount > 0 {
		pct := inv.PaidAmount / inv.TotalAmount * 100
		return pct >= float64(*policy.MinPercentToEnroll)
	}
	if policy.MinAmountToEnroll != nil {
		return inv.PaidAmount >= *policy.MinAmountToEnroll
	}
	return inv.PaidAmount > 0
}
