package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveInvoiceStatus(t *testing.T) {
	tests := []struct {
		name  string
		total float64
		paid  float64
		want  string
	}{
		{"zero total is draft", 0, 0, InvoiceStatusDraft},
		{"unpaid is issued", 1000, 0, InvoiceStatusIssued},
		{"partially paid", 1000, 600, InvoiceStatusPartial},
		{"exactly settled", 1000, 1000, InvoiceStatusPaid},
		{"overpaid still paid", 1000, 1100, InvoiceStatusPaid},
		{"negative total settles at zero", -50, 0, InvoiceStatusPaid},
		{"rounding keeps partial", 100, 99.99, InvoiceStatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveInvoiceStatus(tt.total, tt.paid))
		})
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 99.99, Round2(99.985+0.005))
	assert.Equal(t, 0.1, Round2(0.10000000001))
	assert.Equal(t, -12.35, Round2(-12.345))
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestPartialOK_PercentThreshold(t *testing.T) {
	policy := &Policy{AllowPartialEnrollment: true, MinPercentToEnroll: intPtr(50)}

	above := &Invoice{Status: InvoiceStatusPartial, TotalAmount: 1000, PaidAmount: 600}
	assert.True(t, partialOK(policy, above))

	below := &Invoice{Status: InvoiceStatusPartial, TotalAmount: 1000, PaidAmount: 400}
	assert.False(t, partialOK(policy, below))

	exact := &Invoice{Status: InvoiceStatusPartial, TotalAmount: 1000, PaidAmount: 500}
	assert.True(t, partialOK(policy, exact))
}

func TestPartialOK_AmountThreshold(t *testing.T) {
	policy := &Policy{AllowPartialEnrollment: true, MinAmountToEnroll: floatPtr(300)}

	assert.True(t, partialOK(policy, &Invoice{Status: InvoiceStatusPartial, TotalAmount: 1000, PaidAmount: 300}))
	assert.False(t, partialOK(policy, &Invoice{Status: InvoiceStatusPartial, TotalAmount: 1000, PaidAmount: 299}))
}

func TestPartialOK_NoThresholdsAnyPaymentCounts(t *testing.T) {
	policy := &Policy{AllowPartialEnrollment: true}

	assert.True(t, partialOK(policy, &Invoice{Status: InvoiceStatusPartial, TotalAmount: 1000, PaidAmount: 1}))
	assert.False(t, partialOK(policy, &Invoice{Status: InvoiceStatusIssued, TotalAmount: 1000, PaidAmount: 0}))
}

func TestPartialOK_PolicyDisallowed(t *testing.T) {
	policy := &Policy{AllowPartialEnrollment: false}

	assert.False(t, partialOK(policy, &Invoice{Status: InvoiceStatusPartial, TotalAmount: 1000, PaidAmount: 999}))
	// PAID always passes regardless of policy.
	assert.True(t, partialOK(policy, &Invoice{Status: InvoiceStatusPaid, TotalAmount: 1000, PaidAmount: 1000}))
}

func TestPartialOK_MissingInvoice(t *testing.T) {
	policy := &Policy{AllowPartialEnrollment: true}
	assert.False(t, partialOK(policy, nil))
	assert.False(t, paidOK(nil))
}
