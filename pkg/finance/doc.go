// Package finance implements the per-school fee ledger: finance policy,
// fee catalog, fee structures, scholarships, invoices, payments and
// payment allocations.
//
// Invoice totals are never caller-supplied. total_amount, paid_amount,
// balance_amount and status are recomputed from invoice lines and
// payment allocations inside the same transaction as any mutation that
// touches them, so the ledger invariant paid + balance = total holds at
// every commit point.
package finance
