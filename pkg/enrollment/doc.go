// Package enrollment drives an application through its admission state
// machine: DRAFT, SUBMITTED, APPROVED, FULLY_ENROLLED or
// ENROLLED_PARTIAL, TRANSFER_REQUESTED, TRANSFERRED, with REJECTED
// reachable from SUBMITTED and APPROVED.
//
// Gated transitions consult the finance ledger's eligibility view: the
// interview fee gates submission (when the tenant's policy says so) and
// enrollment, and school fees gate enrollment and transfer approval.
// Status writes are guarded by the status they were computed from, so
// two racing transitions on one enrollment cannot both land.
package enrollment
