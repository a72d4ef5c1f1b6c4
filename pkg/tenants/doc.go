// Package tenants manages the school (tenant) registry: lifecycle
// operations run by platform operators and host-based resolution used to
// bind every inbound request to one active tenant.
//
// Tenants are never hard-deleted. Suspension clears the active flag;
// soft deletion additionally stamps deleted_at, detaches the primary
// domain and renames the slug so both unique constraints free up for
// reuse while the row survives for audit and billing history.
package tenants
