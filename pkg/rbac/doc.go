// Package rbac implements role-based access control with per-user
// ALLOW/DENY overrides across two scope partitions: the platform (global)
// scope used by SaaS operators and one scope per tenant.
//
// Roles with a nil tenant are global; the seeded system roles
// (SUPER_ADMIN, DIRECTOR, SECRETARY, TEACHER, PARENT) live there and are
// immutable from tenant scope. Effective permissions for a (user, scope)
// pair are role-derived grants plus ALLOW overrides minus DENY overrides;
// DENY always wins. Platform-only mutations additionally require a global
// SUPER_ADMIN role row, since permission codes are shared vocabulary
// between the two partitions.
package rbac
