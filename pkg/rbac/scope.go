package rbac

import "github.com/google/uuid"

// PlatformMarker is the reserved scope marker embedded in platform-scope
// tokens in place of a tenant id.
const PlatformMarker = "__saas__"

// Scope identifies either the platform/global partition or one tenant.
// The zero value is the global scope.
type Scope struct {
	tenantID uuid.UUID
	tenant   bool
}

// GlobalScope returns the platform partition.
func GlobalScope() Scope {
	return Scope{}
}

// TenantScope returns the scope of one tenant.
func TenantScope(tenantID uuid.UUID) Scope {
	return Scope{tenantID: tenantID, tenant: true}
}

// IsGlobal reports whether this is the platform partition.
func (s Scope) IsGlobal() bool {
	return !s.tenant
}

// TenantID returns the tenant id and true for tenant scopes, or the zero
// uuid and false for the global scope.
func (s Scope) TenantID() (uuid.UUID, bool) {
	return s.tenantID, s.tenant
}

// Marker returns the token-facing scope string: the tenant id, or the
// reserved platform marker.
func (s Scope) Marker() string {
	if s.tenant {
		return s.tenantID.String()
	}
	return PlatformMarker
}

// dbValue is the value bound to nullable tenant_id columns.
func (s Scope) dbValue() interface{} {
	if s.tenant {
		return s.tenantID
	}
	return nil
}

func (s Scope) String() string {
	return s.Marker()
}
