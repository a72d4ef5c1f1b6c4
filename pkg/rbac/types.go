package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Effect is the direction of a user permission override.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// Valid reports whether e is one of the two known effects.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Role is a named bundle of permissions, global (nil TenantID) or owned by
// one tenant.
type Role struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	IsSystem    bool       `json:"is_system"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Permission is one entry in the flat global permission catalog.
type Permission struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRole links a user to a role within one scope. A nil TenantID is a
// global assignment, reserved for SUPER_ADMIN.
type UserRole struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"`
	UserID    uuid.UUID  `json:"user_id"`
	RoleID    uuid.UUID  `json:"role_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// Override is a user-level permission grant or revocation within one scope.
type Override struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     *uuid.UUID `json:"tenant_id,omitempty"`
	UserID       uuid.UUID  `json:"user_id"`
	PermissionID uuid.UUID  `json:"permission_id"`
	Effect       Effect     `json:"effect"`
	Reason       *string    `json:"reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// OverrideView is an override joined with its permission code for listing
// and resolution.
type OverrideView struct {
	PermissionCode string  `json:"permission_code"`
	Effect         Effect  `json:"effect"`
	Reason         *string `json:"reason,omitempty"`
}

// Effective is the computed authorization state of a (user, scope) pair.
// Both slices are sorted ascending and duplicate-free.
type Effective struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Has reports whether the permission code is present.
func (e Effective) Has(code string) bool {
	for _, c := range e.Permissions {
		if c == code {
			return true
		}
	}
	return false
}
