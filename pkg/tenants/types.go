package tenants

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is one school on the platform.
type Tenant struct {
	ID            uuid.UUID  `json:"id"`
	Slug          string     `json:"slug"`
	PrimaryDomain *string    `json:"primary_domain,omitempty"`
	Name          string     `json:"name"`
	IsActive      bool       `json:"is_active"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CreateTenantRequest carries the fields a platform operator supplies when
// onboarding a school.
type CreateTenantRequest struct {
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	PrimaryDomain *string `json:"primary_domain,omitempty"`
}

// UpdateTenantRequest carries optional field updates; nil means unchanged.
type UpdateTenantRequest struct {
	Name          *string `json:"name,omitempty"`
	Slug          *string `json:"slug,omitempty"`
	PrimaryDomain *string `json:"primary_domain,omitempty"`
}

// Resolved is the slim tenant view handed to request handling once a host
// has been matched. The rest of the record stays behind the store.
type Resolved struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
}
