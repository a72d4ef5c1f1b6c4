package rbac

import (
	"context"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

// Guard gates operations behind permission codes. Tenant-bound checks test
// a code against the caller's effective set; platform-bound mutations
// additionally demand a global SUPER_ADMIN assignment, because the code
// vocabulary is shared between partitions and a tenant role could carry a
// same-named code.
type Guard struct {
	resolver *Resolver
	store    *Store

	// onDenial is invoked with the missing code on every refusal.
	onDenial func(code string)
}

// NewGuard creates a guard. hook may be nil.
func NewGuard(resolver *Resolver, store *Store, hook func(code string)) *Guard {
	return &Guard{resolver: resolver, store: store, onDenial: hook}
}

// Require tests a precomputed effective set for one code.
func (g *Guard) Require(effective Effective, code string) error {
	if !effective.Has(code) {
		g.deny(code)
		return apperrors.Forbidden(code)
	}
	return nil
}

// RequireTenant resolves the caller in tenant scope and tests one code.
func (g *Guard) RequireTenant(ctx context.Context, userID, tenantID uuid.UUID, code string) error {
	effective, err := g.resolver.Resolve(ctx, userID, TenantScope(tenantID))
	if err != nil {
		return err
	}
	return g.Require(effective, code)
}

// RequirePlatform resolves the caller in the global scope and tests one
// code. Read-only platform surfaces use this.
func (g *Guard) RequirePlatform(ctx context.Context, userID uuid.UUID, code string) error {
	effective, err := g.resolver.Resolve(ctx, userID, GlobalScope())
	if err != nil {
		return err
	}
	return g.Require(effective, code)
}

// RequireGlobalSuperAdmin verifies a global SUPER_ADMIN role row exists for
// the user. Platform mutations (tenant lifecycle, global catalog edits)
// call this on top of the permission-code check.
func (g *Guard) RequireGlobalSuperAdmin(ctx context.Context, userID uuid.UUID) error {
	ok, err := g.store.HasGlobalRole(ctx, userID, RoleSuperAdmin)
	if err != nil {
		return err
	}
	if !ok {
		g.deny(RoleSuperAdmin)
		return apperrors.E(apperrors.KindForbidden, "global SUPER_ADMIN role required")
	}
	return nil
}

// RequirePlatformMutation combines the permission-code check with the
// global-role assertion.
func (g *Guard) RequirePlatformMutation(ctx context.Context, userID uuid.UUID, code string) error {
	if err := g.RequirePlatform(ctx, userID, code); err != nil {
		return err
	}
	return g.RequireGlobalSuperAdmin(ctx, userID)
}

func (g *Guard) deny(code string) {
	if g.onDenial != nil {
		g.onDenial(code)
	}
}
