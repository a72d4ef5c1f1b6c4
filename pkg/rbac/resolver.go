package rbac

import (
	"context"

	"github.com/google/uuid"
)

// Resolver computes effective permissions from the database.
type Resolver struct {
	store *Store

	// onResolve is invoked after every successful resolution.
	onResolve func()
}

// NewResolver creates a resolver over the store. hook may be nil.
func NewResolver(store *Store, hook func()) *Resolver {
	return &Resolver{store: store, onResolve: hook}
}

// Resolve computes the effective roles and permissions of a (user, scope)
// pair. A user with no assignments in the partition resolves to empty sets,
// never to an error.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, scope Scope) (Effective, error) {
	roles, err := r.store.fetchUserRoles(ctx, scope, userID)
	if err != nil {
		return Effective{}, err
	}

	roleCodes := make([]string, 0, len(roles))
	roleIDs := make([]uuid.UUID, 0, len(roles))
	for _, role := range roles {
		roleCodes = append(roleCodes, role.Code)
		roleIDs = append(roleIDs, role.ID)
	}

	granted, err := r.store.fetchGrantedCodes(ctx, roleIDs)
	if err != nil {
		return Effective{}, err
	}

	overrides, err := r.store.ListOverrides(ctx, scope, userID)
	if err != nil {
		return Effective{}, err
	}

	effective := ResolveEffective(roleCodes, granted, overrides)
	if r.onResolve != nil {
		r.onResolve()
	}
	return effective, nil
}
