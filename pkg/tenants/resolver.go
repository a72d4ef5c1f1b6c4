package tenants

import (
	"context"
	"strings"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

// Resolver binds an inbound host header to one active tenant.
type Resolver struct {
	store *Store
	cache *ResolutionCache
}

// NewResolver creates a resolver. cache may be nil, in which case every
// lookup goes to the store.
func NewResolver(store *Store, cache *ResolutionCache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// Resolve matches host against a tenant's primary domain, or failing that
// its slug taken from the first host label. Suspended and soft-deleted
// tenants are rejected with NotFound so callers cannot tell which of the
// two applies.
func (r *Resolver) Resolve(ctx context.Context, host string) (*Resolved, error) {
	domain := cleanHost(host)
	if domain == "" {
		return nil, apperrors.E(apperrors.KindNotFound, "school not found or inactive")
	}

	// Entries are cached under the canonical keys InvalidateTenant deletes
	// (primary domain or slug), never under the raw request host, so a
	// suspend or delete takes effect immediately for every host form.
	if r.cache != nil {
		if resolved := r.cache.Get(ctx, domain); resolved != nil {
			return resolved, nil
		}
		if label := firstHostLabel(domain); label != domain {
			if resolved := r.cache.Get(ctx, label); resolved != nil {
				return resolved, nil
			}
		}
	}

	tenant, err := r.store.findByHost(ctx, domain)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, apperrors.E(apperrors.KindNotFound, "school not found or inactive")
	}

	resolved := &Resolved{ID: tenant.ID, Slug: tenant.Slug, Name: tenant.Name}
	if r.cache != nil {
		key := tenant.Slug
		if tenant.PrimaryDomain != nil && *tenant.PrimaryDomain == domain {
			key = domain
		}
		r.cache.Set(ctx, key, resolved)
	}
	return resolved, nil
}

// firstHostLabel returns the part of domain before the first dot.
func firstHostLabel(domain string) string {
	if i := strings.Index(domain, "."); i > 0 {
		return domain[:i]
	}
	return domain
}

// cleanHost strips any port and lowercases the remainder.
func cleanHost(host string) string {
	domain := host
	if i := strings.Index(domain, ":"); i >= 0 {
		domain = domain[:i]
	}
	return strings.ToLower(strings.TrimSpace(domain))
}
