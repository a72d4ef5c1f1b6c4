package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

// Store persists tenants to PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tenants table if it doesn't exist.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		slug VARCHAR(120) NOT NULL UNIQUE,
		primary_domain VARCHAR(255) UNIQUE,
		name VARCHAR(255) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		deleted_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_primary_domain ON tenants(primary_domain) WHERE primary_domain IS NOT NULL;
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure tenants table: %w", err)
	}
	return nil
}

const tenantColumns = `id, slug, primary_domain, name, is_active, deleted_at, created_at, updated_at`

// Create registers a new tenant. The slug is lowercased and trimmed before
// insertion; slug and domain collisions surface as Conflict.
func (s *Store) Create(ctx context.Context, req CreateTenantRequest) (*Tenant, error) {
	slug := normalizeSlug(req.Slug)
	if slug == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "slug is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "name is required")
	}
	domain := normalizeDomain(req.PrimaryDomain)

	query := `
		INSERT INTO tenants (slug, primary_domain, name, is_active)
		VALUES ($1, $2, $3, true)
		RETURNING ` + tenantColumns
	tenant := &Tenant{}
	err := s.db.QueryRowContext(ctx, query, slug, domain, name).Scan(
		&tenant.ID, &tenant.Slug, &tenant.PrimaryDomain, &tenant.Name,
		&tenant.IsActive, &tenant.DeletedAt, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Wrap(apperrors.KindConflict, "slug or domain already in use", err)
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return tenant, nil
}

// Get retrieves a tenant by id, including suspended and soft-deleted rows.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	tenant := &Tenant{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID, &tenant.Slug, &tenant.PrimaryDomain, &tenant.Name,
		&tenant.IsActive, &tenant.DeletedAt, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "tenant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// List returns all tenants, newest first. Soft-deleted rows are included so
// platform operators can inspect retention history.
func (s *Store) List(ctx context.Context) ([]*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		tenant := &Tenant{}
		if err := rows.Scan(
			&tenant.ID, &tenant.Slug, &tenant.PrimaryDomain, &tenant.Name,
			&tenant.IsActive, &tenant.DeletedAt, &tenant.CreatedAt, &tenant.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

// Update applies the non-nil fields of req to the tenant.
func (s *Store) Update(ctx context.Context, id uuid.UUID, req UpdateTenantRequest) (*Tenant, error) {
	setClauses := []string{"updated_at = NOW()"}
	args := []interface{}{}
	argPos := 1

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.E(apperrors.KindValidationFailed, "name cannot be empty")
		}
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, name)
		argPos++
	}
	if req.Slug != nil {
		slug := normalizeSlug(*req.Slug)
		if slug == "" {
			return nil, apperrors.E(apperrors.KindValidationFailed, "slug cannot be empty")
		}
		setClauses = append(setClauses, fmt.Sprintf("slug = $%d", argPos))
		args = append(args, slug)
		argPos++
	}
	if req.PrimaryDomain != nil {
		setClauses = append(setClauses, fmt.Sprintf("primary_domain = $%d", argPos))
		args = append(args, normalizeDomain(req.PrimaryDomain))
		argPos++
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE tenants SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argPos, tenantColumns,
	)

	tenant := &Tenant{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&tenant.ID, &tenant.Slug, &tenant.PrimaryDomain, &tenant.Name,
		&tenant.IsActive, &tenant.DeletedAt, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "tenant not found")
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Wrap(apperrors.KindConflict, "slug or domain already in use", err)
		}
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}
	return tenant, nil
}

// SetActive suspends (false) or reactivates (true) a tenant.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE tenants SET is_active = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant activity: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.E(apperrors.KindNotFound, "tenant not found")
	}
	return nil
}

// SoftDelete retires a tenant: deactivates it, stamps deleted_at, frees the
// primary domain and renames the slug so both can be reused by a future
// tenant. The row itself is retained.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	suffix := uuid.NewString()[:8]
	query := `
		UPDATE tenants
		SET is_active = false,
		    deleted_at = NOW(),
		    primary_domain = NULL,
		    slug = slug || '-deleted-' || $1,
		    updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, suffix, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete tenant: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.E(apperrors.KindNotFound, "tenant not found")
	}
	return nil
}

// findByHost matches a cleaned host against primary_domain, falling back to
// the first host label as a slug. Soft-deleted rows never match.
func (s *Store) findByHost(ctx context.Context, domain string) (*Tenant, error) {
	firstLabel := firstHostLabel(domain)

	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		WHERE deleted_at IS NULL AND (primary_domain = $1 OR slug = $2)
		LIMIT 1
	`
	tenant := &Tenant{}
	err := s.db.QueryRowContext(ctx, query, domain, firstLabel).Scan(
		&tenant.ID, &tenant.Slug, &tenant.PrimaryDomain, &tenant.Name,
		&tenant.IsActive, &tenant.DeletedAt, &tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "school not found or inactive")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant host: %w", err)
	}
	return tenant, nil
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func normalizeDomain(domain *string) *string {
	if domain == nil {
		return nil
	}
	d := strings.ToLower(strings.TrimSpace(*domain))
	if d == "" {
		return nil
	}
	return &d
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
