package rbac

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

// Store handles RBAC persistence over PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func pqStringArray(v []string) interface{} {
	return pq.Array(v)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

const roleColumns = `id, tenant_id, code, name, description, is_system, created_at`

func scanRole(row interface{ Scan(...interface{}) error }) (*Role, error) {
	role := &Role{}
	err := row.Scan(&role.ID, &role.TenantID, &role.Code, &role.Name,
		&role.Description, &role.IsSystem, &role.CreatedAt)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// CreateRole inserts a non-system role in the given scope.
func (s *Store) CreateRole(ctx context.Context, scope Scope, code, name string, description *string) (*Role, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "role code is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "role name is required")
	}

	query := `
		INSERT INTO roles (tenant_id, code, name, description, is_system)
		VALUES ($1, $2, $3, $4, false)
		RETURNING ` + roleColumns
	role, err := scanRole(s.db.QueryRowContext(ctx, query, scope.dbValue(), code, name, description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Errorf(apperrors.KindConflict, "role code %s already exists in scope", code)
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	return role, nil
}

// GetRole retrieves a role by id.
func (s *Store) GetRole(ctx context.Context, id uuid.UUID) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "role not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleByCode finds a role visible from a tenant: the tenant's own role
// or a global system role with that code. Tenant rows win on a tie.
func (s *Store) GetRoleByCode(ctx context.Context, tenantID uuid.UUID, code string) (*Role, error) {
	query := `
		SELECT ` + roleColumns + `
		FROM roles
		WHERE code = $1 AND (tenant_id IS NULL OR tenant_id = $2)
		ORDER BY tenant_id NULLS LAST
		LIMIT 1
	`
	role, err := scanRole(s.db.QueryRowContext(ctx, query, code, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Errorf(apperrors.KindNotFound, "role %s not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by code: %w", err)
	}
	return role, nil
}

// ListRoles returns the roles visible in scope, global rows included for
// tenant scopes, ordered by code.
func (s *Store) ListRoles(ctx context.Context, scope Scope) ([]*Role, error) {
	var (
		query string
		args  []interface{}
	)
	if tenantID, ok := scope.TenantID(); ok {
		query = `SELECT ` + roleColumns + ` FROM roles WHERE tenant_id IS NULL OR tenant_id = $1 ORDER BY code ASC`
		args = []interface{}{tenantID}
	} else {
		query = `SELECT ` + roleColumns + ` FROM roles WHERE tenant_id IS NULL ORDER BY code ASC`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole renames a role. System-role protection happens in the service.
func (s *Store) UpdateRole(ctx context.Context, id uuid.UUID, name *string, description *string) (*Role, error) {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, strings.TrimSpace(*name))
		argPos++
	}
	if description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argPos))
		args = append(args, *description)
		argPos++
	}
	if len(setClauses) == 0 {
		return s.GetRole(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE roles SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argPos, roleColumns)

	role, err := scanRole(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "role not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return role, nil
}

// DeleteRole removes a role and cascades its assignments and grants.
func (s *Store) DeleteRole(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.E(apperrors.KindNotFound, "role not found")
	}
	return nil
}

const permissionColumns = `id, code, name, description, created_at`

func scanPermission(row interface{ Scan(...interface{}) error }) (*Permission, error) {
	perm := &Permission{}
	err := row.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Description, &perm.CreatedAt)
	if err != nil {
		return nil, err
	}
	return perm, nil
}

// CreatePermission adds a catalog entry.
func (s *Store) CreatePermission(ctx context.Context, code, name string, description *string) (*Permission, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "permission code is required")
	}

	query := `
		INSERT INTO permissions (code, name, description)
		VALUES ($1, $2, $3)
		RETURNING ` + permissionColumns
	perm, err := scanPermission(s.db.QueryRowContext(ctx, query, code, strings.TrimSpace(name), description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Errorf(apperrors.KindConflict, "permission code %s already exists", code)
		}
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}
	return perm, nil
}

// GetPermissionByCode looks up one catalog entry.
func (s *Store) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE code = $1`
	perm, err := scanPermission(s.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Errorf(apperrors.KindNotFound, "permission %s not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return perm, nil
}

// ListPermissions returns the whole catalog ordered by code.
func (s *Store) ListPermissions(ctx context.Context) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// SetRolePermissions replaces a role's grants with exactly the given
// permission codes, in one transaction. Unknown codes fail the whole call.
func (s *Store) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionCodes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var known int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM permissions WHERE code = ANY($1)`,
		pqStringArray(permissionCodes),
	).Scan(&known); err != nil {
		return fmt.Errorf("failed to check permission codes: %w", err)
	}
	if known != len(sortedUnique(permissionCodes)) {
		return apperrors.E(apperrors.KindValidationFailed, "unknown permission codes in set")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	if len(permissionCodes) > 0 {
		query := `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, p.id FROM permissions p WHERE p.code = ANY($2)
			ON CONFLICT DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, query, roleID, pqStringArray(permissionCodes)); err != nil {
			return fmt.Errorf("failed to set role permissions: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role permissions: %w", err)
	}
	return nil
}

// GetRolePermissionCodes returns the codes granted to a role, sorted.
func (s *Store) GetRolePermissionCodes(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	query := `
		SELECT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.code ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan permission code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// AssignRole links a user to a role in scope. Repeating an existing
// assignment is a no-op.
func (s *Store) AssignRole(ctx context.Context, scope Scope, userID, roleID uuid.UUID) error {
	query := `
		INSERT INTO user_roles (tenant_id, user_id, role_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (COALESCE(tenant_id, '` + zeroUUID + `'::uuid), user_id, role_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, scope.dbValue(), userID, roleID); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// UnassignRole removes an assignment. Removing a missing assignment is a
// no-op, mirroring AssignRole's idempotency.
func (s *Store) UnassignRole(ctx context.Context, scope Scope, userID, roleID uuid.UUID) error {
	var query string
	args := []interface{}{userID, roleID}
	if tenantID, ok := scope.TenantID(); ok {
		query = `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2 AND tenant_id = $3`
		args = append(args, tenantID)
	} else {
		query = `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2 AND tenant_id IS NULL`
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to unassign role: %w", err)
	}
	return nil
}

// HasGlobalRole reports whether the user holds a global (tenant_id null)
// assignment of the given role code.
func (s *Store) HasGlobalRole(ctx context.Context, userID uuid.UUID, roleCode string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = $1 AND ur.tenant_id IS NULL AND r.code = $2
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, userID, roleCode).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check global role: %w", err)
	}
	return exists, nil
}

// UpsertOverride creates or replaces a user's override for one permission
// in scope.
func (s *Store) UpsertOverride(ctx context.Context, scope Scope, userID, permissionID uuid.UUID, effect Effect, reason *string) error {
	if !effect.Valid() {
		return apperrors.Errorf(apperrors.KindValidationFailed, "invalid override effect: %s", effect)
	}
	query := `
		INSERT INTO user_permission_overrides (tenant_id, user_id, permission_id, effect, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (COALESCE(tenant_id, '` + zeroUUID + `'::uuid), user_id, permission_id)
		DO UPDATE SET effect = EXCLUDED.effect, reason = EXCLUDED.reason
	`
	if _, err := s.db.ExecContext(ctx, query, scope.dbValue(), userID, permissionID, effect, reason); err != nil {
		return fmt.Errorf("failed to upsert override: %w", err)
	}
	return nil
}

// RemoveOverride deletes a user's override for one permission in scope.
func (s *Store) RemoveOverride(ctx context.Context, scope Scope, userID, permissionID uuid.UUID) error {
	var query string
	args := []interface{}{userID, permissionID}
	if tenantID, ok := scope.TenantID(); ok {
		query = `DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission_id = $2 AND tenant_id = $3`
		args = append(args, tenantID)
	} else {
		query = `DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission_id = $2 AND tenant_id IS NULL`
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove override: %w", err)
	}
	return nil
}

// ListOverrides returns the user's overrides in scope joined with their
// permission codes.
func (s *Store) ListOverrides(ctx context.Context, scope Scope, userID uuid.UUID) ([]OverrideView, error) {
	var query string
	args := []interface{}{userID}
	if tenantID, ok := scope.TenantID(); ok {
		query = `
			SELECT p.code, o.effect, o.reason
			FROM user_permission_overrides o
			JOIN permissions p ON p.id = o.permission_id
			WHERE o.user_id = $1 AND (o.tenant_id IS NULL OR o.tenant_id = $2)
			ORDER BY p.code ASC
		`
		args = append(args, tenantID)
	} else {
		query = `
			SELECT p.code, o.effect, o.reason
			FROM user_permission_overrides o
			JOIN permissions p ON p.id = o.permission_id
			WHERE o.user_id = $1 AND o.tenant_id IS NULL
			ORDER BY p.code ASC
		`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []OverrideView
	for rows.Next() {
		var ov OverrideView
		if err := rows.Scan(&ov.PermissionCode, &ov.Effect, &ov.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}

// fetchUserRoles returns the roles assigned to the user in scope. Tenant
// scope collects both the tenant's rows and global rows; the platform
// scope collects global rows only.
func (s *Store) fetchUserRoles(ctx context.Context, scope Scope, userID uuid.UUID) ([]*Role, error) {
	var query string
	args := []interface{}{userID}
	if tenantID, ok := scope.TenantID(); ok {
		query = `
			SELECT r.id, r.tenant_id, r.code, r.name, r.description, r.is_system, r.created_at
			FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = $1 AND (ur.tenant_id IS NULL OR ur.tenant_id = $2)
		`
		args = append(args, tenantID)
	} else {
		query = `
			SELECT r.id, r.tenant_id, r.code, r.name, r.description, r.is_system, r.created_at
			FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = $1 AND ur.tenant_id IS NULL
		`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// fetchGrantedCodes returns the permission codes granted by any of the
// given roles.
func (s *Store) fetchGrantedCodes(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT p.code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1)
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(roleIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch granted codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("failed to scan granted code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
