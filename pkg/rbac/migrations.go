package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// zeroUUID stands in for NULL tenant_id inside unique indexes so global
// rows still deduplicate (Postgres treats NULLs as distinct).
const zeroUUID = "00000000-0000-0000-0000-000000000000"

// Migrate creates the RBAC tables if they don't exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS roles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID,
		code VARCHAR(60) NOT NULL,
		name VARCHAR(120) NOT NULL,
		description VARCHAR(255),
		is_system BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS uq_roles_tenant_code
		ON roles (COALESCE(tenant_id, '` + zeroUUID + `'::uuid), code);

	CREATE TABLE IF NOT EXISTS permissions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		code VARCHAR(120) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		description VARCHAR(255),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS role_permissions (
		role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id UUID NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	);

	CREATE TABLE IF NOT EXISTS user_roles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID,
		user_id UUID NOT NULL,
		role_id UUID NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS uq_user_roles_scope
		ON user_roles (COALESCE(tenant_id, '` + zeroUUID + `'::uuid), user_id, role_id);
	CREATE INDEX IF NOT EXISTS idx_user_roles_user ON user_roles(user_id);

	CREATE TABLE IF NOT EXISTS user_permission_overrides (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID,
		user_id UUID NOT NULL,
		permission_id UUID NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		effect VARCHAR(10) NOT NULL,
		reason VARCHAR(255),
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS uq_user_perm_override_scope
		ON user_permission_overrides (COALESCE(tenant_id, '` + zeroUUID + `'::uuid), user_id, permission_id);
	CREATE INDEX IF NOT EXISTS idx_overrides_user ON user_permission_overrides(user_id);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure rbac tables: %w", err)
	}
	return nil
}

// Seed inserts the permission catalog, system roles and their grants.
// Idempotent; safe to run on every startup.
func Seed(ctx context.Context, db *sql.DB) error {
	permValues := make([]string, 0, len(seedPermissions))
	permArgs := make([]interface{}, 0, len(seedPermissions)*2)
	for i, p := range seedPermissions {
		permValues = append(permValues, fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2))
		permArgs = append(permArgs, p.Code, p.Name)
	}
	permQuery := "INSERT INTO permissions (code, name) VALUES " +
		strings.Join(permValues, ", ") + " ON CONFLICT (code) DO NOTHING"
	if _, err := db.ExecContext(ctx, permQuery, permArgs...); err != nil {
		return fmt.Errorf("failed to seed permissions: %w", err)
	}

	roleValues := make([]string, 0, len(seedRoles))
	roleArgs := make([]interface{}, 0, len(seedRoles)*3)
	for i, r := range seedRoles {
		roleValues = append(roleValues, fmt.Sprintf("(NULL, $%d, $%d, $%d, true)", i*3+1, i*3+2, i*3+3))
		roleArgs = append(roleArgs, r.Code, r.Name, r.Description)
	}
	roleQuery := "INSERT INTO roles (tenant_id, code, name, description, is_system) VALUES " +
		strings.Join(roleValues, ", ") +
		" ON CONFLICT (COALESCE(tenant_id, '" + zeroUUID + "'::uuid), code) DO NOTHING"
	if _, err := db.ExecContext(ctx, roleQuery, roleArgs...); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}

	for roleCode, permCodes := range seedRolePermissions {
		query := `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT r.id, p.id
			FROM roles r
			JOIN permissions p ON p.code = ANY($2)
			WHERE r.code = $1 AND r.tenant_id IS NULL
			ON CONFLICT DO NOTHING
		`
		if _, err := db.ExecContext(ctx, query, roleCode, pqStringArray(permCodes)); err != nil {
			return fmt.Errorf("failed to seed role permissions for %s: %w", roleCode, err)
		}
	}
	return nil
}
