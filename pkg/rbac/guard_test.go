package rbac

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

func TestGuard_Require(t *testing.T) {
	var denied []string
	guard := NewGuard(nil, nil, func(code string) { denied = append(denied, code) })

	effective := Effective{Permissions: []string{"enrollment.manage"}}
	assert.NoError(t, guard.Require(effective, "enrollment.manage"))

	err := guard.Require(effective, "finance.payments.manage")
	assert.True(t, apperrors.IsForbidden(err))
	assert.Equal(t, []string{"finance.payments.manage"}, denied)
}

func TestGuard_RequireGlobalSuperAdmin_Denied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(userID, RoleSuperAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	store := NewStore(db)
	guard := NewGuard(NewResolver(store, nil), store, nil)

	err = guard.RequireGlobalSuperAdmin(context.Background(), userID)
	assert.True(t, apperrors.IsForbidden(err))
}

func TestGuard_RequireTenant_ResolvesAndChecks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	userID := uuid.New()
	roleID := uuid.New()

	mock.ExpectQuery("SELECT r.id, r.tenant_id, r.code").
		WithArgs(userID, tenantID).
		WillReturnRows(roleRow(roleID, nil, "SECRETARY", true))
	mock.ExpectQuery("SELECT DISTINCT p.code").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("enrollment.manage"))
	mock.ExpectQuery("SELECT p.code, o.effect, o.reason").
		WithArgs(userID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"code", "effect", "reason"}))

	store := NewStore(db)
	guard := NewGuard(NewResolver(store, nil), store, nil)

	assert.NoError(t, guard.RequireTenant(context.Background(), userID, tenantID, "enrollment.manage"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolver_PlatformScopeExcludesTenantRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()

	// Global scope only queries tenant_id IS NULL rows; a user with purely
	// tenant-scoped roles resolves to empty sets.
	mock.ExpectQuery("SELECT r.id, r.tenant_id, r.code").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "code", "name", "description", "is_system", "created_at"}))
	mock.ExpectQuery("SELECT p.code, o.effect, o.reason").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"code", "effect", "reason"}))

	resolver := NewResolver(NewStore(db), nil)
	effective, err := resolver.Resolve(context.Background(), userID, GlobalScope())
	require.NoError(t, err)
	assert.Empty(t, effective.Roles)
	assert.Empty(t, effective.Permissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
