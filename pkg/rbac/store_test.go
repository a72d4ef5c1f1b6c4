package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

func roleRow(id uuid.UUID, tenantID interface{}, code string, isSystem bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "code", "name", "description", "is_system", "created_at",
	}).AddRow(id, tenantID, code, code, nil, isSystem, time.Now())
}

func TestStore_CreateRole_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO roles").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_roles_tenant_code"})

	store := NewStore(db)
	_, err = store.CreateRole(context.Background(), TenantScope(uuid.New()), "LIBRARIAN", "Librarian", nil)
	assert.True(t, apperrors.IsConflict(err))
}

func TestStore_GetRoleByCode_PrefersTenantRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	roleID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM roles").
		WithArgs("DIRECTOR", tenantID).
		WillReturnRows(roleRow(roleID, tenantID, "DIRECTOR", false))

	store := NewStore(db)
	role, err := store.GetRoleByCode(context.Background(), tenantID, "DIRECTOR")
	require.NoError(t, err)
	assert.Equal(t, roleID, role.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AssignRole_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	userID := uuid.New()
	roleID := uuid.New()

	// Duplicate insert hits ON CONFLICT DO NOTHING and affects zero rows.
	mock.ExpectExec("INSERT INTO user_roles").
		WithArgs(tenantID, userID, roleID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	assert.NoError(t, store.AssignRole(context.Background(), TenantScope(tenantID), userID, roleID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_HasGlobalRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	userID := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(userID, RoleSuperAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := NewStore(db)
	ok, err := store.HasGlobalRole(context.Background(), userID, RoleSuperAdmin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_UpsertOverride_RejectsUnknownEffect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	err = store.UpsertOverride(context.Background(), TenantScope(uuid.New()), uuid.New(), uuid.New(), Effect("MAYBE"), nil)
	assert.True(t, apperrors.IsValidationFailed(err))
}

func TestStore_ListOverrides_Scoped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	userID := uuid.New()
	mock.ExpectQuery("SELECT p.code, o.effect, o.reason").
		WithArgs(userID, tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"code", "effect", "reason"}).
			AddRow("finance.invoices.view", "DENY", "disciplinary"))

	store := NewStore(db)
	overrides, err := store.ListOverrides(context.Background(), TenantScope(tenantID), userID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, EffectDeny, overrides[0].Effect)
	assert.NoError(t, mock.ExpectationsWereMet())
}
