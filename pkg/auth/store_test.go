package auth

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

func userRows(id uuid.UUID, email, hash string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "password_hash", "full_name", "phone", "is_active", "created_at", "updated_at",
	}).AddRow(id, email, hash, nil, nil, active, time.Now(), time.Now())
}

func sessionRows(id uuid.UUID, tenantID interface{}, userID uuid.UUID, hash string, expiresAt time.Time, revokedAt interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "user_id", "refresh_token_hash", "expires_at", "revoked_at", "last_used_at", "created_at",
	}).AddRow(id, tenantID, userID, hash, expiresAt, revokedAt, nil, time.Now())
}

func TestStore_CreateUser_DuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	store := NewStore(db)
	_, err = store.CreateUser(context.Background(), "jane@example.com", "hash", nil, nil)
	assert.True(t, apperrors.IsConflict(err))
}

func TestStore_GetUserByEmail_Normalizes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE email").
		WithArgs("jane@example.com").
		WillReturnRows(userRows(id, "jane@example.com", "hash", true))

	store := NewStore(db)
	user, err := store.GetUserByEmail(context.Background(), "  Jane@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RotateSession_SwapsOnMatchingHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	expiresAt := time.Now().Add(time.Hour)
	mock.ExpectExec("UPDATE auth_sessions").
		WithArgs("new-hash", expiresAt, id, "old-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	assert.NoError(t, store.RotateSession(context.Background(), id, "old-hash", "new-hash", expiresAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RotateSession_RaceLoserUnauthorized(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The hash guard matched nothing: another refresh already rotated it.
	mock.ExpectExec("UPDATE auth_sessions").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	err = store.RotateSession(context.Background(), uuid.New(), "stale", "new", time.Now().Add(time.Hour))
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestStore_RevokeSession_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Second revoke matches zero rows and still succeeds.
	mock.ExpectExec("UPDATE auth_sessions SET revoked_at").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	assert.NoError(t, store.RevokeSession(context.Background(), uuid.New()))
}

func TestStore_DeleteExpiredSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM auth_sessions").
		WillReturnResult(sqlmock.NewResult(0, 7))

	store := NewStore(db)
	deleted, err := store.DeleteExpiredSessions(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
}

func TestStore_HasActiveMembership(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	userID := uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(tenantID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := NewStore(db)
	member, err := store.HasActiveMembership(context.Background(), tenantID, userID)
	require.NoError(t, err)
	assert.True(t, member)
}
