package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Migrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Insert_SanitizesPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(tenantID, nil, ActionAuthLogin, ResourceSession, nil,
			[]byte(`{"password":"***"}`), nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewStore(db)
	err = store.Insert(context.Background(), Event{
		TenantID: tenantID,
		Action:   ActionAuthLogin,
		Resource: ResourceSession,
		Payload:  map[string]interface{}{"password": "hunter2"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tenantID := uuid.New()
	eventID := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "actor_user_id", "action", "resource",
		"resource_id", "payload", "meta", "created_at",
	}).AddRow(
		eventID, tenantID, nil, ActionPaymentCreate, ResourcePayment,
		nil, []byte(`{"amount":"500"}`), nil, time.Now().UTC(),
	)

	mock.ExpectQuery("SELECT (.+) FROM audit_logs").
		WithArgs(tenantID, ActionPaymentCreate, "", 50).
		WillReturnRows(rows)

	store := NewStore(db)
	events, err := store.Search(context.Background(), tenantID, ActionPaymentCreate, "", 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventID, events[0].ID)
	assert.Equal(t, "500", events[0].Payload["amount"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
