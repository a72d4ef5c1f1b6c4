package tenants

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulecore/shulecore/pkg/audit"
)

type captureRecorder struct {
	events []audit.Event
}

func (c *captureRecorder) Record(event audit.Event) {
	c.events = append(c.events, event)
}

func TestService_Suspend_RecordsAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	actor := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id").
		WithArgs(id).
		WillReturnRows(tenantRows(id, "greenhill", nil, "Greenhill Academy", true))
	mock.ExpectExec("UPDATE tenants SET is_active").
		WithArgs(false, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	recorder := &captureRecorder{}
	svc := NewService(NewStore(db), nil, recorder)

	require.NoError(t, svc.Suspend(context.Background(), actor, id))
	require.Len(t, recorder.events, 1)
	assert.Equal(t, audit.ActionTenantSuspend, recorder.events[0].Action)
	assert.Equal(t, id, recorder.events[0].TenantID)
	assert.Equal(t, actor, *recorder.events[0].ActorUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Create_SurfacesStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO tenants").WillReturnError(assert.AnError)

	recorder := &captureRecorder{}
	svc := NewService(NewStore(db), nil, recorder)

	_, err = svc.Create(context.Background(), uuid.New(), CreateTenantRequest{Name: "X", Slug: "x"})
	assert.Error(t, err)
	assert.Empty(t, recorder.events)
}
