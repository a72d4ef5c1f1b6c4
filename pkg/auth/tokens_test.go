package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulecore/shulecore/pkg/apperrors"
	"github.com/shulecore/shulecore/pkg/rbac"
)

func testCodec() *Codec {
	return NewCodec("test-secret", "shulecore", 15*time.Minute, 14*24*time.Hour)
}

func TestCodec_AccessRoundTrip(t *testing.T) {
	codec := testCodec()
	userID := uuid.New()
	tenantID := uuid.New()

	token, err := codec.IssueAccess(userID, tenantID.String(),
		[]string{"SECRETARY"}, []string{"enrollment.manage"})
	require.NoError(t, err)

	claims, err := codec.DecodeAccess(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, tenantID.String(), claims.TenantID)
	assert.Equal(t, []string{"SECRETARY"}, claims.Roles)
	assert.Equal(t, []string{"enrollment.manage"}, claims.Permissions)
}

func TestCodec_RefreshRoundTrip(t *testing.T) {
	codec := testCodec()
	sessionID := uuid.New()
	userID := uuid.New()

	token, expiresAt, err := codec.IssueRefresh(sessionID, userID, rbac.PlatformMarker)
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := codec.DecodeRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, sessionID.String(), claims.SessionID)
	assert.Equal(t, rbac.PlatformMarker, claims.TenantID)
}

func TestCodec_TypeConfusionRejected(t *testing.T) {
	codec := testCodec()

	access, err := codec.IssueAccess(uuid.New(), rbac.PlatformMarker, nil, nil)
	require.NoError(t, err)
	_, err = codec.DecodeRefresh(access)
	assert.True(t, apperrors.IsUnauthorized(err))

	refresh, _, err := codec.IssueRefresh(uuid.New(), uuid.New(), rbac.PlatformMarker)
	require.NoError(t, err)
	_, err = codec.DecodeAccess(refresh)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestCodec_WrongSecretRejected(t *testing.T) {
	token, err := testCodec().IssueAccess(uuid.New(), rbac.PlatformMarker, nil, nil)
	require.NoError(t, err)

	other := NewCodec("other-secret", "shulecore", time.Minute, time.Hour)
	_, err = other.DecodeAccess(token)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestCodec_ExpiredAccessRejected(t *testing.T) {
	codec := NewCodec("test-secret", "shulecore", -time.Minute, time.Hour)
	token, err := codec.IssueAccess(uuid.New(), rbac.PlatformMarker, nil, nil)
	require.NoError(t, err)

	_, err = codec.DecodeAccess(token)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-password", 4)
	require.NoError(t, err)
	assert.True(t, CheckPassword("s3cret-password", hash))
	assert.False(t, CheckPassword("wrong", hash))
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
