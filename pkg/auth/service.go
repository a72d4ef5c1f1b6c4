package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
	"github.com/shulecore/shulecore/pkg/audit"
	"github.com/shulecore/shulecore/pkg/rbac"
)

// Hooks receive counters for login/refresh/revoke outcomes. Any field may
// be nil.
type Hooks struct {
	OnLogin   func(success bool)
	OnRefresh func(success bool)
	OnRevoke  func()
}

// Service implements login, refresh and logout across both scope
// partitions.
type Service struct {
	store     *Store
	rbacStore *rbac.Store
	resolver  *rbac.Resolver
	codec     *Codec
	recorder  audit.Recorder
	hooks     Hooks
}

// NewService creates an auth service. recorder may be nil.
func NewService(store *Store, rbacStore *rbac.Store, resolver *rbac.Resolver, codec *Codec, recorder audit.Recorder, hooks Hooks) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{
		store:     store,
		rbacStore: rbacStore,
		resolver:  resolver,
		codec:     codec,
		recorder:  recorder,
		hooks:     hooks,
	}
}

// Login verifies credentials and scope access, then opens a session.
// Every credential failure is the same generic Unauthorized; only the
// membership check after successful authentication surfaces Forbidden.
func (s *Service) Login(ctx context.Context, scope rbac.Scope, email, password string) (*TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.loginResult(false)
			return nil, apperrors.Unauthorized()
		}
		return nil, err
	}
	if !user.IsActive || !CheckPassword(password, user.PasswordHash) {
		s.loginResult(false)
		return nil, apperrors.Unauthorized()
	}

	if tenantID, ok := scope.TenantID(); ok {
		member, err := s.store.HasActiveMembership(ctx, tenantID, user.ID)
		if err != nil {
			return nil, err
		}
		if !member {
			s.loginResult(false)
			return nil, apperrors.E(apperrors.KindForbidden, "not a member of this school")
		}
	} else {
		isOperator, err := s.rbacStore.HasGlobalRole(ctx, user.ID, rbac.RoleSuperAdmin)
		if err != nil {
			return nil, err
		}
		if !isOperator {
			s.loginResult(false)
			return nil, apperrors.E(apperrors.KindForbidden, "platform access requires a global operator role")
		}
	}

	effective, err := s.resolver.Resolve(ctx, user.ID, scope)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New()
	refreshToken, expiresAt, err := s.codec.IssueRefresh(sessionID, user.ID, scope.Marker())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateSession(ctx, sessionID, scopeTenantPtr(scope), user.ID, HashToken(refreshToken), expiresAt); err != nil {
		return nil, err
	}

	accessToken, err := s.codec.IssueAccess(user.ID, scope.Marker(), effective.Roles, effective.Permissions)
	if err != nil {
		return nil, err
	}

	s.loginResult(true)
	s.record(scope, user.ID, sessionID, audit.ActionAuthLogin)
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh rotates a session. The presented token must decode, match the
// scope, name a live session and equal the stored hash; the hash swap is
// guarded so a token works exactly once even under races.
func (s *Service) Refresh(ctx context.Context, scope rbac.Scope, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		s.refreshResult(false)
		return nil, err
	}
	if claims.TenantID != scope.Marker() {
		s.refreshResult(false)
		return nil, apperrors.E(apperrors.KindUnauthorized, "tenant mismatch")
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		s.refreshResult(false)
		return nil, apperrors.Unauthorized()
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.refreshResult(false)
		return nil, apperrors.Unauthorized()
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		s.refreshResult(false)
		return nil, err
	}
	if session.UserID != userID || !sessionMatchesScope(session, scope) ||
		session.RefreshTokenHash != HashToken(refreshToken) {
		s.refreshResult(false)
		return nil, apperrors.Unauthorized()
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.refreshResult(false)
		return nil, apperrors.Unauthorized()
	}
	if !user.IsActive {
		s.refreshResult(false)
		return nil, apperrors.Unauthorized()
	}

	// Re-resolve so RBAC changes since issuance land in the new token.
	effective, err := s.resolver.Resolve(ctx, userID, scope)
	if err != nil {
		return nil, err
	}

	newRefreshToken, expiresAt, err := s.codec.IssueRefresh(sessionID, userID, scope.Marker())
	if err != nil {
		return nil, err
	}
	if err := s.store.RotateSession(ctx, sessionID, HashToken(refreshToken), HashToken(newRefreshToken), expiresAt); err != nil {
		// Revoked, expired, or a concurrent refresh won the swap.
		s.refreshResult(false)
		return nil, err
	}

	accessToken, err := s.codec.IssueAccess(userID, scope.Marker(), effective.Roles, effective.Permissions)
	if err != nil {
		return nil, err
	}

	s.refreshResult(true)
	s.record(scope, userID, sessionID, audit.ActionAuthRefresh)
	return &TokenPair{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

// Logout revokes the session named by the refresh token. Invalid tokens
// and double logouts are silent no-ops.
func (s *Service) Logout(ctx context.Context, scope rbac.Scope, refreshToken string) error {
	claims, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		return nil
	}
	if claims.TenantID != scope.Marker() {
		return nil
	}
	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil
	}

	if err := s.store.RevokeSession(ctx, sessionID); err != nil {
		return err
	}
	if s.hooks.OnRevoke != nil {
		s.hooks.OnRevoke()
	}
	if userID, err := uuid.Parse(claims.Subject); err == nil {
		s.record(scope, userID, sessionID, audit.ActionAuthLogout)
	}
	return nil
}

func (s *Service) loginResult(success bool) {
	if s.hooks.OnLogin != nil {
		s.hooks.OnLogin(success)
	}
}

func (s *Service) refreshResult(success bool) {
	if s.hooks.OnRefresh != nil {
		s.hooks.OnRefresh(success)
	}
}

func (s *Service) record(scope rbac.Scope, userID, sessionID uuid.UUID, action string) {
	tenantID := uuid.Nil
	if id, ok := scope.TenantID(); ok {
		tenantID = id
	}
	s.recorder.Record(audit.Event{
		TenantID:    tenantID,
		ActorUserID: &userID,
		Action:      action,
		Resource:    audit.ResourceSession,
		ResourceID:  &sessionID,
		Meta:        map[string]interface{}{"scope": scope.Marker()},
	})
}

func scopeTenantPtr(scope rbac.Scope) *uuid.UUID {
	if tenantID, ok := scope.TenantID(); ok {
		return &tenantID
	}
	return nil
}

func sessionMatchesScope(session *Session, scope rbac.Scope) bool {
	tenantID, ok := scope.TenantID()
	if !ok {
		return session.TenantID == nil
	}
	return session.TenantID != nil && *session.TenantID == tenantID
}
