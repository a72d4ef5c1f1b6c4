package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

// Store persists users, memberships and auth sessions.
type Store struct {
	db *sql.DB
}

// NewStore creates a new auth store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the auth tables if they don't exist.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		full_name VARCHAR(255),
		phone VARCHAR(40),
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS user_tenants (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_user_tenants_tenant_user UNIQUE (tenant_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id UUID PRIMARY KEY,
		tenant_id UUID REFERENCES tenants(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		refresh_token_hash VARCHAR(64) NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		revoked_at TIMESTAMP WITH TIME ZONE,
		last_used_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_auth_sessions_user ON auth_sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_auth_sessions_expires ON auth_sessions(expires_at);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure auth tables: %w", err)
	}
	return nil
}

const userColumns = `id, email, password_hash, full_name, phone, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FullName,
		&user.Phone, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser registers a new user with an already-hashed credential.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, fullName, phone *string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "email is required")
	}

	query := `
		INSERT INTO users (email, password_hash, full_name, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	user, err := scanUser(s.db.QueryRowContext(ctx, query, email, passwordHash, fullName, phone))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apperrors.E(apperrors.KindConflict, "email already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// SetUserActive flips a user's active flag.
func (s *Store) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update user activity: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.E(apperrors.KindNotFound, "user not found")
	}
	return nil
}

// UpsertMembership links a user to a tenant, reactivating a previously
// deactivated membership if one exists.
func (s *Store) UpsertMembership(ctx context.Context, tenantID, userID uuid.UUID) error {
	query := `
		INSERT INTO user_tenants (tenant_id, user_id, is_active)
		VALUES ($1, $2, true)
		ON CONFLICT ON CONSTRAINT uq_user_tenants_tenant_user
		DO UPDATE SET is_active = true
	`
	if _, err := s.db.ExecContext(ctx, query, tenantID, userID); err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// DeactivateMembership turns off a user's access to a tenant without
// deleting history.
func (s *Store) DeactivateMembership(ctx context.Context, tenantID, userID uuid.UUID) error {
	query := `UPDATE user_tenants SET is_active = false WHERE tenant_id = $1 AND user_id = $2`
	if _, err := s.db.ExecContext(ctx, query, tenantID, userID); err != nil {
		return fmt.Errorf("failed to deactivate membership: %w", err)
	}
	return nil
}

// HasActiveMembership reports whether the user has an active membership in
// the tenant.
func (s *Store) HasActiveMembership(ctx context.Context, tenantID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_tenants
			WHERE tenant_id = $1 AND user_id = $2 AND is_active = true
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, tenantID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

const sessionColumns = `id, tenant_id, user_id, refresh_token_hash, expires_at, revoked_at, last_used_at, created_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	session := &Session{}
	err := row.Scan(&session.ID, &session.TenantID, &session.UserID,
		&session.RefreshTokenHash, &session.ExpiresAt, &session.RevokedAt,
		&session.LastUsedAt, &session.CreatedAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// CreateSession inserts one session row. tenantID is nil for platform
// scope.
func (s *Store) CreateSession(ctx context.Context, id uuid.UUID, tenantID *uuid.UUID, userID uuid.UUID, refreshHash string, expiresAt time.Time) error {
	query := `
		INSERT INTO auth_sessions (id, tenant_id, user_id, refresh_token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.ExecContext(ctx, query, id, tenantID, userID, refreshHash, expiresAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM auth_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindUnauthorized, "session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// RotateSession swaps the stored refresh hash for a new one, guarded by
// the previous hash. Zero rows swapped means the presented token already
// lost a rotation race, was revoked, or expired.
func (s *Store) RotateSession(ctx context.Context, id uuid.UUID, oldHash, newHash string, expiresAt time.Time) error {
	query := `
		UPDATE auth_sessions
		SET refresh_token_hash = $1, expires_at = $2, last_used_at = NOW()
		WHERE id = $3
		  AND refresh_token_hash = $4
		  AND revoked_at IS NULL
		  AND expires_at > NOW()
	`
	result, err := s.db.ExecContext(ctx, query, newHash, expiresAt, id, oldHash)
	if err != nil {
		return fmt.Errorf("failed to rotate session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.E(apperrors.KindUnauthorized, "invalid refresh token")
	}
	return nil
}

// RevokeSession stamps revoked_at. Revoking twice is a no-op.
func (s *Store) RevokeSession(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE auth_sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes rows whose expiry passed more than the
// retention window ago. Returns the number of rows removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context, retention time.Duration) (int64, error) {
	query := `DELETE FROM auth_sessions WHERE expires_at < NOW() - $1::interval`
	result, err := s.db.ExecContext(ctx, query, fmt.Sprintf("%d seconds", int(retention.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
