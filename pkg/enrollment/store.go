package enrollment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

// Store persists enrollments.
type Store struct {
	db *sql.DB
}

// NewStore creates a new enrollment store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the enrollments table if it doesn't exist.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS enrollments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		student_id UUID,
		status VARCHAR(30) NOT NULL DEFAULT 'DRAFT',
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_by UUID,
		updated_by UUID,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_tenant_status ON enrollments(tenant_id, status);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure enrollments table: %w", err)
	}
	return nil
}

const enrollmentColumns = `id, tenant_id, student_id, status, payload, created_by, updated_by, created_at, updated_at`

func scanEnrollment(row interface{ Scan(...interface{}) error }) (*Enrollment, error) {
	enrollment := &Enrollment{}
	var rawPayload []byte
	err := row.Scan(&enrollment.ID, &enrollment.TenantID, &enrollment.StudentID,
		&enrollment.Status, &rawPayload, &enrollment.CreatedBy, &enrollment.UpdatedBy,
		&enrollment.CreatedAt, &enrollment.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &enrollment.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	return enrollment, nil
}

// Create inserts a DRAFT enrollment.
func (s *Store) Create(ctx context.Context, tenantID uuid.UUID, actor *uuid.UUID, payload Payload) (*Enrollment, error) {
	if payload == nil {
		payload = Payload{}
	}
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT INTO enrollments (tenant_id, status, payload, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING ` + enrollmentColumns
	enrollment, err := scanEnrollment(s.db.QueryRowContext(ctx, query, tenantID, StatusDraft, rawPayload, actor))
	if err != nil {
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}
	return enrollment, nil
}

// Delete removes an enrollment row. Missing rows are not an error; the
// caller uses this to undo a creation whose side effects failed.
func (s *Store) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM enrollments WHERE tenant_id = $1 AND id = $2`, tenantID, id); err != nil {
		return fmt.Errorf("failed to delete enrollment: %w", err)
	}
	return nil
}

// Get resolves an enrollment within the tenant.
func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (*Enrollment, error) {
	enrollment, err := scanEnrollment(s.db.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "enrollment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return enrollment, nil
}

// List returns the tenant's enrollments, newest first, optionally
// narrowed by status.
func (s *Store) List(ctx context.Context, tenantID uuid.UUID, status Status) ([]*Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*Enrollment
	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, enrollment)
	}
	return enrollments, rows.Err()
}

// ReplacePayload swaps the payload document wholesale. The write is
// guarded by the status the caller validated against.
func (s *Store) ReplacePayload(ctx context.Context, tenantID, id uuid.UUID, actor *uuid.UUID, fromStatus Status, payload Payload) (*Enrollment, error) {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		UPDATE enrollments
		SET payload = $1, updated_by = $2, updated_at = NOW()
		WHERE tenant_id = $3 AND id = $4 AND status = $5
		RETURNING ` + enrollmentColumns
	enrollment, err := scanEnrollment(s.db.QueryRowContext(ctx, query, rawPayload, actor, tenantID, id, fromStatus))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindConflict, "enrollment was modified concurrently")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update enrollment payload: %w", err)
	}
	return enrollment, nil
}

// Transition moves an enrollment from one status to another. The guard
// on the previous status makes racing transitions lose cleanly instead
// of double-applying.
func (s *Store) Transition(ctx context.Context, tenantID, id uuid.UUID, actor *uuid.UUID, from, to Status) (*Enrollment, error) {
	query := `
		UPDATE enrollments
		SET status = $1, updated_by = $2, updated_at = NOW()
		WHERE tenant_id = $3 AND id = $4 AND status = $5
		RETURNING ` + enrollmentColumns
	enrollment, err := scanEnrollment(s.db.QueryRowContext(ctx, query, to, actor, tenantID, id, from))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindConflict, "enrollment was modified concurrently")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition enrollment: %w", err)
	}
	return enrollment, nil
}
