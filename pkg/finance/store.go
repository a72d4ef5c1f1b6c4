package finance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

// Store persists the finance ledger.
type Store struct {
	db *sql.DB
}

// NewStore creates a new finance store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// querier is satisfied by both *sql.DB and *sql.Tx so recomputation
// helpers run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func marshalMeta(meta map[string]interface{}) (interface{}, error) {
	if meta == nil {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal meta: %w", err)
	}
	return raw, nil
}

func unmarshalMeta(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
	}
	return meta, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func trimName(s string) string {
	return strings.TrimSpace(s)
}

// GetOrCreatePolicy returns the tenant's policy, creating the default
// row on first read.
func (s *Store) GetOrCreatePolicy(ctx context.Context, tenantID uuid.UUID) (*Policy, error) {
	query := `
		INSERT INTO finance_policies (tenant_id)
		VALUES ($1)
		ON CONFLICT (tenant_id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id
		RETURNING id, tenant_id, allow_partial_enrollment, min_percent_to_enroll,
			min_amount_to_enroll, require_interview_fee_before_submit, created_at, updated_at
	`
	policy := &Policy{}
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&policy.ID, &policy.TenantID, &policy.AllowPartialEnrollment,
		&policy.MinPercentToEnroll, &policy.MinAmountToEnroll,
		&policy.RequireInterviewFeeBeforeSubmit, &policy.CreatedAt, &policy.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get finance policy: %w", err)
	}
	return policy, nil
}

// UpsertPolicy applies partial policy changes on top of the current (or
// default) row.
func (s *Store) UpsertPolicy(ctx context.Context, tenantID uuid.UUID, update PolicyUpdate) (*Policy, error) {
	policy, err := s.GetOrCreatePolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if update.AllowPartialEnrollment != nil {
		policy.AllowPartialEnrollment = *update.AllowPartialEnrollment
	}
	if update.MinPercentToEnroll != nil {
		policy.MinPercentToEnroll = update.MinPercentToEnroll
	}
	if update.MinAmountToEnroll != nil {
		policy.MinAmountToEnroll = update.MinAmountToEnroll
	}
	if update.RequireInterviewFeeBeforeSubmit != nil {
		policy.RequireInterviewFeeBeforeSubmit = *update.RequireInterviewFeeBeforeSubmit
	}

	query := `
		UPDATE finance_policies
		SET allow_partial_enrollment = $1, min_percent_to_enroll = $2,
			min_amount_to_enroll = $3, require_interview_fee_before_submit = $4,
			updated_at = NOW()
		WHERE tenant_id = $5
	`
	if _, err := s.db.ExecContext(ctx, query,
		policy.AllowPartialEnrollment, policy.MinPercentToEnroll,
		policy.MinAmountToEnroll, policy.RequireInterviewFeeBeforeSubmit, tenantID); err != nil {
		return nil, fmt.Errorf("failed to update finance policy: %w", err)
	}
	return policy, nil
}

// CreateScholarship inserts a tenant scholarship.
func (s *Store) CreateScholarship(ctx context.Context, tenantID uuid.UUID, name, scholarshipType string, value float64, isActive bool) (*Scholarship, error) {
	query := `
		INSERT INTO scholarships (tenant_id, name, type, value, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, name, type, value, is_active, created_at
	`
	sch := &Scholarship{}
	err := s.db.QueryRowContext(ctx, query, tenantID, name, scholarshipType, value, isActive).Scan(
		&sch.ID, &sch.TenantID, &sch.Name, &sch.Type, &sch.Value, &sch.IsActive, &sch.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.E(apperrors.KindConflict, "scholarship name already exists for this school")
		}
		return nil, fmt.Errorf("failed to create scholarship: %w", err)
	}
	return sch, nil
}

// ListScholarships returns the tenant's scholarships, newest first.
func (s *Store) ListScholarships(ctx context.Context, tenantID uuid.UUID) ([]*Scholarship, error) {
	query := `
		SELECT id, tenant_id, name, type, value, is_active, created_at
		FROM scholarships
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scholarships: %w", err)
	}
	defer rows.Close()

	var scholarships []*Scholarship
	for rows.Next() {
		sch := &Scholarship{}
		if err := rows.Scan(&sch.ID, &sch.TenantID, &sch.Name, &sch.Type, &sch.Value, &sch.IsActive, &sch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scholarship: %w", err)
		}
		scholarships = append(scholarships, sch)
	}
	return scholarships, rows.Err()
}

// getActiveScholarship resolves an active tenant scholarship.
func (s *Store) getActiveScholarship(ctx context.Context, q querier, tenantID, id uuid.UUID) (*Scholarship, error) {
	query := `
		SELECT id, tenant_id, name, type, value, is_active, created_at
		FROM scholarships
		WHERE tenant_id = $1 AND id = $2 AND is_active = true
	`
	sch := &Scholarship{}
	err := q.QueryRowContext(ctx, query, tenantID, id).Scan(
		&sch.ID, &sch.TenantID, &sch.Name, &sch.Type, &sch.Value, &sch.IsActive, &sch.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "scholarship not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scholarship: %w", err)
	}
	return sch, nil
}

// CreateAssignment links an enrollment to a fee structure. The structure
// must belong to the tenant.
func (s *Store) CreateAssignment(ctx context.Context, tenantID, enrollmentID, structureID uuid.UUID, meta map[string]interface{}) (*StudentFeeAssignment, error) {
	if _, err := s.GetStructure(ctx, tenantID, structureID); err != nil {
		return nil, err
	}

	rawMeta, err := marshalMeta(meta)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO student_fee_assignments (tenant_id, enrollment_id, fee_structure_id, meta)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, enrollment_id, fee_structure_id, status, assigned_at
	`
	assignment := &StudentFeeAssignment{Meta: meta}
	err = s.db.QueryRowContext(ctx, query, tenantID, enrollmentID, structureID, rawMeta).Scan(
		&assignment.ID, &assignment.TenantID, &assignment.EnrollmentID,
		&assignment.FeeStructureID, &assignment.Status, &assignment.AssignedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fee assignment: %w", err)
	}
	return assignment, nil
}
