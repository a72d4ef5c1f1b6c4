package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

// CreateStructure inserts a fee structure keyed by class code.
func (s *Store) CreateStructure(ctx context.Context, tenantID uuid.UUID, classCode, name string, isActive bool) (*FeeStructure, error) {
	classCode = trimName(classCode)
	if classCode == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "class code is required")
	}

	query := `
		INSERT INTO fee_structures (tenant_id, class_code, name, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, class_code, name, is_active, created_at
	`
	structure := &FeeStructure{}
	err := s.db.QueryRowContext(ctx, query, tenantID, classCode, trimName(name), isActive).Scan(
		&structure.ID, &structure.TenantID, &structure.ClassCode,
		&structure.Name, &structure.IsActive, &structure.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.E(apperrors.KindConflict, "fee structure already exists for this class")
		}
		return nil, fmt.Errorf("failed to create fee structure: %w", err)
	}
	return structure, nil
}

// GetStructure resolves a structure within the tenant.
func (s *Store) GetStructure(ctx context.Context, tenantID, id uuid.UUID) (*FeeStructure, error) {
	query := `
		SELECT id, tenant_id, class_code, name, is_active, created_at
		FROM fee_structures
		WHERE tenant_id = $1 AND id = $2
	`
	structure := &FeeStructure{}
	err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(
		&structure.ID, &structure.TenantID, &structure.ClassCode,
		&structure.Name, &structure.IsActive, &structure.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "fee structure not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fee structure: %w", err)
	}
	return structure, nil
}

// FindStructureByClass resolves the tenant's active structure for a
// class code.
func (s *Store) FindStructureByClass(ctx context.Context, tenantID uuid.UUID, classCode string) (*FeeStructure, error) {
	query := `
		SELECT id, tenant_id, class_code, name, is_active, created_at
		FROM fee_structures
		WHERE tenant_id = $1 AND class_code = $2 AND is_active = true
	`
	structure := &FeeStructure{}
	err := s.db.QueryRowContext(ctx, query, tenantID, trimName(classCode)).Scan(
		&structure.ID, &structure.TenantID, &structure.ClassCode,
		&structure.Name, &structure.IsActive, &structure.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "fee structure not found for class code")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find fee structure: %w", err)
	}
	return structure, nil
}

// ListStructures returns the tenant's structures, newest first.
func (s *Store) ListStructures(ctx context.Context, tenantID uuid.UUID) ([]*FeeStructure, error) {
	query := `
		SELECT id, tenant_id, class_code, name, is_active, created_at
		FROM fee_structures
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee structures: %w", err)
	}
	defer rows.Close()

	var structures []*FeeStructure
	for rows.Next() {
		structure := &FeeStructure{}
		if err := rows.Scan(&structure.ID, &structure.TenantID, &structure.ClassCode,
			&structure.Name, &structure.IsActive, &structure.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee structure: %w", err)
		}
		structures = append(structures, structure)
	}
	return structures, rows.Err()
}

// UpdateStructure applies partial changes to a structure.
func (s *Store) UpdateStructure(ctx context.Context, tenantID, id uuid.UUID, update StructureUpdate) (*FeeStructure, error) {
	setClauses := []string{}
	args := []interface{}{}

	if update.ClassCode != nil {
		args = append(args, trimName(*update.ClassCode))
		setClauses = append(setClauses, fmt.Sprintf("class_code = $%d", len(args)))
	}
	if update.Name != nil {
		args = append(args, trimName(*update.Name))
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", len(args)))
	}
	if update.IsActive != nil {
		args = append(args, *update.IsActive)
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(setClauses) == 0 {
		return s.GetStructure(ctx, tenantID, id)
	}

	args = append(args, tenantID, id)
	query := fmt.Sprintf(`
		UPDATE fee_structures SET %s
		WHERE tenant_id = $%d AND id = $%d
		RETURNING id, tenant_id, class_code, name, is_active, created_at
	`, strings.Join(setClauses, ", "), len(args)-1, len(args))

	structure := &FeeStructure{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&structure.ID, &structure.TenantID, &structure.ClassCode,
		&structure.Name, &structure.IsActive, &structure.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "fee structure not found")
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.E(apperrors.KindConflict, "fee structure already exists for this class")
		}
		return nil, fmt.Errorf("failed to update fee structure: %w", err)
	}
	return structure, nil
}

// DeleteStructure removes a structure and its item links.
func (s *Store) DeleteStructure(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM fee_structures WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete fee structure: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.E(apperrors.KindNotFound, "fee structure not found")
	}
	return nil
}

// ReplaceStructureItems swaps the structure's item set wholesale.
// Duplicate fee items in the replacement set and items belonging to
// another tenant are rejected before anything is deleted. Replacing with
// the same set is idempotent.
func (s *Store) ReplaceStructureItems(ctx context.Context, tenantID, structureID uuid.UUID, items []StructureItemInput) error {
	if _, err := s.GetStructure(ctx, tenantID, structureID); err != nil {
		return err
	}

	seen := make(map[uuid.UUID]struct{}, len(items))
	itemIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.Amount <= 0 {
			return apperrors.E(apperrors.KindValidationFailed, "each structure item amount must be > 0")
		}
		if _, dup := seen[item.FeeItemID]; dup {
			return apperrors.E(apperrors.KindValidationFailed, "duplicate fee items are not allowed in a structure")
		}
		seen[item.FeeItemID] = struct{}{}
		itemIDs = append(itemIDs, item.FeeItemID)
	}

	if len(itemIDs) > 0 {
		var found int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM fee_items WHERE tenant_id = $1 AND id = ANY($2)`,
			tenantID, pq.Array(itemIDs)).Scan(&found)
		if err != nil {
			return fmt.Errorf("failed to verify fee items: %w", err)
		}
		if found != len(itemIDs) {
			return apperrors.E(apperrors.KindValidationFailed, "one or more fee items do not belong to this school")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fee_structure_items WHERE structure_id = $1`, structureID); err != nil {
		return fmt.Errorf("failed to clear structure items: %w", err)
	}
	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fee_structure_items (structure_id, fee_item_id, amount) VALUES ($1, $2, $3)`,
			structureID, item.FeeItemID, item.Amount); err != nil {
			return fmt.Errorf("failed to insert structure item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit structure items: %w", err)
	}
	return nil
}

// UpsertStructureItem adds or reprices a single structure item. Tenant
// ownership of both sides is checked by the caller.
func (s *Store) UpsertStructureItem(ctx context.Context, structureID, feeItemID uuid.UUID, amount float64) error {
	query := `
		INSERT INTO fee_structure_items (structure_id, fee_item_id, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (structure_id, fee_item_id) DO UPDATE SET amount = EXCLUDED.amount
	`
	if _, err := s.db.ExecContext(ctx, query, structureID, feeItemID, amount); err != nil {
		return fmt.Errorf("failed to upsert structure item: %w", err)
	}
	return nil
}

// RemoveStructureItem detaches one fee item from a structure.
func (s *Store) RemoveStructureItem(ctx context.Context, tenantID, structureID, feeItemID uuid.UUID) error {
	if _, err := s.GetStructure(ctx, tenantID, structureID); err != nil {
		return err
	}
	if _, err := s.GetFeeItem(ctx, tenantID, feeItemID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM fee_structure_items WHERE structure_id = $1 AND fee_item_id = $2`,
		structureID, feeItemID)
	if err != nil {
		return fmt.Errorf("failed to remove structure item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.E(apperrors.KindNotFound, "fee item is not attached to this structure")
	}
	return nil
}

// ListStructureItems returns the structure's items joined with their
// fee items and categories, ordered by category code then item code.
func (s *Store) ListStructureItems(ctx context.Context, tenantID, structureID uuid.UUID) ([]StructureItemDetail, error) {
	query := `
		SELECT si.fee_item_id, si.amount, fi.code, fi.name, fc.id, fc.code, fc.name
		FROM fee_structure_items si
		JOIN fee_structures fs ON fs.id = si.structure_id
		JOIN fee_items fi ON fi.id = si.fee_item_id
		JOIN fee_categories fc ON fc.id = fi.category_id
		WHERE si.structure_id = $1 AND fs.tenant_id = $2
			AND fi.tenant_id = $2 AND fc.tenant_id = $2
		ORDER BY fc.code ASC, fi.code ASC
	`
	rows, err := s.db.QueryContext(ctx, query, structureID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list structure items: %w", err)
	}
	defer rows.Close()

	var details []StructureItemDetail
	for rows.Next() {
		var d StructureItemDetail
		if err := rows.Scan(&d.FeeItemID, &d.Amount, &d.FeeItemCode, &d.FeeItemName,
			&d.CategoryID, &d.CategoryCode, &d.CategoryName); err != nil {
			return nil, fmt.Errorf("failed to scan structure item: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}
