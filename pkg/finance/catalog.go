package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
)

const maxCatalogPageSize = 500

// CreateFeeCategory inserts a catalog category. Codes are lowercased
// and trimmed before the tenant-uniqueness check.
func (s *Store) CreateFeeCategory(ctx context.Context, tenantID uuid.UUID, code, name string, isActive bool) (*FeeCategory, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "category code is required")
	}

	query := `
		INSERT INTO fee_categories (tenant_id, code, name, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, code, name, is_active, created_at
	`
	category := &FeeCategory{}
	err := s.db.QueryRowContext(ctx, query, tenantID, code, trimName(name), isActive).Scan(
		&category.ID, &category.TenantID, &category.Code, &category.Name,
		&category.IsActive, &category.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.E(apperrors.KindConflict, "fee category code already exists for this school")
		}
		return nil, fmt.Errorf("failed to create fee category: %w", err)
	}
	return category, nil
}

// GetFeeCategory resolves a category within the tenant.
func (s *Store) GetFeeCategory(ctx context.Context, tenantID, id uuid.UUID) (*FeeCategory, error) {
	query := `
		SELECT id, tenant_id, code, name, is_active, created_at
		FROM fee_categories
		WHERE tenant_id = $1 AND id = $2
	`
	category := &FeeCategory{}
	err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(
		&category.ID, &category.TenantID, &category.Code, &category.Name,
		&category.IsActive, &category.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "fee category not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fee category: %w", err)
	}
	return category, nil
}

// ListFeeCategories returns a filtered page of the tenant's categories.
func (s *Store) ListFeeCategories(ctx context.Context, tenantID uuid.UUID, filter CatalogFilter) ([]*FeeCategory, error) {
	query := `SELECT id, tenant_id, code, name, is_active, created_at FROM fee_categories WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if filter.Search != "" {
		args = append(args, "%"+trimName(filter.Search)+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR code ILIKE $%d)", len(args), len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	query += catalogOrderAndPage(&args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee categories: %w", err)
	}
	defer rows.Close()

	var categories []*FeeCategory
	for rows.Next() {
		category := &FeeCategory{}
		if err := rows.Scan(&category.ID, &category.TenantID, &category.Code,
			&category.Name, &category.IsActive, &category.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// CreateFeeItem inserts a catalog item under a category of the same
// tenant.
func (s *Store) CreateFeeItem(ctx context.Context, tenantID, categoryID uuid.UUID, code, name string, isActive bool) (*FeeItem, error) {
	if _, err := s.GetFeeCategory(ctx, tenantID, categoryID); err != nil {
		return nil, err
	}

	code = normalizeCode(code)
	if code == "" {
		return nil, apperrors.E(apperrors.KindValidationFailed, "fee item code is required")
	}

	query := `
		INSERT INTO fee_items (tenant_id, category_id, code, name, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, category_id, code, name, is_active, created_at
	`
	item := &FeeItem{}
	err := s.db.QueryRowContext(ctx, query, tenantID, categoryID, code, trimName(name), isActive).Scan(
		&item.ID, &item.TenantID, &item.CategoryID, &item.Code, &item.Name,
		&item.IsActive, &item.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.E(apperrors.KindConflict, "fee item code already exists for this school")
		}
		return nil, fmt.Errorf("failed to create fee item: %w", err)
	}
	return item, nil
}

// GetFeeItem resolves an item within the tenant.
func (s *Store) GetFeeItem(ctx context.Context, tenantID, id uuid.UUID) (*FeeItem, error) {
	query := `
		SELECT id, tenant_id, category_id, code, name, is_active, created_at
		FROM fee_items
		WHERE tenant_id = $1 AND id = $2
	`
	item := &FeeItem{}
	err := s.db.QueryRowContext(ctx, query, tenantID, id).Scan(
		&item.ID, &item.TenantID, &item.CategoryID, &item.Code, &item.Name,
		&item.IsActive, &item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.E(apperrors.KindNotFound, "fee item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fee item: %w", err)
	}
	return item, nil
}

// getFeeItemByCode resolves an item by normalized code, or nil when the
// code is unused.
func (s *Store) getFeeItemByCode(ctx context.Context, tenantID uuid.UUID, code string) (*FeeItem, error) {
	query := `
		SELECT id, tenant_id, category_id, code, name, is_active, created_at
		FROM fee_items
		WHERE tenant_id = $1 AND code = $2
	`
	item := &FeeItem{}
	err := s.db.QueryRowContext(ctx, query, tenantID, normalizeCode(code)).Scan(
		&item.ID, &item.TenantID, &item.CategoryID, &item.Code, &item.Name,
		&item.IsActive, &item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fee item by code: %w", err)
	}
	return item, nil
}

// ListFeeItems returns a filtered page of the tenant's fee items.
func (s *Store) ListFeeItems(ctx context.Context, tenantID uuid.UUID, filter CatalogFilter) ([]*FeeItem, error) {
	query := `SELECT id, tenant_id, category_id, code, name, is_active, created_at FROM fee_items WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+trimName(filter.Search)+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR code ILIKE $%d)", len(args), len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += fmt.Sprintf(" AND is_active = $%d", len(args))
	}
	query += catalogOrderAndPage(&args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fee items: %w", err)
	}
	defer rows.Close()

	var items []*FeeItem
	for rows.Next() {
		item := &FeeItem{}
		if err := rows.Scan(&item.ID, &item.TenantID, &item.CategoryID,
			&item.Code, &item.Name, &item.IsActive, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// catalogOrderAndPage renders the shared ORDER BY / LIMIT / OFFSET tail.
// Sort accepts "code" or "created_at", descending with a "-" prefix;
// anything else falls back to newest first.
func catalogOrderAndPage(args *[]interface{}, filter CatalogFilter) string {
	field := "created_at"
	direction := "DESC"
	sort := trimName(filter.Sort)
	if sort != "" {
		if sort[0] == '-' {
			sort = sort[1:]
		} else {
			direction = "ASC"
		}
		if sort == "code" || sort == "created_at" {
			field = sort
		}
	}

	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > maxCatalogPageSize {
		pageSize = maxCatalogPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}

	*args = append(*args, pageSize)
	limitIdx := len(*args)
	*args = append(*args, (page-1)*pageSize)
	offsetIdx := len(*args)
	return fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", field, direction, limitIdx, offsetIdx)
}
