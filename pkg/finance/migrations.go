package finance

import (
	"context"
	"fmt"
)

// Migrate creates the finance tables if they don't exist. Fee items are
// protected from category deletion by RESTRICT; invoices keep their
// rows when an enrollment is removed (enrollment_id goes NULL).
func (s *Store) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS finance_policies (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL UNIQUE REFERENCES tenants(id) ON DELETE CASCADE,
		allow_partial_enrollment BOOLEAN NOT NULL DEFAULT false,
		min_percent_to_enroll INTEGER,
		min_amount_to_enroll NUMERIC(12,2),
		require_interview_fee_before_submit BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS fee_categories (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		code VARCHAR(60) NOT NULL,
		name VARCHAR(120) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_fee_categories_tenant_code UNIQUE (tenant_id, code)
	);

	CREATE TABLE IF NOT EXISTS fee_items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		category_id UUID NOT NULL REFERENCES fee_categories(id) ON DELETE RESTRICT,
		code VARCHAR(60) NOT NULL,
		name VARCHAR(160) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_fee_items_tenant_code UNIQUE (tenant_id, code)
	);

	CREATE TABLE IF NOT EXISTS fee_structures (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		class_code VARCHAR(50) NOT NULL,
		name VARCHAR(160) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_fee_structures_tenant_class UNIQUE (tenant_id, class_code)
	);

	CREATE TABLE IF NOT EXISTS fee_structure_items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		structure_id UUID NOT NULL REFERENCES fee_structures(id) ON DELETE CASCADE,
		fee_item_id UUID NOT NULL REFERENCES fee_items(id) ON DELETE RESTRICT,
		amount NUMERIC(12,2) NOT NULL,
		CONSTRAINT uq_fee_structure_item UNIQUE (structure_id, fee_item_id)
	);

	CREATE TABLE IF NOT EXISTS scholarships (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		name VARCHAR(160) NOT NULL,
		type VARCHAR(20) NOT NULL,
		value NUMERIC(12,2) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_scholarships_tenant_name UNIQUE (tenant_id, name)
	);

	CREATE TABLE IF NOT EXISTS student_fee_assignments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		enrollment_id UUID NOT NULL,
		fee_structure_id UUID NOT NULL REFERENCES fee_structures(id) ON DELETE CASCADE,
		status VARCHAR(30) NOT NULL DEFAULT 'assigned',
		meta JSONB,
		assigned_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		invoice_no VARCHAR(50),
		invoice_type VARCHAR(30) NOT NULL,
		status VARCHAR(30) NOT NULL DEFAULT 'DRAFT',
		enrollment_id UUID REFERENCES enrollments(id) ON DELETE SET NULL,
		currency VARCHAR(10) NOT NULL DEFAULT 'KES',
		total_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		paid_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		balance_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		meta JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_enrollment ON invoices(enrollment_id);

	CREATE TABLE IF NOT EXISTS invoice_lines (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		description VARCHAR(200) NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		meta JSONB
	);

	CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		provider VARCHAR(30) NOT NULL,
		reference VARCHAR(100),
		amount NUMERIC(12,2) NOT NULL,
		currency VARCHAR(10) NOT NULL DEFAULT 'KES',
		received_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		created_by UUID
	);

	CREATE TABLE IF NOT EXISTS payment_allocations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		payment_id UUID NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
		invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		amount NUMERIC(12,2) NOT NULL,
		CONSTRAINT uq_payment_invoice_alloc UNIQUE (payment_id, invoice_id)
	);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure finance tables: %w", err)
	}
	return nil
}
