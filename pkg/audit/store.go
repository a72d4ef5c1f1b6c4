package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists audit events to PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit_logs table if it doesn't exist.
func (s *Store) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		tenant_id UUID NOT NULL,
		actor_user_id UUID,
		action VARCHAR(150) NOT NULL,
		resource VARCHAR(120) NOT NULL,
		resource_id UUID,
		payload JSONB,
		meta JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_created ON audit_logs(tenant_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource, resource_id);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure audit_logs table: %w", err)
	}
	return nil
}

// Insert writes one event row. Payload and meta are sanitized here so no
// sink can leak credentials regardless of the caller.
func (s *Store) Insert(ctx context.Context, event Event) error {
	payloadJSON, err := marshalMap(sanitizeMap(event.Payload))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	metaJSON, err := marshalMap(sanitizeMap(event.Meta))
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_logs (tenant_id, actor_user_id, action, resource, resource_id, payload, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		event.TenantID,
		event.ActorUserID,
		event.Action,
		event.Resource,
		event.ResourceID,
		payloadJSON,
		metaJSON,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search filters audit rows by tenant and optional action/resource, newest
// first.
func (s *Store) Search(ctx context.Context, tenantID uuid.UUID, action, resource string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, actor_user_id, action, resource, resource_id, payload, meta, created_at
		FROM audit_logs
		WHERE tenant_id = $1
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR resource = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, action, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var payloadJSON, metaJSON []byte
		if err := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.ActorUserID, &ev.Action, &ev.Resource,
			&ev.ResourceID, &payloadJSON, &metaJSON, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &ev.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal meta: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func marshalMap(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
