package tenants

import (
	"context"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/audit"
)

// Service runs tenant lifecycle operations, invalidating cached host
// resolutions and recording audit events as it goes. Authorization happens
// before calls reach this layer.
type Service struct {
	store    *Store
	cache    *ResolutionCache
	recorder audit.Recorder
}

// NewService creates a tenant service. cache may be nil; recorder may be
// audit.NopRecorder.
func NewService(store *Store, cache *ResolutionCache, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{store: store, cache: cache, recorder: recorder}
}

// Create onboards a new school.
func (s *Service) Create(ctx context.Context, actor uuid.UUID, req CreateTenantRequest) (*Tenant, error) {
	tenant, err := s.store.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	s.record(actor, tenant, audit.ActionTenantCreate, map[string]interface{}{
		"slug": tenant.Slug,
		"name": tenant.Name,
	})
	return tenant, nil
}

// Get returns one tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return s.store.Get(ctx, id)
}

// List returns all tenants.
func (s *Service) List(ctx context.Context) ([]*Tenant, error) {
	return s.store.List(ctx)
}

// Update applies partial changes and drops stale host resolutions for both
// the old and new identity.
func (s *Service) Update(ctx context.Context, actor, id uuid.UUID, req UpdateTenantRequest) (*Tenant, error) {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tenant, err := s.store.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, before, tenant)
	s.record(actor, tenant, audit.ActionTenantUpdate, map[string]interface{}{
		"slug": tenant.Slug,
	})
	return tenant, nil
}

// Suspend deactivates a tenant without deleting it.
func (s *Service) Suspend(ctx context.Context, actor, id uuid.UUID) error {
	return s.setActive(ctx, actor, id, false, audit.ActionTenantSuspend)
}

// Activate reverses a suspension.
func (s *Service) Activate(ctx context.Context, actor, id uuid.UUID) error {
	return s.setActive(ctx, actor, id, true, audit.ActionTenantActivate)
}

func (s *Service) setActive(ctx context.Context, actor, id uuid.UUID, active bool, action string) error {
	tenant, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.invalidate(ctx, tenant, nil)
	s.record(actor, tenant, action, map[string]interface{}{"is_active": active})
	return nil
}

// SoftDelete retires a tenant and frees its slug and domain.
func (s *Service) SoftDelete(ctx context.Context, actor, id uuid.UUID) error {
	tenant, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, tenant, nil)
	s.record(actor, tenant, audit.ActionTenantDelete, map[string]interface{}{
		"slug": tenant.Slug,
	})
	return nil
}

func (s *Service) invalidate(ctx context.Context, before, after *Tenant) {
	if s.cache == nil {
		return
	}
	if before != nil {
		s.cache.InvalidateTenant(ctx, before)
	}
	if after != nil {
		s.cache.InvalidateTenant(ctx, after)
	}
}

func (s *Service) record(actor uuid.UUID, tenant *Tenant, action string, payload map[string]interface{}) {
	s.recorder.Record(audit.Event{
		TenantID:    tenant.ID,
		ActorUserID: &actor,
		Action:      action,
		Resource:    audit.ResourceTenant,
		ResourceID:  &tenant.ID,
		Payload:     payload,
	})
}
