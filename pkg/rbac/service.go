package rbac

import (
	"context"

	"github.com/google/uuid"

	"github.com/shulecore/shulecore/pkg/apperrors"
	"github.com/shulecore/shulecore/pkg/audit"
)

// Service runs RBAC mutations with system-role protection and audit
// recording. Permission checks happen in the guard before calls get here.
type Service struct {
	store    *Store
	recorder audit.Recorder
}

// NewService creates an RBAC service. recorder may be nil.
func NewService(store *Store, recorder audit.Recorder) *Service {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Service{store: store, recorder: recorder}
}

// checkTenantOwned rejects edits to roles a tenant does not own: system
// roles and global roles are Forbidden, other tenants' roles are NotFound.
func checkTenantOwned(role *Role, tenantID uuid.UUID) error {
	if role.IsSystem {
		return apperrors.E(apperrors.KindForbidden, "system roles cannot be modified")
	}
	if role.TenantID == nil {
		return apperrors.E(apperrors.KindForbidden, "global roles cannot be modified from tenant scope")
	}
	if *role.TenantID != tenantID {
		return apperrors.E(apperrors.KindNotFound, "role not found")
	}
	return nil
}

// CreateRole creates a tenant-owned custom role.
func (s *Service) CreateRole(ctx context.Context, actor, tenantID uuid.UUID, code, name string, description *string) (*Role, error) {
	role, err := s.store.CreateRole(ctx, TenantScope(tenantID), code, name, description)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionRoleCreate, audit.ResourceRole, &role.ID, map[string]interface{}{
		"code": role.Code,
		"name": role.Name,
	})
	return role, nil
}

// UpdateRole renames a tenant-owned role.
func (s *Service) UpdateRole(ctx context.Context, actor, tenantID, roleID uuid.UUID, name, description *string) (*Role, error) {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if err := checkTenantOwned(role, tenantID); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateRole(ctx, roleID, name, description)
	if err != nil {
		return nil, err
	}
	s.record(tenantID, actor, audit.ActionRoleUpdate, audit.ResourceRole, &roleID, map[string]interface{}{
		"code": updated.Code,
	})
	return updated, nil
}

// DeleteRole removes a tenant-owned role.
func (s *Service) DeleteRole(ctx context.Context, actor, tenantID, roleID uuid.UUID) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := checkTenantOwned(role, tenantID); err != nil {
		return err
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionRoleDelete, audit.ResourceRole, &roleID, map[string]interface{}{
		"code": role.Code,
	})
	return nil
}

// SetRolePermissions replaces a tenant-owned role's grants.
func (s *Service) SetRolePermissions(ctx context.Context, actor, tenantID, roleID uuid.UUID, permissionCodes []string) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := checkTenantOwned(role, tenantID); err != nil {
		return err
	}
	if err := s.store.SetRolePermissions(ctx, roleID, permissionCodes); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionRoleUpdate, audit.ResourceRole, &roleID, map[string]interface{}{
		"code":        role.Code,
		"permissions": permissionCodes,
	})
	return nil
}

// AssignRole gives a user a role within the tenant, by code. The code may
// name the tenant's own role or a global system role. Repeat assignments
// are no-ops.
func (s *Service) AssignRole(ctx context.Context, actor, tenantID, userID uuid.UUID, roleCode string) error {
	role, err := s.store.GetRoleByCode(ctx, tenantID, roleCode)
	if err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, TenantScope(tenantID), userID, role.ID); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionRoleAssign, audit.ResourceUserRole, nil, map[string]interface{}{
		"user_id":   userID.String(),
		"role_code": role.Code,
	})
	return nil
}

// UnassignRole removes a user's role within the tenant, by code.
func (s *Service) UnassignRole(ctx context.Context, actor, tenantID, userID uuid.UUID, roleCode string) error {
	role, err := s.store.GetRoleByCode(ctx, tenantID, roleCode)
	if err != nil {
		return err
	}
	if err := s.store.UnassignRole(ctx, TenantScope(tenantID), userID, role.ID); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionRoleUnassign, audit.ResourceUserRole, nil, map[string]interface{}{
		"user_id":   userID.String(),
		"role_code": role.Code,
	})
	return nil
}

// AssignGlobalRole creates a global (tenant-less) assignment. Reserved for
// platform operators granting SUPER_ADMIN.
func (s *Service) AssignGlobalRole(ctx context.Context, actor, userID uuid.UUID, roleCode string) error {
	role, err := s.store.GetRoleByCode(ctx, uuid.Nil, roleCode)
	if err != nil {
		return err
	}
	if role.TenantID != nil {
		return apperrors.E(apperrors.KindValidationFailed, "only global roles can be assigned globally")
	}
	if err := s.store.AssignRole(ctx, GlobalScope(), userID, role.ID); err != nil {
		return err
	}
	s.record(uuid.Nil, actor, audit.ActionRoleAssign, audit.ResourceUserRole, nil, map[string]interface{}{
		"user_id":   userID.String(),
		"role_code": role.Code,
		"scope":     PlatformMarker,
	})
	return nil
}

// SetOverride creates or replaces a user's ALLOW/DENY override for one
// permission code within the tenant.
func (s *Service) SetOverride(ctx context.Context, actor, tenantID, userID uuid.UUID, permissionCode string, effect Effect, reason *string) error {
	if !effect.Valid() {
		return apperrors.Errorf(apperrors.KindValidationFailed, "invalid override effect: %s", effect)
	}
	perm, err := s.store.GetPermissionByCode(ctx, permissionCode)
	if err != nil {
		return err
	}
	if err := s.store.UpsertOverride(ctx, TenantScope(tenantID), userID, perm.ID, effect, reason); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionOverrideUpsert, audit.ResourceOverride, nil, map[string]interface{}{
		"user_id":         userID.String(),
		"permission_code": perm.Code,
		"effect":          string(effect),
	})
	return nil
}

// RemoveOverride deletes a user's override for one permission code within
// the tenant.
func (s *Service) RemoveOverride(ctx context.Context, actor, tenantID, userID uuid.UUID, permissionCode string) error {
	perm, err := s.store.GetPermissionByCode(ctx, permissionCode)
	if err != nil {
		return err
	}
	if err := s.store.RemoveOverride(ctx, TenantScope(tenantID), userID, perm.ID); err != nil {
		return err
	}
	s.record(tenantID, actor, audit.ActionOverrideRemove, audit.ResourceOverride, nil, map[string]interface{}{
		"user_id":         userID.String(),
		"permission_code": perm.Code,
	})
	return nil
}

func (s *Service) record(tenantID, actor uuid.UUID, action, resource string, resourceID *uuid.UUID, payload map[string]interface{}) {
	s.recorder.Record(audit.Event{
		TenantID:    tenantID,
		ActorUserID: &actor,
		Action:      action,
		Resource:    resource,
		ResourceID:  resourceID,
		Payload:     payload,
	})
}
