// Package service contains the application's business logic.
package service

import (
	"context"
	"log/slog"

	"pawhaven/internal/cache"
	"pawhaven/internal/models"
	"pawhaven/internal/permissions"
	"pawhaven/internal/repository"
)

// RoleService resolves effective permissions and manages role assignments.
type RoleService struct {
	registry *permissions.Registry
	roleRepo repository.RoleRepository
	userRepo repository.UserRepository
}

// NewRoleService returns a new RoleService.
func NewRoleService(registry *permissions.Registry, roleRepo repository.RoleRepository, userRepo repository.UserRepository) *RoleService {
	return &RoleService{
		registry: registry,
		roleRepo: roleRepo,
		userRepo: userRepo,
	}
}

// EffectivePermissions computes the union of the permission sets of every
// role the user holds. Site admins get the virtual admin role unioned in; it
// is never stored, so it can never be revoked by a row deletion.
func (s *RoleService) EffectivePermissions(ctx context.Context, userID uint) (permissions.Set, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, models.NewNotFoundError("user", userID)
	}

	effective := permissions.NewSet()
	if user.IsSiteAdmin {
		effective = effective.Union(permissions.AdminRole.Permissions)
	}

	assignments, err := s.roleRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	for _, a := range assignments {
		role, ok := s.registry.Lookup(a.RoleName)
		if !ok {
			// A role removed from the catalog leaves orphan rows behind.
			// They grant nothing.
			slog.WarnContext(ctx, "role assignment references unknown role",
				"user_id", userID, "role", a.RoleName)
			continue
		}
		effective = effective.Union(role.Permissions)
	}

	return effective, nil
}

// HasPermission reports whether the user's effective permission set contains
// the given permission.
func (s *RoleService) HasPermission(ctx context.Context, userID uint, perm string) (bool, error) {
	set, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// Badges returns the user's displayable roles ordered by priority, including
// the virtual admin badge for site admins.
func (s *RoleService) Badges(ctx context.Context, userID uint) ([]permissions.Role, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, models.NewNotFoundError("user", userID)
	}

	var badges []permissions.Role
	if user.IsSiteAdmin {
		badges = append(badges, permissions.AdminRole)
	}

	assignments, err := s.roleRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	for _, a := range assignments {
		if role, ok := s.registry.Lookup(a.RoleName); ok {
			badges = append(badges, role)
		}
	}

	permissions.SortBadges(badges)
	return badges, nil
}

// Assign grants a catalog role to a user. The actor must hold assign_roles.
// Assigning a role the user already holds is a no-op.
func (s *RoleService) Assign(ctx context.Context, actorID, targetID uint, roleName string) error {
	allowed, err := s.HasPermission(ctx, actorID, permissions.AssignRoles)
	if err != nil {
		return err
	}
	if !allowed {
		return models.NewPermissionDeniedError("assigning roles requires the assign_roles permission")
	}

	if roleName == permissions.AdminRoleName {
		return models.NewValidationError("the admin role is derived from the site-admin flag and cannot be assigned")
	}
	if _, ok := s.registry.Lookup(roleName); !ok {
		return models.NewValidationError("unknown role: " + roleName)
	}

	if _, err := s.userRepo.GetByID(ctx, targetID); err != nil {
		return models.NewNotFoundError("user", targetID)
	}

	err = s.roleRepo.Assign(ctx, &models.RoleAssignment{
		UserID:    targetID,
		RoleName:  roleName,
		GrantedBy: actorID,
	})
	if err != nil {
		return models.NewStorageError(err)
	}

	cache.InvalidateRoles(ctx, targetID)
	return nil
}

// Revoke removes a role from a user. Revoking a role the user does not hold
// is a no-op.
func (s *RoleService) Revoke(ctx context.Context, actorID, targetID uint, roleName string) error {
	allowed, err := s.HasPermission(ctx, actorID, permissions.AssignRoles)
	if err != nil {
		return err
	}
	if !allowed {
		return models.NewPermissionDeniedError("revoking roles requires the assign_roles permission")
	}

	if roleName == permissions.AdminRoleName {
		return models.NewValidationError("the admin role is derived from the site-admin flag and cannot be revoked")
	}

	if err := s.roleRepo.Revoke(ctx, targetID, roleName); err != nil {
		return models.NewStorageError(err)
	}

	cache.InvalidateRoles(ctx, targetID)
	return nil
}
