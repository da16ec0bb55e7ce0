package repository

import (
	"context"

	"pawhaven/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleRepository defines the interface for role assignment storage.
type RoleRepository interface {
	Assign(ctx context.Context, assignment *models.RoleAssignment) error
	Revoke(ctx context.Context, userID uint, roleName string) error
	ListForUser(ctx context.Context, userID uint) ([]*models.RoleAssignment, error)
	ListUsersWithRole(ctx context.Context, roleName string) ([]*models.RoleAssignment, error)
}

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new role assignment repository
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Assign(ctx context.Context, assignment *models.RoleAssignment) error {
	// Re-assigning an already held role is a no-op.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(assignment).Error
}

func (r *roleRepository) Revoke(ctx context.Context, userID uint, roleName string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND role_name = ?", userID, roleName).
		Delete(&models.RoleAssignment{}).Error
}

func (r *roleRepository) ListForUser(ctx context.Context, userID uint) ([]*models.RoleAssignment, error) {
	var assignments []*models.RoleAssignment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&assignments).Error
	return assignments, err
}

func (r *roleRepository) ListUsersWithRole(ctx context.Context, roleName string) ([]*models.RoleAssignment, error) {
	var assignments []*models.RoleAssignment
	err := r.db.WithContext(ctx).Where("role_name = ?", roleName).Find(&assignments).Error
	return assignments, err
}
