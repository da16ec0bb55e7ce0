package models

import "time"

// RoleAssignment binds a user to a named role from the permission registry.
// Unique per (user, role). Created and removed only by an actor holding
// assign_roles. The site-admin virtual role is never materialized here; it is
// unioned in at permission-resolution time.
type RoleAssignment struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	RoleName  string    `gorm:"primaryKey;size:48" json:"role_name"`
	GrantedBy uint      `gorm:"not null" json:"granted_by"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (RoleAssignment) TableName() string {
	return "role_assignments"
}
