package models

import "time"

// UserRole represents a direct role grant to a user.
// Admin-count policy checks (minimum admins per tenant, last-active-admin
// protection) run against this junction table.
type UserRole struct {
	// UserID is the ID of the user holding the role.
	UserID string `gorm:"primaryKey;size:36;column:user_id"`
	// RoleID is the ID of the granted role.
	RoleID uint `gorm:"primaryKey;column:role_id"`
	// TenantID is the tenant within which the grant applies.
	TenantID string `gorm:"size:36;not null;index"`
	// User is the associated user (loaded via foreign key).
	// When a user row is removed, its role grants are removed with it (CASCADE).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Role is the associated role (loaded via foreign key).
	Role Role `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the role was granted (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the UserRole model.
// This overrides GORM's default pluralized table naming.
func (UserRole) TableName() string {
	return "user_roles"
}

// TenantColumn returns the qualified column holding the owning tenant id.
func (UserRole) TenantColumn() string {
	return "user_roles.tenant_id"
}
