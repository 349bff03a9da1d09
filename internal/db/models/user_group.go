package models

import "time"

// UserGroup represents the many-to-many relationship between users and groups.
// This junction table allows users to belong to multiple groups, and groups to contain multiple users.
// Memberships are created at registration (default groups) or by explicit
// assignment, and record who added the user.
type UserGroup struct {
	// UserID is the ID of the user in this membership.
	UserID string `gorm:"primaryKey;size:36;column:user_id"`
	// GroupID is the ID of the group in this membership.
	GroupID uint `gorm:"primaryKey;column:group_id"`
	// TenantID is the tenant within which the membership applies.
	TenantID string `gorm:"size:36;not null;index"`
	// User is the associated user (loaded via foreign key).
	// When a user row is removed, all their group memberships are removed with it (CASCADE).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Group is the associated group (loaded via foreign key).
	// When a group is removed, all user memberships in that group are removed with it (CASCADE).
	Group Group `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	// AddedAt is the timestamp when the user was added to the group.
	AddedAt time.Time `gorm:"autoCreateTime"`
	// AddedBy is the user id of whoever created the membership
	// ("system" for registration-time default memberships).
	AddedBy string `gorm:"size:36"`
}

// TableName specifies the database table name for the UserGroup model.
// This overrides GORM's default pluralized table naming.
func (UserGroup) TableName() string {
	return "user_groups"
}

// TenantColumn returns the qualified column holding the owning tenant id.
func (UserGroup) TenantColumn() string {
	return "user_groups.tenant_id"
}
