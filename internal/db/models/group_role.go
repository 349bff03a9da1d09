package models

import "time"

// GroupRole represents the role set attached to a group.
// Every member of the group holds the attached roles for as long as the
// membership lasts. The set is reconciled as a whole on group edits:
// rows are added for newly requested roles and removed for dropped ones.
type GroupRole struct {
	// GroupID is the ID of the group carrying the role.
	GroupID uint `gorm:"primaryKey;column:group_id"`
	// RoleID is the ID of the attached role.
	RoleID uint `gorm:"primaryKey;column:role_id"`
	// TenantID is the tenant within which the attachment applies.
	TenantID string `gorm:"size:36;not null;index"`
	// Group is the associated group (loaded via foreign key).
	// When a group is removed, its role attachments are removed with it (CASCADE).
	Group Group `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	// Role is the associated role (loaded via foreign key).
	Role Role `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the role was attached (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the GroupRole model.
// This overrides GORM's default pluralized table naming.
func (GroupRole) TableName() string {
	return "group_roles"
}

// TenantColumn returns the qualified column holding the owning tenant id.
func (GroupRole) TenantColumn() string {
	return "group_roles.tenant_id"
}
