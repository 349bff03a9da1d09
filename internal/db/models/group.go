package models

import (
	"time"

	"gorm.io/gorm"
)

// Group represents a named collection of users within one tenant.
// Groups carry role sets (through GroupRole) so membership grants roles in bulk.
// Groups flagged IsDefault receive every newly registered user automatically;
// groups flagged IsSystemGroup are not subject to ordinary edit policy.
type Group struct {
	// ID is the unique identifier for the group.
	ID uint `gorm:"primaryKey"`
	// TenantID is the owning tenant. Group names are unique within it.
	TenantID string `gorm:"size:36;not null;uniqueIndex:idx_groups_tenant_name"`
	// Name is the display name of the group, unique per tenant.
	Name string `gorm:"size:100;not null;uniqueIndex:idx_groups_tenant_name"`
	// Description provides a human-readable explanation of the group's purpose.
	Description string `gorm:"size:255"`
	// IsDefault marks groups that every newly registered user is joined to.
	IsDefault bool
	// IsSystemGroup marks groups exempt from ordinary edit and delete policy.
	IsSystemGroup bool
	// CreatedAt is the timestamp when the group was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the group was last updated (managed by GORM).
	UpdatedAt time.Time
	// DeletedAt is the soft delete timestamp (managed by GORM).
	// Deleted groups stop receiving registrations but their rows remain.
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the database table name for the Group model.
// This overrides GORM's default pluralized table naming.
func (Group) TableName() string {
	return "groups"
}

// TenantColumn returns the qualified column holding the owning tenant id.
func (Group) TenantColumn() string {
	return "groups.tenant_id"
}
