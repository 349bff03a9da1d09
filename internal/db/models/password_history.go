package models

import "time"

// PasswordHistory is an append-only record of a user's previous password hashes.
// Rows are written on every password change and never mutated; the most
// recent entries are checked to block password reuse.
type PasswordHistory struct {
	// ID is the unique identifier for the history entry.
	ID uint `gorm:"primaryKey"`
	// UserID is the ID of the user the password belonged to.
	UserID string `gorm:"size:36;not null;index"`
	// TenantID is the tenant the user belongs to.
	TenantID string `gorm:"size:36;not null;index"`
	// User is the associated user (loaded via foreign key).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// PasswordHash is the retired Argon2id password hash.
	PasswordHash string `gorm:"size:255;not null"`
	// CreatedAt is the timestamp when the hash was retired (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the PasswordHistory model.
// This overrides GORM's default pluralized table naming.
func (PasswordHistory) TableName() string {
	return "password_histories"
}

// TenantColumn returns the qualified column holding the owning tenant id.
func (PasswordHistory) TenantColumn() string {
	return "password_histories.tenant_id"
}
