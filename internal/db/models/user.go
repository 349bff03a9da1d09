package models

import (
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"

	"github.com/NeverMind-orz/identity-kit/internal/uniuri"
)

// AuthSource represents the authentication source for a user account.
// It indicates how the user authenticates (local database, LDAP, or OIDC).
type AuthSource string

const (
	// AuthSourceLocal indicates the user authenticates with a local database password.
	AuthSourceLocal AuthSource = "local"
	// AuthSourceOIDC indicates the user authenticates via OpenID Connect (OIDC).
	AuthSourceOIDC AuthSource = "oidc"
	// AuthSourceLDAP indicates the user authenticates via LDAP or Active Directory.
	AuthSourceLDAP AuthSource = "ldap"
)

// User represents a user account within one tenant.
// Users can authenticate via local database, LDAP, or OIDC.
// Accounts are never hard-deleted: deactivation flips IsActive and records
// who changed the status and why, keeping the row as an audit trail.
type User struct {
	// ID is the unique identifier for the user (UUID).
	ID string `gorm:"primaryKey;size:36"`
	// TenantID is the owning tenant. Email and username uniqueness is scoped to it.
	TenantID string `gorm:"size:36;not null;uniqueIndex:idx_users_tenant_email;uniqueIndex:idx_users_tenant_username"`
	// Email is the user's email address, unique per tenant.
	Email string `gorm:"size:255;not null;uniqueIndex:idx_users_tenant_email"`
	// Username is the login name, unique per tenant.
	Username string `gorm:"size:100;not null;uniqueIndex:idx_users_tenant_username"`
	// FirstName is the user's first or given name.
	FirstName string `gorm:"size:100"`
	// LastName is the user's last or family name.
	LastName string `gorm:"size:100"`
	// PhoneNumber is the user's phone number in the form it was submitted.
	PhoneNumber string `gorm:"size:32"`
	// PasswordHash is the Argon2id hashed password (only used for local authentication).
	PasswordHash string `gorm:"size:255"`
	// SecurityStamp is a per-user random value mixed into confirmation codes.
	// Rotating it invalidates every outstanding code for the user.
	SecurityStamp string `gorm:"size:64;not null"`
	// IsActive indicates whether the account may authenticate.
	IsActive bool
	// EmailConfirmed indicates the user has proven control of the email address.
	EmailConfirmed bool
	// PhoneConfirmed indicates the user has proven control of the phone number.
	PhoneConfirmed bool
	// ImagePath is the profile image reference: either an absolute URL or a
	// relative blob-storage key.
	ImagePath string `gorm:"size:255"`
	// AuthSource indicates how this user authenticates (local, oidc, or ldap).
	AuthSource AuthSource `gorm:"type:varchar(20);not null;default:'local'"`
	// ExternalID is the external identifier for OIDC (sub claim) or LDAP (DN) users.
	ExternalID string `gorm:"size:255"`
	// StatusChangedAt is when IsActive last changed (nil if never toggled).
	StatusChangedAt *time.Time
	// StatusChangedBy is the user id of the admin who last toggled the status.
	StatusChangedBy string `gorm:"size:36"`
	// StatusReason is the recorded reason for the last status change.
	StatusReason string `gorm:"size:255"`
	// CreatedAt is the timestamp when the user was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the user was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the User model.
func (User) TableName() string {
	return "users"
}

// TenantColumn returns the qualified column holding the owning tenant id.
func (User) TenantColumn() string {
	return "users.tenant_id"
}

// FullName returns the user's display name built from first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Activate marks the account active, recording who did it and why.
func (u *User) Activate(by, reason string, at time.Time) {
	u.IsActive = true
	u.StatusChangedAt = &at
	u.StatusChangedBy = by
	u.StatusReason = reason
}

// Deactivate marks the account inactive, recording who did it and why.
// The row is kept; deactivation is the only removal path for user accounts.
func (u *User) Deactivate(by, reason string, at time.Time) {
	u.IsActive = false
	u.StatusChangedAt = &at
	u.StatusChangedBy = by
	u.StatusReason = reason
}

// NewSecurityStamp generates a fresh random security stamp.
func NewSecurityStamp() string {
	return uniuri.NewLen(32)
}

// HashPassword hashes a plaintext password using the Argon2id algorithm.
// This function should be used when creating or updating local user passwords.
// It uses the default Argon2id parameters for secure password hashing.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the user's stored hashed password.
// It uses constant-time comparison to prevent timing attacks.
// Returns true if the password matches, false otherwise.
func (u *User) VerifyPassword(password string) bool {
	match, err := argon2id.ComparePasswordAndHash(password, u.PasswordHash)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}

// VerifyPasswordHash checks a plaintext password against an arbitrary stored
// hash. It is used for password-history reuse checks.
func VerifyPasswordHash(password, hash string) bool {
	match, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		log.Error().Msgf("failed to verify password hash: %v", err)
		return false
	}

	return match
}
