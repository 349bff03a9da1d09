package models

import "time"

// UserSession represents one authenticated session for a user.
// A session is created at login, touched on activity, rotated on refresh,
// and revoked on logout or security events. Revocation is terminal and rows
// are never deleted; the table doubles as the login audit trail.
// The steady state is one active session per (user, device): logging in
// again on the same device revokes the previous session.
type UserSession struct {
	// ID is the unique identifier for the session (UUID).
	ID string `gorm:"primaryKey;size:36"`
	// UserID is the ID of the user owning the session.
	UserID string `gorm:"size:36;not null;index"`
	// TenantID is the tenant the session was opened in.
	TenantID string `gorm:"size:36;not null;index"`
	// User is the associated user (loaded via foreign key).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// RefreshTokenHash is the SHA-256 hash of the opaque refresh token.
	// The plaintext token is never stored.
	RefreshTokenHash string `gorm:"size:64;not null;index"`
	// Device is a free-form device label reported at login.
	Device string `gorm:"size:100"`
	// Browser is the client user-agent product reported at login.
	Browser string `gorm:"size:100"`
	// IPAddress is the remote address observed at login.
	IPAddress string `gorm:"size:45"`
	// CreatedAt is the timestamp when the session was created (managed by GORM).
	CreatedAt time.Time
	// LastActivityAt is the timestamp of the most recent authenticated activity.
	LastActivityAt time.Time
	// ExpiresAt is when the refresh token stops being accepted.
	ExpiresAt time.Time
	// RevokedAt is when the session was revoked (nil while the session lives).
	RevokedAt *time.Time
	// RevokedReason records why the session was revoked
	// (e.g. "logout", "rotated", "superseded", "password_changed").
	RevokedReason string `gorm:"size:100"`
	// RevokedBy is the user id of whoever revoked the session.
	RevokedBy string `gorm:"size:36"`
}

// TableName specifies the database table name for the UserSession model.
// This overrides GORM's default pluralized table naming.
func (UserSession) TableName() string {
	return "user_sessions"
}

// TenantColumn returns the qualified column holding the owning tenant id.
func (UserSession) TenantColumn() string {
	return "user_sessions.tenant_id"
}

// Revoked reports whether the session has been revoked.
func (s *UserSession) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether the session's refresh token has expired at the given time.
func (s *UserSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Live reports whether the session is neither revoked nor expired at the given time.
func (s *UserSession) Live(now time.Time) bool {
	return !s.Revoked() && !s.Expired(now)
}
