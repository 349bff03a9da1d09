// Package session tracks authenticated sessions as first-class rows.
//
// A session is created at login and identified by an opaque refresh token
// whose SHA-256 hash is stored alongside the device metadata reported by the
// client. Refreshing rotates the session: the presented token's row is
// revoked and a fresh row with a fresh token takes its place. Revocation is
// terminal and rows are never deleted, so the table doubles as the login
// audit trail. The short-lived access token is a signed JWT carrying the
// user's principal (tenant, email, roles, session id).
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/db/query"
	"github.com/NeverMind-orz/identity-kit/internal/tenant"
	"github.com/NeverMind-orz/identity-kit/internal/uniuri"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultIssuer          = "identity-kit"

	// refreshTokenLen is the length of the opaque refresh token.
	refreshTokenLen = 48
)

// Revocation reasons written to the session row.
const (
	ReasonLogout             = "logout"
	ReasonRotated            = "rotated"
	ReasonSuperseded         = "superseded"
	ReasonCredentialsChanged = "credentials_changed"
)

var (
	// ErrNoSigningKey is returned by New when the config carries no key.
	ErrNoSigningKey = errors.New("session signing key is not configured")

	// ErrInvalidRefreshToken is returned when no session matches the
	// presented refresh token.
	ErrInvalidRefreshToken = errors.New("refresh token is invalid")

	// ErrSessionRevoked is returned when the matched session was revoked.
	ErrSessionRevoked = errors.New("session has been revoked")

	// ErrSessionExpired is returned when the matched session has expired.
	ErrSessionExpired = errors.New("session has expired")

	// ErrUserDisabled is returned when the session's user may no longer
	// authenticate.
	ErrUserDisabled = errors.New("user account is disabled")
)

// Config holds the session and access token settings.
type Config struct {
	// SigningKey is the HMAC key access tokens are signed with.
	SigningKey string `toml:"signingKey"`

	// Issuer is the iss claim stamped into access tokens.
	Issuer string `toml:"issuer"`

	// AccessTokenTTL bounds the access token lifetime.
	AccessTokenTTL time.Duration `toml:"accessTokenTTL"`

	// RefreshTokenTTL bounds how long a session accepts its refresh token.
	RefreshTokenTTL time.Duration `toml:"refreshTokenTTL"`
}

// CredentialVerifier checks a username and password against the credential
// store and returns the account when it may authenticate.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (*models.User, error)
}

// Credentials carries one login attempt with its device metadata.
type Credentials struct {
	Username string
	Password string
	Device   string
	Browser  string
	IP       string
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	// AccessToken is the signed JWT principal.
	AccessToken string
	// RefreshToken is the opaque token that rotates the session.
	// It is only ever returned here; the store keeps its hash.
	RefreshToken string
	// SessionID identifies the session row backing the pair.
	SessionID string
	// ExpiresAt is when the access token runs out.
	ExpiresAt time.Time
}

// Service implements the session lifecycle.
type Service struct {
	db       *gorm.DB
	cfg      Config
	verifier CredentialVerifier
	now      func() time.Time

	// OnReissue receives the fresh access token issued for a live session
	// after a principal change. Without a hook the fresh claims reach the
	// client at its next refresh instead.
	OnReissue func(ctx context.Context, sessionID, accessToken string)
}

// New creates the session service. Zero config fields fall back to defaults.
func New(db *gorm.DB, cfg Config, verifier CredentialVerifier) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, ErrNoSigningKey
	}

	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}

	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = defaultRefreshTokenTTL
	}

	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}

	return &Service{db: db, cfg: cfg, verifier: verifier, now: time.Now}, nil
}

// Login verifies the credentials and opens a session in the ambient tenant.
// A prior live session on the same device is revoked as superseded, keeping
// one active session per (user, device).
func (s *Service) Login(ctx context.Context, creds Credentials) (TokenPair, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return TokenPair{}, fmt.Errorf("login requires a tenant: %w", err)
	}

	user, err := s.verifier.Verify(ctx, creds.Username, creds.Password)
	if err != nil {
		return TokenPair{}, err
	}

	now := s.now().UTC()

	row := models.UserSession{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		TenantID:       tenantID,
		Device:         creds.Device,
		Browser:        creds.Browser,
		IPAddress:      creds.IP,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.cfg.RefreshTokenTTL),
	}

	refreshToken := uniuri.NewLen(refreshTokenLen)
	row.RefreshTokenHash = hashToken(refreshToken)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if creds.Device != "" {
			err := s.revokeLive(ctx, tx, now, ReasonSuperseded, user.ID,
				"user_id = ? AND device = ?", user.ID, creds.Device)
			if err != nil {
				return err
			}
		}

		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		return nil
	})
	if err != nil {
		return TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, user, row.ID, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	log.Info().
		Str("user_id", user.ID).
		Str("session_id", row.ID).
		Str("device", creds.Device).
		Msg("session opened")

	return pair, nil
}

// Refresh rotates the session behind the presented refresh token: the old
// row is revoked and a fresh row with a fresh token pair takes its place.
// Claims are rebuilt from the store, so role changes take effect here.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	// The token itself identifies the session; the tenant is taken from
	// the row rather than the not-yet-authenticated request.
	row, err := query.First[models.UserSession](ctx, s.db, query.New().
		Where("refresh_token_hash = ?", hashToken(refreshToken)).
		WithoutTenantFilter())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}

		return TokenPair{}, fmt.Errorf("failed to look up session: %w", err)
	}

	now := s.now().UTC()

	if row.Revoked() {
		return TokenPair{}, ErrSessionRevoked
	}

	if row.Expired(now) {
		return TokenPair{}, ErrSessionExpired
	}

	user, err := query.First[models.User](ctx, s.db, query.New().
		Where("id = ?", row.UserID).
		WithoutTenantFilter())
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to load session user: %w", err)
	}

	if !user.IsActive {
		return TokenPair{}, ErrUserDisabled
	}

	next := models.UserSession{
		ID:             uuid.NewString(),
		UserID:         row.UserID,
		TenantID:       row.TenantID,
		Device:         row.Device,
		Browser:        row.Browser,
		IPAddress:      row.IPAddress,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.cfg.RefreshTokenTTL),
	}

	nextToken := uniuri.NewLen(refreshTokenLen)
	next.RefreshTokenHash = hashToken(nextToken)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.revokeLive(ctx, tx, now, ReasonRotated, user.ID, "id = ?", row.ID)
		if err != nil {
			return err
		}

		if err := tx.Create(&next).Error; err != nil {
			return fmt.Errorf("failed to create rotated session: %w", err)
		}

		return nil
	})
	if err != nil {
		return TokenPair{}, err
	}

	return s.issuePair(tenant.WithID(ctx, row.TenantID), user, next.ID, nextToken)
}

// Revoke terminates one session. Revoking an already revoked session is a
// no-op; the first revocation and its reason stand.
func (s *Service) Revoke(ctx context.Context, sessionID, reason, by string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.revokeLive(ctx, tx, s.now().UTC(), reason, by, "id = ?", sessionID)
	})
}

// RevokeAllForUser terminates every live session of the user, optionally
// sparing one (the session the change was made from).
func (s *Service) RevokeAllForUser(ctx context.Context, userID, reason, by, exceptSessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if exceptSessionID != "" {
			return s.revokeLive(ctx, tx, s.now().UTC(), reason, by,
				"user_id = ? AND id <> ?", userID, exceptSessionID)
		}

		return s.revokeLive(ctx, tx, s.now().UTC(), reason, by, "user_id = ?", userID)
	})
}

// RevokeAll terminates every live session of the user after a credential
// change.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.RevokeAllForUser(ctx, userID, ReasonCredentialsChanged, userID, "")
}

// Reissue builds a fresh principal for every live session of the user and
// hands it to the OnReissue hook. Access tokens are short-lived, so without
// a hook the fresh claims still reach the client at its next refresh.
func (s *Service) Reissue(ctx context.Context, userID string) error {
	user, err := query.First[models.User](ctx, s.db, query.New().Where("id = ?", userID))
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", userID, err)
	}

	sessions, err := query.Find[models.UserSession](ctx, s.db, query.New().
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, s.now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to load live sessions of user %s: %w", userID, err)
	}

	roles, err := s.roleNames(ctx, user.ID)
	if err != nil {
		return err
	}

	for _, row := range sessions {
		token, _, err := s.issueAccessToken(user, roles, row.ID)
		if err != nil {
			return err
		}

		if s.OnReissue != nil {
			s.OnReissue(ctx, row.ID, token)
		}
	}

	return nil
}

// revokeLive marks the matching live sessions revoked. Already revoked or
// expired rows are left untouched.
func (s *Service) revokeLive(ctx context.Context, tx *gorm.DB, at time.Time, reason, by string, cond string, args ...any) error {
	err := tx.WithContext(ctx).
		Model(&models.UserSession{}).
		Where(cond, args...).
		Where("revoked_at IS NULL").
		Updates(map[string]any{
			"revoked_at":     at,
			"revoked_reason": reason,
			"revoked_by":     by,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	return nil
}

// issuePair signs the access token for the session and bundles it with the
// plaintext refresh token.
func (s *Service) issuePair(ctx context.Context, user *models.User, sessionID, refreshToken string) (TokenPair, error) {
	roles, err := s.roleNames(ctx, user.ID)
	if err != nil {
		return TokenPair{}, err
	}

	access, expiresAt, err := s.issueAccessToken(user, roles, sessionID)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		ExpiresAt:    expiresAt,
	}, nil
}

// roleNames collects the user's effective roles: direct grants plus the
// roles of every group the user belongs to.
func (s *Service) roleNames(ctx context.Context, userID string) ([]string, error) {
	roles, err := query.Find[models.Role](ctx, s.db, query.New().
		Where(`id IN (SELECT role_id FROM user_roles WHERE user_id = ?)
			OR id IN (SELECT role_id FROM group_roles WHERE group_id IN
				(SELECT group_id FROM user_groups WHERE user_id = ?))`, userID, userID).
		OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to load roles of user %s: %w", userID, err)
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}

	return names, nil
}

// hashToken is the stored form of a refresh token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}
