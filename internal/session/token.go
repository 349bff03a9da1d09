package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
)

// ErrInvalidAccessToken is returned by Verify for tokens that fail signature
// or claim validation.
var ErrInvalidAccessToken = errors.New("access token is invalid")

// Claims is the principal carried by an access token.
type Claims struct {
	jwt.RegisteredClaims

	// TenantID the session was opened in.
	TenantID string `json:"tid"`

	Email string `json:"email"`
	Name  string `json:"name,omitempty"`

	// Roles are the user's effective roles at issue time.
	Roles []string `json:"roles,omitempty"`

	// SessionID is the id of the session row backing this token.
	SessionID string `json:"sid"`
}

// issueAccessToken signs a fresh principal for the user and session.
func (s *Service) issueAccessToken(user *models.User, roles []string, sessionID string) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID:  user.TenantID,
		Email:     user.Email,
		Name:      user.FullName(),
		Roles:     roles,
		SessionID: sessionID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.SigningKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return token, expiresAt, nil
}

// Verify parses and validates an access token and returns its claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) {
			return []byte(s.cfg.SigningKey), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}

	return claims, nil
}
