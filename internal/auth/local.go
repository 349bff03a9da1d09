package auth

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/db/query"
)

// LocalVerifier checks credentials against locally stored accounts.
type LocalVerifier struct {
	db *gorm.DB
}

// NewLocalVerifier creates a new local credential verifier.
func NewLocalVerifier(db *gorm.DB) *LocalVerifier {
	return &LocalVerifier{db: db}
}

// Verify authenticates a username and password within the ambient tenant.
// Only active accounts with a confirmed email address may authenticate;
// external accounts (OIDC, LDAP) are not visible to local login.
func (v *LocalVerifier) Verify(ctx context.Context, username, password string) (*models.User, error) {
	user, err := query.First[models.User](ctx, v.db, query.New().
		Where("username = ? AND auth_source = ?", username, models.AuthSourceLocal))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrUserAccountDisabled
	}

	if !user.VerifyPassword(password) {
		return nil, ErrInvalidPassword
	}

	if !user.EmailConfirmed {
		return nil, ErrEmailNotConfirmed
	}

	return user, nil
}
