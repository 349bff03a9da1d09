package identity

import (
	"context"
	"fmt"

	"github.com/NeverMind-orz/identity-kit/internal/tokens"
)

// ConfirmEmail marks the user's email address confirmed after verifying the
// presented code. The code arrives URL-safe encoded.
func (s *Service) ConfirmEmail(ctx context.Context, userID, code string) (string, error) {
	if _, err := s.tenantID(ctx); err != nil {
		return "", err
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return "", err
	}

	if user.EmailConfirmed {
		return "", errValidation("email %s is already confirmed", user.Email)
	}

	raw, err := tokens.Decode(code)
	if err != nil {
		return "", errValidation("failed to confirm email %s: %s", user.Email, err)
	}

	if err := s.collab.Codes.VerifyEmailCode(user, raw); err != nil {
		return "", errValidation("failed to confirm email %s: %s", user.Email, err)
	}

	err = s.db.WithContext(ctx).Model(user).Update("email_confirmed", true).Error
	if err != nil {
		return "", errInternal(err, "failed to persist email confirmation for user %s", userID)
	}

	s.dropCachedUser(ctx, user.TenantID, user.ID)

	return fmt.Sprintf("email %s confirmed", user.Email), nil
}

// ConfirmPhone marks the user's phone number confirmed after verifying the
// presented code. The code arrives URL-safe encoded.
func (s *Service) ConfirmPhone(ctx context.Context, userID, code string) (string, error) {
	if _, err := s.tenantID(ctx); err != nil {
		return "", err
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return "", err
	}

	if user.PhoneNumber == "" {
		return "", errValidation("user %s has no phone number on file", userID)
	}

	if user.PhoneConfirmed {
		return "", errValidation("phone number %s is already confirmed", user.PhoneNumber)
	}

	raw, err := tokens.Decode(code)
	if err != nil {
		return "", errValidation("failed to confirm phone number %s: %s", user.PhoneNumber, err)
	}

	if err := s.collab.Codes.VerifyPhoneCode(user, raw); err != nil {
		return "", errValidation("failed to confirm phone number %s: %s", user.PhoneNumber, err)
	}

	err = s.db.WithContext(ctx).Model(user).Update("phone_confirmed", true).Error
	if err != nil {
		return "", errInternal(err, "failed to persist phone confirmation for user %s", userID)
	}

	s.dropCachedUser(ctx, user.TenantID, user.ID)

	return fmt.Sprintf("phone number %s confirmed", user.PhoneNumber), nil
}
