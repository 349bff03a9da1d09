package identity

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/db/query"
)

// Upload is a file handed to a profile update.
type Upload struct {
	Filename string
	Content  io.Reader
}

// UpdateRequest carries a profile update.
type UpdateRequest struct {
	UserID      string `validate:"required"`
	FirstName   string `validate:"max=100"`
	LastName    string `validate:"max=100"`
	PhoneNumber string `validate:"omitempty,max=32"`

	// Image replaces the current profile image when present.
	Image *Upload
	// DeleteCurrentImage removes the current image without a replacement.
	DeleteCurrentImage bool
}

// UpdateProfile updates names, phone number and profile image of one user.
// A replacement image is uploaded before the old one is removed. The phone
// number is only touched when it actually changed, since a change rotates
// the security stamp and unconfirms the number.
func (s *Service) UpdateProfile(ctx context.Context, req UpdateRequest) error {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return err
	}

	if err := s.checkInput(req); err != nil {
		return err
	}

	user, err := s.loadUser(ctx, s.db, req.UserID)
	if err != nil {
		return err
	}

	oldImage := ""

	if req.Image != nil || req.DeleteCurrentImage {
		oldImage = user.ImagePath
		user.ImagePath = ""
	}

	if req.Image != nil {
		if s.collab.Blobs == nil {
			return errValidation("image storage is not configured")
		}

		key, err := s.collab.Blobs.Upload(ctx, imageCategory, req.Image.Filename, req.Image.Content)
		if err != nil {
			return errInternal(err, "failed to upload profile image for user %s", req.UserID)
		}

		user.ImagePath = key
	}

	user.FirstName = strings.TrimSpace(req.FirstName)
	user.LastName = strings.TrimSpace(req.LastName)

	if phone := strings.TrimSpace(req.PhoneNumber); phone != user.PhoneNumber {
		user.PhoneNumber = phone
		user.PhoneConfirmed = false
		user.SecurityStamp = models.NewSecurityStamp()
	}

	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return errInternal(err, "failed to persist profile of user %s", req.UserID)
	}

	s.removeOldImage(ctx, user.ID, oldImage)
	s.dropCachedUser(ctx, tenantID, user.ID)
	s.reissuePrincipal(ctx, user.ID)

	return nil
}

// ChangePassword verifies the current password, blocks reuse of recent
// passwords and rotates the security stamp. The retired hash is appended to
// the history in the same transaction that persists the new one. Other open
// sessions of the user are revoked afterwards.
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword, confirm string) error {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return err
	}

	if newPassword == "" {
		return errValidation("password must not be empty")
	}

	if newPassword != confirm {
		return errValidation("password and confirmation do not match")
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return err
	}

	if !user.VerifyPassword(current) {
		return errValidation("current password is incorrect")
	}

	if err := s.checkPasswordReuse(ctx, user, newPassword); err != nil {
		return err
	}

	retired := models.PasswordHistory{
		UserID:       user.ID,
		TenantID:     user.TenantID,
		PasswordHash: user.PasswordHash,
	}

	user.PasswordHash = models.HashPassword(newPassword)
	user.SecurityStamp = models.NewSecurityStamp()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&retired).Error; err != nil {
			return errInternal(err, "failed to append password history for user %s", userID)
		}

		if err := tx.Save(user).Error; err != nil {
			return errInternal(err, "failed to persist new password for user %s", userID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	s.dropCachedUser(ctx, tenantID, user.ID)

	if s.collab.Sessions != nil {
		if err := s.collab.Sessions.RevokeAll(ctx, user.ID); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to revoke sessions after password change")
		}
	}

	return nil
}

// checkPasswordReuse rejects the new password when it matches the current
// one or any of the most recently retired hashes.
func (s *Service) checkPasswordReuse(ctx context.Context, user *models.User, newPassword string) error {
	if models.VerifyPasswordHash(newPassword, user.PasswordHash) {
		return errValidation("password was used recently and cannot be reused")
	}

	history, err := query.Find[models.PasswordHistory](ctx, s.db, query.New().
		Where("user_id = ?", user.ID).
		OrderByDesc("id").
		Page(s.cfg.PasswordHistoryLimit, 0))
	if err != nil {
		return errInternal(err, "failed to load password history for user %s", user.ID)
	}

	for _, entry := range history {
		if models.VerifyPasswordHash(newPassword, entry.PasswordHash) {
			return errValidation("password was used recently and cannot be reused")
		}
	}

	return nil
}

// removeOldImage deletes a replaced blob key. Absolute references point at
// external avatars and are left alone. Removal is best-effort.
func (s *Service) removeOldImage(ctx context.Context, userID, path string) {
	if path == "" || s.collab.Blobs == nil {
		return
	}

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return
	}

	if err := s.collab.Blobs.Remove(ctx, path); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("key", path).Msg("failed to remove replaced profile image")
	}
}

// reissuePrincipal refreshes the user's session claims. Best-effort: profile
// data already committed and stands.
func (s *Service) reissuePrincipal(ctx context.Context, userID string) {
	if s.collab.Sessions == nil {
		return
	}

	if err := s.collab.Sessions.Reissue(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to reissue session principal")
	}
}
