package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/db/query"
	"github.com/NeverMind-orz/identity-kit/internal/mail"
	"github.com/NeverMind-orz/identity-kit/internal/outbox"
	"github.com/NeverMind-orz/identity-kit/internal/tokens"
	"github.com/NeverMind-orz/identity-kit/internal/uniuri"
)

// usernameSuffixLen bounds the random suffix used to disambiguate
// synthesized usernames.
const usernameSuffixLen = 8

// RegisterRequest carries a self-service registration.
type RegisterRequest struct {
	FirstName       string `validate:"max=100"`
	LastName        string `validate:"max=100"`
	Email           string `validate:"required,email,max=255"`
	Username        string `validate:"required,min=3,max=100"`
	Password        string `validate:"required,max=128"`
	ConfirmPassword string `validate:"required"`
	PhoneNumber     string `validate:"omitempty,max=32"`

	// Origin is the scheme and host of the inbound request. It feeds the
	// confirmation link in the welcome mail.
	Origin string `validate:"omitempty,url"`
}

// ExternalPrincipal is the identity asserted by an external auth provider.
type ExternalPrincipal struct {
	// Source tags the provider path (SourceOIDC or SourceLDAP).
	Source string
	// ExternalID is the provider's stable subject, the OIDC sub claim or
	// the LDAP distinguished name.
	ExternalID string
	Email      string
	Username   string
	FirstName  string
	LastName   string
	// Picture is an absolute avatar URL when the provider supplies one.
	Picture string
}

// Register creates a local account in the ambient tenant. The user, the Basic
// role grant, the default group memberships and the UserRegistered outbox
// event are committed in one transaction. The confirmation mail is enqueued
// after commit and is best-effort.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (string, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return "", err
	}

	if err := s.checkInput(req); err != nil {
		return "", err
	}

	if req.Password != req.ConfirmPassword {
		return "", errValidation("password and confirmation do not match")
	}

	user := models.User{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Username:      strings.TrimSpace(req.Username),
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		PhoneNumber:   strings.TrimSpace(req.PhoneNumber),
		PasswordHash:  models.HashPassword(req.Password),
		SecurityStamp: models.NewSecurityStamp(),
		IsActive:      true,
		AuthSource:    models.AuthSourceLocal,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.createUser(ctx, tx, &user, SourceIdentity)
	})
	if err != nil {
		return "", err
	}

	s.emitRegistered(ctx, newRegisteredEvent(&user, SourceIdentity))
	s.sendConfirmationMail(ctx, &user, req.Origin)

	log.Info().Str("user_id", user.ID).Str("tenant_id", tenantID).Msg("user registered")

	return user.ID, nil
}

// GetOrCreateFromPrincipal resolves an externally authenticated user to a
// local account. An existing account with the asserted email is returned
// unchanged; otherwise a fresh account is provisioned with the email already
// confirmed, since the provider asserted it.
func (s *Service) GetOrCreateFromPrincipal(ctx context.Context, principal ExternalPrincipal) (string, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return "", err
	}

	email := strings.ToLower(strings.TrimSpace(principal.Email))
	if email == "" {
		return "", errValidation("principal of source %s carries no email claim", principal.Source)
	}

	existing, err := query.First[models.User](ctx, s.db, query.New().Where("email = ?", email))
	if err == nil {
		return existing.ID, nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errInternal(err, "failed to look up user %s", email)
	}

	username, err := s.synthesizeUsername(ctx, principal, email)
	if err != nil {
		return "", err
	}

	user := models.User{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		Email:          email,
		Username:       username,
		FirstName:      strings.TrimSpace(principal.FirstName),
		LastName:       strings.TrimSpace(principal.LastName),
		SecurityStamp:  models.NewSecurityStamp(),
		IsActive:       true,
		EmailConfirmed: true,
		ImagePath:      principal.Picture,
		AuthSource:     authSourceFor(principal.Source),
		ExternalID:     principal.ExternalID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.createUser(ctx, tx, &user, principal.Source)
	})
	if err != nil {
		return "", err
	}

	s.emitRegistered(ctx, newRegisteredEvent(&user, principal.Source))

	log.Info().
		Str("user_id", user.ID).
		Str("tenant_id", tenantID).
		Str("source", principal.Source).
		Msg("user provisioned from external principal")

	return user.ID, nil
}

// createUser inserts the user together with the Basic role grant, the
// default group memberships and the UserRegistered outbox event, all within
// the given transaction.
func (s *Service) createUser(ctx context.Context, tx *gorm.DB, user *models.User, source string) error {
	taken, err := query.Exists[models.User](ctx, tx, query.New().Where("email = ?", user.Email))
	if err != nil {
		return errInternal(err, "failed to check email uniqueness")
	}

	if taken {
		return errConflict("email %s is already taken", user.Email)
	}

	taken, err = query.Exists[models.User](ctx, tx, query.New().Where("username = ?", user.Username))
	if err != nil {
		return errInternal(err, "failed to check username uniqueness")
	}

	if taken {
		return errConflict("username %s is already taken", user.Username)
	}

	if err := tx.WithContext(ctx).Create(user).Error; err != nil {
		return errInternal(err, "failed to create user %s", user.Email)
	}

	basic, err := s.roleByName(ctx, tx, RoleBasic)
	if err != nil {
		return err
	}

	grant := models.UserRole{UserID: user.ID, RoleID: basic.ID, TenantID: user.TenantID}
	if err := tx.WithContext(ctx).Create(&grant).Error; err != nil {
		return errInternal(err, "failed to grant the %s role to user %s", RoleBasic, user.ID)
	}

	// Soft-deleted groups are excluded by gorm automatically.
	groups, err := query.Find[models.Group](ctx, tx, query.New().Where("is_default = ?", true))
	if err != nil {
		return errInternal(err, "failed to load default groups")
	}

	for _, group := range groups {
		membership := models.UserGroup{
			UserID:   user.ID,
			GroupID:  group.ID,
			TenantID: user.TenantID,
			AddedBy:  "system",
		}

		if err := tx.WithContext(ctx).Create(&membership).Error; err != nil {
			return errInternal(err, "failed to join default group %s", group.Name)
		}
	}

	if s.collab.Outbox == nil {
		return nil
	}

	event := outbox.Event{
		Type:          EventUserRegistered,
		TenantID:      user.TenantID,
		Source:        source,
		CorrelationID: uuid.NewString(),
		Payload:       newRegisteredEvent(user, source),
	}

	if err := s.collab.Outbox.Append(ctx, tx, event); err != nil {
		return errInternal(err, "failed to append the registration event")
	}

	return nil
}

// synthesizeUsername derives a username from the principal's claims, falling
// back to the email local part, and disambiguates collisions with a random
// suffix.
func (s *Service) synthesizeUsername(ctx context.Context, principal ExternalPrincipal, email string) (string, error) {
	base := strings.TrimSpace(principal.Username)
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
	}

	if base == "" {
		base = "user"
	}

	taken, err := query.Exists[models.User](ctx, s.db, query.New().Where("username = ?", base))
	if err != nil {
		return "", errInternal(err, "failed to check username uniqueness")
	}

	if !taken {
		return base, nil
	}

	return base + "_" + uniuri.NewLen(usernameSuffixLen), nil
}

// sendConfirmationMail enqueues the confirmation mail for a fresh account.
// Failures are logged; registration already committed and stands.
func (s *Service) sendConfirmationMail(ctx context.Context, user *models.User, origin string) {
	if s.collab.Mail == nil {
		return
	}

	code := tokens.Encode(s.collab.Codes.EmailCode(user))

	msg, err := mail.NewConfirmationMessage(user.Email, user.FullName(), code,
		confirmationLink(origin, user.ID, code), s.cfg.AppTitle)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to build confirmation mail")
		return
	}

	if s.collab.Jobs == nil {
		if err := s.collab.Mail.Send(ctx, msg); err != nil {
			log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to send confirmation mail")
		}

		return
	}

	err = s.collab.Jobs.Enqueue(MailQueue, func(ctx context.Context) error {
		return s.collab.Mail.Send(ctx, msg)
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to enqueue confirmation mail")
	}
}

// confirmationLink builds the confirmation URL for the given origin, or
// returns empty when no origin is known.
func confirmationLink(origin, userID, code string) string {
	if origin == "" {
		return ""
	}

	values := url.Values{}
	values.Set("userId", userID)
	values.Set("code", code)

	return fmt.Sprintf("%s/confirm-email?%s", strings.TrimRight(origin, "/"), values.Encode())
}

// newRegisteredEvent builds the event payload for a committed registration.
func newRegisteredEvent(user *models.User, source string) RegisteredEvent {
	return RegisteredEvent{
		UserID:   user.ID,
		TenantID: user.TenantID,
		Email:    user.Email,
		Username: user.Username,
		Source:   source,
	}
}

// authSourceFor maps an event source tag onto the stored auth source.
func authSourceFor(source string) models.AuthSource {
	switch source {
	case SourceOIDC:
		return models.AuthSourceOIDC
	case SourceLDAP:
		return models.AuthSourceLDAP
	default:
		return models.AuthSourceLocal
	}
}
