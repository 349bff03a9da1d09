package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/audit"
	"github.com/NeverMind-orz/identity-kit/internal/cache"
	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/db/query"
	"github.com/NeverMind-orz/identity-kit/internal/jobs"
	"github.com/NeverMind-orz/identity-kit/internal/mail"
	"github.com/NeverMind-orz/identity-kit/internal/outbox"
	"github.com/NeverMind-orz/identity-kit/internal/tenant"
	"github.com/NeverMind-orz/identity-kit/internal/tokens"
)

// Names of the two seeded system roles.
const (
	RoleAdmin = "Admin"
	RoleBasic = "Basic"
)

const (
	// MailQueue is the dispatcher queue outgoing mail jobs run on.
	MailQueue = "email"

	// minTenantAdmins is the smallest admin head count a tenant must keep
	// once it has more than one admin.
	minTenantAdmins = 2

	// imageCategory is the blob category profile images are stored under.
	imageCategory = "avatars"

	defaultPasswordHistoryLimit = 5
	defaultCacheTTL             = 15 * time.Minute
	defaultAppTitle             = "Identity Kit"
)

// Config holds the identity policy settings.
type Config struct {
	// RootTenantID is the tenant whose admins administer the whole system.
	RootTenantID string
	// RootAdminEmail is the address of the root administrator account.
	// The account is exempt from admin role removal.
	RootAdminEmail string
	// PublicOrigin is the absolute origin prefixed to relative profile
	// image keys when building view URLs.
	PublicOrigin string
	// PasswordHistoryLimit is how many retired password hashes are checked
	// against reuse on a password change.
	PasswordHistoryLimit int
	// SeedAdminPassword is the initial password for the seeded root admin.
	SeedAdminPassword string
	// AppTitle is the product name used in outgoing mail.
	AppTitle string
	// CacheTTL bounds how long user views stay cached.
	CacheTTL time.Duration
}

// MailSender delivers one outgoing message.
type MailSender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// JobEnqueuer hands work to the background dispatcher.
type JobEnqueuer interface {
	Enqueue(queue string, job jobs.Job) error
}

// BlobStore persists uploaded profile images.
type BlobStore interface {
	Upload(ctx context.Context, category, name string, r io.Reader) (string, error)
	Remove(ctx context.Context, key string) error
}

// Auditor records security decisions and activity for the audit trail.
type Auditor interface {
	Security(ctx context.Context, event audit.SecurityEvent)
	Activity(ctx context.Context, event audit.ActivityEvent)
}

// SessionService reacts to credential and claim changes on a user.
type SessionService interface {
	// Reissue refreshes the claims carried by the user's open sessions.
	Reissue(ctx context.Context, userID string) error
	// RevokeAll terminates every open session of the user.
	RevokeAll(ctx context.Context, userID string) error
}

// OutboxAppender stages an integration event inside the given transaction.
type OutboxAppender interface {
	Append(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// Collaborators bundles the services the identity operations call out to.
// A nil field disables the corresponding side effect.
type Collaborators struct {
	Mail     MailSender
	Jobs     JobEnqueuer
	Blobs    BlobStore
	Cache    cache.Store
	Audit    Auditor
	Sessions SessionService
	Outbox   OutboxAppender
	Codes    *tokens.Provider
	Events   []EventHandler
}

// Service implements the user lifecycle: registration, confirmation, profile
// and password changes, role grants, group management and status toggles.
// All reads and writes are scoped to the tenant taken from the context.
type Service struct {
	db       *gorm.DB
	cfg      Config
	validate *validator.Validate
	collab   Collaborators
}

// New creates the identity service. Zero config fields fall back to defaults.
func New(db *gorm.DB, cfg Config, collab Collaborators) *Service {
	if cfg.PasswordHistoryLimit <= 0 {
		cfg.PasswordHistoryLimit = defaultPasswordHistoryLimit
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	if cfg.AppTitle == "" {
		cfg.AppTitle = defaultAppTitle
	}

	if collab.Codes == nil {
		collab.Codes = tokens.New()
	}

	return &Service{
		db:       db,
		cfg:      cfg,
		validate: validator.New(),
		collab:   collab,
	}
}

// tenantID resolves the ambient tenant or fails unauthorized.
func (s *Service) tenantID(ctx context.Context) (string, error) {
	id, err := tenant.FromContext(ctx)
	if err != nil {
		return "", errUnauthorized("tenant context is required")
	}

	return id, nil
}

// checkInput validates an input struct and maps field errors to details.
func (s *Service) checkInput(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		details := make([]string, 0, len(fields))
		for _, field := range fields {
			details = append(details, fmt.Sprintf("%s failed on the %s rule", field.Field(), field.Tag()))
		}

		return errValidationDetails(details, "input validation failed")
	}

	return errInternal(err, "failed to validate input")
}

// loadUser fetches one user of the ambient tenant.
func (s *Service) loadUser(ctx context.Context, db *gorm.DB, id string) (*models.User, error) {
	user, err := query.First[models.User](ctx, db, query.New().Where("id = ?", id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("user %s was not found", id)
		}

		return nil, errInternal(err, "failed to load user %s", id)
	}

	return user, nil
}

// roleByName fetches a role by its unique name. Roles are global.
func (s *Service) roleByName(ctx context.Context, db *gorm.DB, name string) (*models.Role, error) {
	role, err := query.First[models.Role](ctx, db, query.New().Where("name = ?", name))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("role %s was not found", name)
		}

		return nil, errInternal(err, "failed to load role %s", name)
	}

	return role, nil
}

// activeAdminCount counts active admin-role holders in the ambient tenant,
// excluding the given user. Subqueries keep the count portable across engines.
func (s *Service) activeAdminCount(ctx context.Context, db *gorm.DB, excludeUserID string) (int64, error) {
	spec := query.New().
		Where("role_id IN (SELECT id FROM roles WHERE name = ?)", RoleAdmin).
		Where("user_id IN (SELECT id FROM users WHERE is_active = ?)", true)

	if excludeUserID != "" {
		spec = spec.Where("user_id <> ?", excludeUserID)
	}

	count, err := query.Count[models.UserRole](ctx, db, spec)
	if err != nil {
		return 0, errInternal(err, "failed to count active admins")
	}

	return count, nil
}

// holdsRole reports whether the user holds the given role directly.
func (s *Service) holdsRole(ctx context.Context, db *gorm.DB, userID string, roleID uint) (bool, error) {
	ok, err := query.Exists[models.UserRole](ctx, db,
		query.New().Where("user_id = ? AND role_id = ?", userID, roleID))
	if err != nil {
		return false, errInternal(err, "failed to check role grant for user %s", userID)
	}

	return ok, nil
}

// userCacheKey builds the cache key for one user view.
func userCacheKey(tenantID, userID string) string {
	return fmt.Sprintf("user:%s:%s", tenantID, userID)
}

// dropCachedUser removes the cached view after a mutation. Cache trouble is
// logged and otherwise ignored.
func (s *Service) dropCachedUser(ctx context.Context, tenantID, userID string) {
	if s.collab.Cache == nil {
		return
	}

	if err := s.collab.Cache.Delete(ctx, userCacheKey(tenantID, userID)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to drop cached user view")
	}
}

// auditSecurity records a security decision when an auditor is wired.
func (s *Service) auditSecurity(ctx context.Context, event audit.SecurityEvent) {
	if s.collab.Audit == nil {
		return
	}

	s.collab.Audit.Security(ctx, event)
}

// auditActivity records an activity entry when an auditor is wired.
func (s *Service) auditActivity(ctx context.Context, event audit.ActivityEvent) {
	if s.collab.Audit == nil {
		return
	}

	s.collab.Audit.Activity(ctx, event)
}
