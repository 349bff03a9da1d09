package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/audit"
	"github.com/NeverMind-orz/identity-kit/internal/blob"
	"github.com/NeverMind-orz/identity-kit/internal/cache"
	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/identity"
	"github.com/NeverMind-orz/identity-kit/internal/jobs"
	"github.com/NeverMind-orz/identity-kit/internal/mail"
	"github.com/NeverMind-orz/identity-kit/internal/outbox"
	"github.com/NeverMind-orz/identity-kit/internal/tenant"
)

// setupTestDB creates an in-memory SQLite database with the full schema and
// the two seeded system roles.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.UserRole{},
		&models.Group{},
		&models.UserGroup{},
		&models.GroupRole{},
		&models.PasswordHistory{},
		&models.OutboxMessage{},
	)
	require.NoError(t, err, "failed to migrate test database")

	require.NoError(t, db.Create(&models.Role{Name: identity.RoleAdmin, IsSystem: true}).Error)
	require.NoError(t, db.Create(&models.Role{Name: identity.RoleBasic, IsSystem: true}).Error)

	return db
}

// testEnv bundles the service under test with its observable collaborators.
type testEnv struct {
	db       *gorm.DB
	svc      *identity.Service
	mail     *mailCapture
	audits   *auditCapture
	sessions *sessionCapture
	events   *eventCapture
	blobDir  string
}

// setupService wires the identity service against an in-memory database, a
// real blob store and cache, a synchronous job runner and capturing fakes
// for mail, audit, sessions and domain events.
func setupService(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)

	blobDir := t.TempDir()

	blobs, err := blob.NewStore(blob.Config{Path: blobDir})
	require.NoError(t, err, "failed to create blob store")

	env := &testEnv{
		db:       db,
		mail:     &mailCapture{},
		audits:   &auditCapture{},
		sessions: &sessionCapture{},
		events:   &eventCapture{},
		blobDir:  blobDir,
	}

	cfg := identity.Config{
		RootTenantID:   "root",
		RootAdminEmail: "root@example.com",
		AppTitle:       "Identity Kit",
	}

	env.svc = identity.New(db, cfg, identity.Collaborators{
		Mail:     env.mail,
		Jobs:     syncJobs{},
		Blobs:    blobs,
		Cache:    cache.NewMemory(),
		Audit:    audit.NewClient(nil, env.audits),
		Sessions: env.sessions,
		Outbox:   outbox.NewStore(db),
		Events:   []identity.EventHandler{env.events},
	})

	return env
}

// tenantCtx returns a context carrying the given tenant.
func tenantCtx(id string) context.Context {
	return tenant.WithID(context.Background(), id)
}

// actorCtx returns a tenant context carrying an authenticated actor.
func actorCtx(tenantID string, actor identity.Actor) context.Context {
	return identity.WithActor(tenantCtx(tenantID), actor)
}

// seedUser inserts a user row directly, filling in id and stamp if missing.
func seedUser(t *testing.T, db *gorm.DB, user models.User) models.User {
	t.Helper()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	if user.SecurityStamp == "" {
		user.SecurityStamp = models.NewSecurityStamp()
	}

	require.NoError(t, db.Create(&user).Error, "failed to seed user")

	return user
}

// grantRole attaches a role by name directly.
func grantRole(t *testing.T, db *gorm.DB, user models.User, roleName string) {
	t.Helper()

	var role models.Role
	require.NoError(t, db.Where("name = ?", roleName).First(&role).Error)

	grant := models.UserRole{UserID: user.ID, RoleID: role.ID, TenantID: user.TenantID}
	require.NoError(t, db.Create(&grant).Error, "failed to grant role")
}

// outboxMessages returns every outbox row in creation order.
func outboxMessages(t *testing.T, db *gorm.DB) []models.OutboxMessage {
	t.Helper()

	var messages []models.OutboxMessage
	require.NoError(t, db.Order("id").Find(&messages).Error)

	return messages
}

// registerRequest returns a valid baseline registration.
func registerRequest() identity.RegisterRequest {
	return identity.RegisterRequest{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "a@x.com",
		Username:        "ada",
		Password:        "pw1",
		ConfirmPassword: "pw1",
	}
}

// syncJobs runs enqueued jobs inline so tests observe their effects directly.
type syncJobs struct{}

func (syncJobs) Enqueue(_ string, job jobs.Job) error {
	return job(context.Background())
}

// mailCapture records sent messages instead of delivering them.
type mailCapture struct {
	mu   sync.Mutex
	sent []mail.Message
	fail bool
}

func (m *mailCapture) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errors.New("mail transport down")
	}

	m.sent = append(m.sent, msg)

	return nil
}

func (m *mailCapture) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]mail.Message(nil), m.sent...)
}

// auditCapture records audit events as a sink.
type auditCapture struct {
	mu       sync.Mutex
	security []audit.SecurityEvent
	activity []audit.ActivityEvent
	fail     bool
}

func (a *auditCapture) RecordSecurity(_ context.Context, event audit.SecurityEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fail {
		return errors.New("audit sink down")
	}

	a.security = append(a.security, event)

	return nil
}

func (a *auditCapture) RecordActivity(_ context.Context, event audit.ActivityEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.fail {
		return errors.New("audit sink down")
	}

	a.activity = append(a.activity, event)

	return nil
}

func (a *auditCapture) securityEvents() []audit.SecurityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]audit.SecurityEvent(nil), a.security...)
}

func (a *auditCapture) activityEvents() []audit.ActivityEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]audit.ActivityEvent(nil), a.activity...)
}

// sessionCapture records principal reissues and revocations.
type sessionCapture struct {
	mu       sync.Mutex
	reissued []string
	revoked  []string
	fail     bool
}

func (s *sessionCapture) Reissue(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		return errors.New("session service down")
	}

	s.reissued = append(s.reissued, userID)

	return nil
}

func (s *sessionCapture) RevokeAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		return errors.New("session service down")
	}

	s.revoked = append(s.revoked, userID)

	return nil
}

func (s *sessionCapture) reissues() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.reissued...)
}

func (s *sessionCapture) revocations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.revoked...)
}

// eventCapture records in-process domain events.
type eventCapture struct {
	mu         sync.Mutex
	registered []identity.RegisteredEvent
	roles      []identity.RolesAssignedEvent
}

func (e *eventCapture) HandleRegistered(_ context.Context, event identity.RegisteredEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.registered = append(e.registered, event)
}

func (e *eventCapture) HandleRolesAssigned(_ context.Context, event identity.RolesAssignedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.roles = append(e.roles, event)
}

func (e *eventCapture) registeredEvents() []identity.RegisteredEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]identity.RegisteredEvent(nil), e.registered...)
}

func (e *eventCapture) rolesAssignedEvents() []identity.RolesAssignedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]identity.RolesAssignedEvent(nil), e.roles...)
}
