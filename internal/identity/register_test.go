package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/identity"
)

func TestRegisterAssignsBasicRoleAndNoGroups(t *testing.T) {
	env := setupService(t)
	ctx := tenantCtx("tenant-a")

	userID, err := env.svc.Register(ctx, registerRequest())
	require.NoError(t, err)
	require.NotEmpty(t, userID)

	var user models.User
	require.NoError(t, env.db.First(&user, "id = ?", userID).Error)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "tenant-a", user.TenantID)
	assert.True(t, user.IsActive)
	assert.False(t, user.EmailConfirmed)
	assert.Equal(t, models.AuthSourceLocal, user.AuthSource)
	assert.True(t, user.VerifyPassword("pw1"))

	var grants []models.UserRole
	require.NoError(t, env.db.Where("user_id = ?", userID).Find(&grants).Error)
	require.Len(t, grants, 1, "exactly the Basic role must be granted")

	var role models.Role
	require.NoError(t, env.db.First(&role, grants[0].RoleID).Error)
	assert.Equal(t, identity.RoleBasic, role.Name)

	var memberships int64
	require.NoError(t, env.db.Model(&models.UserGroup{}).Where("user_id = ?", userID).Count(&memberships).Error)
	assert.Zero(t, memberships, "no default groups configured, none joined")

	messages := outboxMessages(t, env.db)
	require.Len(t, messages, 1)
	assert.Equal(t, "UserRegistered", messages[0].EventType)
	assert.Equal(t, "Identity", messages[0].Source)
	assert.Equal(t, "tenant-a", messages[0].TenantID)
	assert.NotEmpty(t, messages[0].CorrelationID)
	assert.Contains(t, messages[0].Payload, "a@x.com")
}

func TestRegisterJoinsDefaultGroups(t *testing.T) {
	env := setupService(t)
	ctx := tenantCtx("tenant-a")

	require.NoError(t, env.db.Create(&models.Group{TenantID: "tenant-a", Name: "everyone", IsDefault: true}).Error)
	require.NoError(t, env.db.Create(&models.Group{TenantID: "tenant-a", Name: "staff"}).Error)

	retired := models.Group{TenantID: "tenant-a", Name: "legacy", IsDefault: true}
	require.NoError(t, env.db.Create(&retired).Error)
	require.NoError(t, env.db.Delete(&retired).Error)

	// A default group of another tenant must not leak in.
	require.NoError(t, env.db.Create(&models.Group{TenantID: "tenant-b", Name: "everyone", IsDefault: true}).Error)

	userID, err := env.svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	var memberships []models.UserGroup
	require.NoError(t, env.db.Where("user_id = ?", userID).Find(&memberships).Error)
	require.Len(t, memberships, 1)
	assert.Equal(t, "system", memberships[0].AddedBy)

	var group models.Group
	require.NoError(t, env.db.First(&group, memberships[0].GroupID).Error)
	assert.Equal(t, "everyone", group.Name)
	assert.Equal(t, "tenant-a", group.TenantID)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	env := setupService(t)

	req := registerRequest()
	req.ConfirmPassword = "pw2"

	_, err := env.svc.Register(tenantCtx("tenant-a"), req)
	require.Error(t, err)
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))

	var count int64
	require.NoError(t, env.db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count, "nothing may be persisted on a rejected registration")
}

func TestRegisterInvalidEmail(t *testing.T) {
	env := setupService(t)

	req := registerRequest()
	req.Email = "not-an-email"

	_, err := env.svc.Register(tenantCtx("tenant-a"), req)
	require.Error(t, err)
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))
	assert.Contains(t, err.Error(), "Email")
}

func TestRegisterWithoutTenant(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.Register(context.Background(), registerRequest())
	require.Error(t, err)
	assert.Equal(t, identity.KindUnauthorized, identity.KindOf(err))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := setupService(t)
	ctx := tenantCtx("tenant-a")

	_, err := env.svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	req := registerRequest()
	req.Username = "ada2"

	_, err = env.svc.Register(ctx, req)
	require.Error(t, err)
	assert.Equal(t, identity.KindConflict, identity.KindOf(err))
	assert.Contains(t, err.Error(), "a@x.com")

	// The same email in another tenant is fine.
	_, err = env.svc.Register(tenantCtx("tenant-b"), registerRequest())
	assert.NoError(t, err)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := setupService(t)
	ctx := tenantCtx("tenant-a")

	_, err := env.svc.Register(ctx, registerRequest())
	require.NoError(t, err)

	req := registerRequest()
	req.Email = "b@x.com"

	_, err = env.svc.Register(ctx, req)
	require.Error(t, err)
	assert.Equal(t, identity.KindConflict, identity.KindOf(err))
	assert.Contains(t, err.Error(), "ada")
}

func TestRegisterSendsConfirmationMail(t *testing.T) {
	env := setupService(t)

	req := registerRequest()
	req.Origin = "https://id.example.com"

	_, err := env.svc.Register(tenantCtx("tenant-a"), req)
	require.NoError(t, err)

	sent := env.mail.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "a@x.com", sent[0].To)
	assert.Contains(t, sent[0].Subject, "confirm")
	assert.Contains(t, sent[0].Text, "https://id.example.com/confirm-email?")
}

func TestRegisterMailFailureDoesNotFailRegistration(t *testing.T) {
	env := setupService(t)
	env.mail.fail = true

	userID, err := env.svc.Register(tenantCtx("tenant-a"), registerRequest())
	require.NoError(t, err, "mail delivery is best-effort")

	var user models.User
	assert.NoError(t, env.db.First(&user, "id = ?", userID).Error)
}

func TestRegisterEmitsDomainEvent(t *testing.T) {
	env := setupService(t)

	userID, err := env.svc.Register(tenantCtx("tenant-a"), registerRequest())
	require.NoError(t, err)

	events := env.events.registeredEvents()
	require.Len(t, events, 1)
	assert.Equal(t, userID, events[0].UserID)
	assert.Equal(t, "tenant-a", events[0].TenantID)
	assert.Equal(t, "a@x.com", events[0].Email)
	assert.Equal(t, identity.SourceIdentity, events[0].Source)
}

func TestGetOrCreateFromPrincipalReturnsExisting(t *testing.T) {
	env := setupService(t)
	ctx := tenantCtx("tenant-a")

	existing := seedUser(t, env.db, models.User{
		TenantID:  "tenant-a",
		Email:     "jane@x.com",
		Username:  "jane",
		FirstName: "Jane",
		IsActive:  true,
	})

	userID, err := env.svc.GetOrCreateFromPrincipal(ctx, identity.ExternalPrincipal{
		Source:    identity.SourceOIDC,
		Email:     "Jane@X.com",
		FirstName: "Janet",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, userID)

	// Existing accounts are returned unchanged, no profile re-sync.
	var user models.User
	require.NoError(t, env.db.First(&user, "id = ?", existing.ID).Error)
	assert.Equal(t, "Jane", user.FirstName)

	assert.Empty(t, outboxMessages(t, env.db))
	assert.Empty(t, env.events.registeredEvents())
}

func TestGetOrCreateFromPrincipalCreatesUser(t *testing.T) {
	env := setupService(t)
	ctx := tenantCtx("tenant-a")

	userID, err := env.svc.GetOrCreateFromPrincipal(ctx, identity.ExternalPrincipal{
		Source:     identity.SourceOIDC,
		ExternalID: "sub-123",
		Email:      "jane@x.com",
		Username:   "jane",
		FirstName:  "Jane",
		LastName:   "Doe",
		Picture:    "https://avatars.example.com/jane.png",
	})
	require.NoError(t, err)

	var user models.User
	require.NoError(t, env.db.First(&user, "id = ?", userID).Error)
	assert.True(t, user.EmailConfirmed, "provider asserted the email")
	assert.True(t, user.IsActive)
	assert.Equal(t, models.AuthSourceOIDC, user.AuthSource)
	assert.Equal(t, "sub-123", user.ExternalID)
	assert.Equal(t, "https://avatars.example.com/jane.png", user.ImagePath)

	var grants int64
	require.NoError(t, env.db.Model(&models.UserRole{}).Where("user_id = ?", userID).Count(&grants).Error)
	assert.EqualValues(t, 1, grants)

	messages := outboxMessages(t, env.db)
	require.Len(t, messages, 1)
	assert.Equal(t, "UserRegistered", messages[0].EventType)
	assert.Equal(t, "OIDC", messages[0].Source)

	events := env.events.registeredEvents()
	require.Len(t, events, 1)
	assert.Equal(t, identity.SourceOIDC, events[0].Source)
}

func TestGetOrCreateFromPrincipalSynthesizesUsername(t *testing.T) {
	env := setupService(t)

	userID, err := env.svc.GetOrCreateFromPrincipal(tenantCtx("tenant-a"), identity.ExternalPrincipal{
		Source: identity.SourceLDAP,
		Email:  "jane@x.com",
	})
	require.NoError(t, err)

	var user models.User
	require.NoError(t, env.db.First(&user, "id = ?", userID).Error)
	assert.Equal(t, "jane", user.Username, "username falls back to the email local part")
	assert.Equal(t, models.AuthSourceLDAP, user.AuthSource)
}

func TestGetOrCreateFromPrincipalDisambiguatesUsername(t *testing.T) {
	env := setupService(t)

	seedUser(t, env.db, models.User{
		TenantID: "tenant-a",
		Email:    "other@x.com",
		Username: "jane",
		IsActive: true,
	})

	userID, err := env.svc.GetOrCreateFromPrincipal(tenantCtx("tenant-a"), identity.ExternalPrincipal{
		Source: identity.SourceOIDC,
		Email:  "jane@x.com",
	})
	require.NoError(t, err)

	var user models.User
	require.NoError(t, env.db.First(&user, "id = ?", userID).Error)
	assert.True(t, len(user.Username) > len("jane_"), "collision must be disambiguated")
	assert.Contains(t, user.Username, "jane_")
}

func TestGetOrCreateFromPrincipalRequiresEmail(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.GetOrCreateFromPrincipal(tenantCtx("tenant-a"), identity.ExternalPrincipal{
		Source:   identity.SourceOIDC,
		Username: "jane",
	})
	require.Error(t, err)
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))
}
