package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/audit"
	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/identity"
)

// isActive reads the persisted activation flag of one user.
func isActive(t *testing.T, db *gorm.DB, userID string) bool {
	t.Helper()

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", userID).Error)

	return user.IsActive
}

// seedAdmin creates an active admin user holding the Admin grant.
func seedAdmin(t *testing.T, db *gorm.DB, tenantID, email, username string) models.User {
	t.Helper()

	admin := seedUser(t, db, models.User{
		TenantID: tenantID, Email: email, Username: username, IsActive: true,
	})
	grantRole(t, db, admin, identity.RoleAdmin)

	return admin
}

func adminActor(user models.User) identity.Actor {
	return identity.Actor{ID: user.ID, Username: user.Username, Roles: []string{identity.RoleAdmin}}
}

func TestToggleStatusRequiresActor(t *testing.T) {
	env := setupService(t)

	target := seedUser(t, env.db, models.User{TenantID: "tenant-a", Email: "t@x.com", Username: "tara", IsActive: true})

	err := env.svc.ToggleStatus(tenantCtx("tenant-a"), false, target.ID)
	require.Error(t, err)
	assert.Equal(t, identity.KindUnauthorized, identity.KindOf(err))

	assert.True(t, isActive(t, env.db, target.ID))
	assert.Empty(t, env.audits.securityEvents())
}

func TestToggleStatusRejectsNonAdminActor(t *testing.T) {
	env := setupService(t)

	target := seedUser(t, env.db, models.User{TenantID: "tenant-a", Email: "t@x.com", Username: "tara", IsActive: true})

	actor := identity.Actor{ID: "actor-1", Username: "basic", Roles: []string{identity.RoleBasic}}

	err := env.svc.ToggleStatus(actorCtx("tenant-a", actor), false, target.ID)
	require.Error(t, err)
	assert.Equal(t, identity.KindUnauthorized, identity.KindOf(err))

	assert.True(t, isActive(t, env.db, target.ID))

	events := env.audits.securityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, identity.ReasonActorNotAdmin, events[0].Reason)
	assert.Equal(t, target.ID, events[0].SubjectID)
	assert.Equal(t, audit.SeverityWarning, events[0].Severity)
}

func TestToggleStatusRejectsSelfDeactivation(t *testing.T) {
	env := setupService(t)

	admin := seedAdmin(t, env.db, "tenant-a", "a@x.com", "ada")

	err := env.svc.ToggleStatus(actorCtx("tenant-a", adminActor(admin)), false, admin.ID)
	require.Error(t, err)
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))

	assert.True(t, isActive(t, env.db, admin.ID))

	events := env.audits.securityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, identity.ReasonSelfDeactivationBlocked, events[0].Reason)
}

func TestToggleStatusRejectsAdminTarget(t *testing.T) {
	env := setupService(t)

	actor := seedAdmin(t, env.db, "tenant-a", "a@x.com", "ada")
	target := seedAdmin(t, env.db, "tenant-a", "b@x.com", "bob")

	err := env.svc.ToggleStatus(actorCtx("tenant-a", adminActor(actor)), false, target.ID)
	require.Error(t, err)
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))

	assert.True(t, isActive(t, env.db, target.ID))

	events := env.audits.securityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, identity.ReasonAdminDeactivationBlocked, events[0].Reason)
}

func TestToggleStatusRejectsWhenNoActiveAdminRemains(t *testing.T) {
	env := setupService(t)

	// The actor claims Admin in its principal but holds no grant row, so the
	// tenant has zero active admins on record.
	actor := identity.Actor{ID: "actor-1", Username: "ghost", Roles: []string{identity.RoleAdmin}}
	target := seedUser(t, env.db, models.User{TenantID: "tenant-a", Email: "t@x.com", Username: "tara", IsActive: true})

	err := env.svc.ToggleStatus(actorCtx("tenant-a", actor), false, target.ID)
	require.Error(t, err)
	assert.Equal(t, identity.KindValidation, identity.KindOf(err))

	assert.True(t, isActive(t, env.db, target.ID))

	events := env.audits.securityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, identity.ReasonNoActiveAdmins, events[0].Reason)
}

func TestToggleStatusUnknownTarget(t *testing.T) {
	env := setupService(t)

	admin := seedAdmin(t, env.db, "tenant-a", "a@x.com", "ada")

	err := env.svc.ToggleStatus(actorCtx("tenant-a", adminActor(admin)), false, "no-such-user")
	require.Error(t, err)
	assert.Equal(t, identity.KindNotFound, identity.KindOf(err))
}

func TestToggleStatusTargetInOtherTenantIsInvisible(t *testing.T) {
	env := setupService(t)

	admin := seedAdmin(t, env.db, "tenant-a", "a@x.com", "ada")
	target := seedUser(t, env.db, models.User{TenantID: "tenant-b", Email: "t@x.com", Username: "tara", IsActive: true})

	err := env.svc.ToggleStatus(actorCtx("tenant-a", adminActor(admin)), false, target.ID)
	require.Error(t, err)
	assert.Equal(t, identity.KindNotFound, identity.KindOf(err))

	assert.True(t, isActive(t, env.db, target.ID))
}

func TestToggleStatusDeactivatesAndRecordsActivity(t *testing.T) {
	env := setupService(t)

	admin := seedAdmin(t, env.db, "tenant-a", "a@x.com", "ada")
	target := seedUser(t, env.db, models.User{TenantID: "tenant-a", Email: "t@x.com", Username: "tara", IsActive: true})

	err := env.svc.ToggleStatus(actorCtx("tenant-a", adminActor(admin)), false, target.ID)
	require.NoError(t, err)

	var persisted models.User
	require.NoError(t, env.db.First(&persisted, "id = ?", target.ID).Error)
	assert.False(t, persisted.IsActive)
	assert.Equal(t, admin.ID, persisted.StatusChangedBy)
	assert.NotNil(t, persisted.StatusChangedAt)
	assert.Contains(t, persisted.StatusReason, "deactivated by")

	assert.Empty(t, env.audits.securityEvents())

	activities := env.audits.activityEvents()
	require.Len(t, activities, 1)
	assert.Equal(t, "ToggleUserStatus", activities[0].Kind)
	assert.Equal(t, 204, activities[0].Status)
	assert.Equal(t, admin.ID, activities[0].ActorID)
	assert.Equal(t, target.ID, activities[0].Payload["targetId"])
	assert.Equal(t, false, activities[0].Payload["activate"])
}

func TestToggleStatusActivates(t *testing.T) {
	env := setupService(t)

	admin := seedAdmin(t, env.db, "tenant-a", "a@x.com", "ada")
	target := seedUser(t, env.db, models.User{TenantID: "tenant-a", Email: "t@x.com", Username: "tara", IsActive: false})

	err := env.svc.ToggleStatus(actorCtx("tenant-a", adminActor(admin)), true, target.ID)
	require.NoError(t, err)

	assert.True(t, isActive(t, env.db, target.ID))
}

// TestToggleStatusRejectionSequence drives the rejection paths back to back
// and verifies each leaves its own reason code while no user row changes.
func TestToggleStatusRejectionSequence(t *testing.T) {
	env := setupService(t)

	admin := seedAdmin(t, env.db, "tenant-a", "a@x.com", "ada")
	other := seedAdmin(t, env.db, "tenant-a", "b@x.com", "bob")
	target := seedUser(t, env.db, models.User{TenantID: "tenant-a", Email: "t@x.com", Username: "tara", IsActive: true})

	basicActor := identity.Actor{ID: target.ID, Username: "tara", Roles: []string{identity.RoleBasic}}

	require.Error(t, env.svc.ToggleStatus(actorCtx("tenant-a", basicActor), false, other.ID))
	require.Error(t, env.svc.ToggleStatus(actorCtx("tenant-a", adminActor(admin)), false, admin.ID))
	require.Error(t, env.svc.ToggleStatus(actorCtx("tenant-a", adminActor(admin)), false, other.ID))

	events := env.audits.securityEvents()
	require.Len(t, events, 3)
	assert.Equal(t, identity.ReasonActorNotAdmin, events[0].Reason)
	assert.Equal(t, identity.ReasonSelfDeactivationBlocked, events[1].Reason)
	assert.Equal(t, identity.ReasonAdminDeactivationBlocked, events[2].Reason)

	var inactive int64
	require.NoError(t, env.db.Model(&models.User{}).Where("is_active = ?", false).Count(&inactive).Error)
	assert.Zero(t, inactive)
}
