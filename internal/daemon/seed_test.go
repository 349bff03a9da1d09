package daemon

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/config"
	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/identity"
)

func setupSeedDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.UserRole{},
		&models.Group{},
	))

	return db
}

func seedConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Identity.RootTenantID = "root"
	cfg.Identity.RootAdminEmail = "root@example.com"
	cfg.Identity.SeedAdminPassword = "changeme"

	return cfg
}

func TestSeedCreatesSystemRolesAndRootAdmin(t *testing.T) {
	db := setupSeedDB(t)

	seed(seedConfig(), db)

	var roles []models.Role
	require.NoError(t, db.Order("name").Find(&roles).Error)
	require.Len(t, roles, 2)
	require.Equal(t, identity.RoleAdmin, roles[0].Name)
	require.Equal(t, identity.RoleBasic, roles[1].Name)
	require.True(t, roles[0].IsSystem)

	var admin models.User
	require.NoError(t, db.Where("email = ?", "root@example.com").First(&admin).Error)
	require.Equal(t, "root", admin.TenantID)
	require.True(t, admin.IsActive)
	require.True(t, admin.EmailConfirmed)
	require.True(t, admin.VerifyPassword("changeme"))

	var grants int64
	require.NoError(t, db.Model(&models.UserRole{}).
		Where("user_id = ?", admin.ID).Count(&grants).Error)
	require.EqualValues(t, 2, grants)

	var group models.Group
	require.NoError(t, db.Where("tenant_id = ?", "root").First(&group).Error)
	require.True(t, group.IsDefault)
}

func TestSeedIsIdempotent(t *testing.T) {
	db := setupSeedDB(t)
	cfg := seedConfig()

	seed(cfg, db)
	seed(cfg, db)

	var roleCount, userCount, groupCount int64
	require.NoError(t, db.Model(&models.Role{}).Count(&roleCount).Error)
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	require.NoError(t, db.Model(&models.Group{}).Count(&groupCount).Error)

	require.EqualValues(t, 2, roleCount)
	require.EqualValues(t, 1, userCount)
	require.EqualValues(t, 1, groupCount)
}

func TestSeedSkipsAdminWithoutCredentials(t *testing.T) {
	db := setupSeedDB(t)

	cfg := seedConfig()
	cfg.Identity.SeedAdminPassword = ""

	seed(cfg, db)

	var userCount int64
	require.NoError(t, db.Model(&models.User{}).Count(&userCount).Error)
	require.Zero(t, userCount)
}

func TestSeedDoesNotOverwriteExistingAdminPassword(t *testing.T) {
	db := setupSeedDB(t)
	cfg := seedConfig()

	seed(cfg, db)

	cfg.Identity.SeedAdminPassword = "rotated"
	seed(cfg, db)

	var admin models.User
	require.NoError(t, db.Where("email = ?", "root@example.com").First(&admin).Error)
	require.True(t, admin.VerifyPassword("changeme"))
}
