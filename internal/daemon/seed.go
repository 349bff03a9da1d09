package daemon

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/config"
	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/identity"
)

// seed creates the system roles, the default group of the root tenant and
// the root administrator account. Every step is idempotent, so seed runs on
// each start.
func seed(cfg *config.Config, db *gorm.DB) {
	adminRole := seedRole(db, identity.RoleAdmin, "Full administrative access")
	basicRole := seedRole(db, identity.RoleBasic, "Standard user access")

	rootTenant := cfg.Identity.RootTenantID
	if rootTenant == "" {
		rootTenant = "root"
	}

	seedDefaultGroup(db, rootTenant)

	if cfg.Identity.RootAdminEmail == "" || cfg.Identity.SeedAdminPassword == "" {
		log.Info().Msg("no root admin configured, skipping admin seed")
		return
	}

	seedRootAdmin(cfg, db, rootTenant, adminRole, basicRole)
}

// seedRole makes sure the named system role exists and returns it.
func seedRole(db *gorm.DB, name, description string) *models.Role {
	role := models.Role{
		Name:        name,
		Description: description,
		IsSystem:    true,
	}

	if err := db.Where(models.Role{Name: name}).FirstOrCreate(&role).Error; err != nil {
		log.Fatal().Err(err).Str("role", name).Msg("failed to seed system role")
	}

	return &role
}

// seedDefaultGroup makes sure the root tenant has a default group new
// registrations join automatically.
func seedDefaultGroup(db *gorm.DB, tenantID string) {
	group := models.Group{
		TenantID:      tenantID,
		Name:          "Everyone",
		Description:   "All users of this tenant",
		IsDefault:     true,
		IsSystemGroup: true,
	}

	err := db.Where(models.Group{TenantID: tenantID, Name: group.Name}).
		FirstOrCreate(&group).Error
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed default group")
	}
}

// seedRootAdmin creates the root administrator account with the Admin and
// Basic roles. Existing accounts are left untouched, so a rotated password
// in the config does not overwrite a live one.
func seedRootAdmin(
	cfg *config.Config,
	db *gorm.DB,
	tenantID string,
	adminRole, basicRole *models.Role,
) {
	var count int64

	err := db.Model(&models.User{}).
		Where("tenant_id = ? AND email = ?", tenantID, cfg.Identity.RootAdminEmail).
		Count(&count).Error
	if err != nil {
		log.Fatal().Err(err).Msg("failed to look up root admin")
	}

	if count > 0 {
		return
	}

	admin := models.User{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		Email:          cfg.Identity.RootAdminEmail,
		Username:       cfg.Identity.RootAdminEmail,
		PasswordHash:   models.HashPassword(cfg.Identity.SeedAdminPassword),
		SecurityStamp:  models.NewSecurityStamp(),
		IsActive:       true,
		EmailConfirmed: true,
		AuthSource:     models.AuthSourceLocal,
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&admin).Error; errCreate != nil {
			return errCreate
		}

		grants := []models.UserRole{
			{UserID: admin.ID, RoleID: adminRole.ID, TenantID: tenantID},
			{UserID: admin.ID, RoleID: basicRole.ID, TenantID: tenantID},
		}

		return tx.Create(&grants).Error
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed root admin")
	}

	log.Info().Str("email", admin.Email).Msg("seeded root administrator")
}
