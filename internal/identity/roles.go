package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/db/query"
	"github.com/NeverMind-orz/identity-kit/internal/outbox"
)

// RoleChange is one requested role transition.
type RoleChange struct {
	RoleName string
	Enabled  bool
}

// AssignRoles applies a batch of role transitions to one user. Unknown role
// names are skipped, enabling a held role and disabling an unheld one are
// no-ops. The whole batch commits in one transaction together with the
// RolesAssigned outbox event for any newly granted roles.
//
// Demoting an admin is guarded: the root administrator never loses Admin
// within the root tenant, and any other tenant must keep at least two
// admins when one is demoted.
func (s *Service) AssignRoles(ctx context.Context, userID string, changes []RoleChange) (string, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return "", err
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return "", err
	}

	if err := s.checkAdminDemotion(ctx, tenantID, user, changes); err != nil {
		return "", err
	}

	var assigned []string

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assigned, err = s.applyRoleChanges(ctx, tx, tenantID, user, changes)
		if err != nil {
			return err
		}

		if len(assigned) == 0 || s.collab.Outbox == nil {
			return nil
		}

		event := outbox.Event{
			Type:          EventRolesAssigned,
			TenantID:      tenantID,
			Source:        SourceIdentity,
			CorrelationID: uuid.NewString(),
			Payload:       RolesAssignedEvent{UserID: user.ID, TenantID: tenantID, Roles: assigned},
		}

		if err := s.collab.Outbox.Append(ctx, tx, event); err != nil {
			return errInternal(err, "failed to append the roles assigned event")
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	if len(assigned) > 0 {
		s.emitRolesAssigned(ctx, RolesAssignedEvent{UserID: user.ID, TenantID: tenantID, Roles: assigned})
	}

	s.dropCachedUser(ctx, tenantID, user.ID)

	return "roles assigned successfully", nil
}

// GetUserRoles returns every defined role together with whether the user
// holds it.
func (s *Service) GetUserRoles(ctx context.Context, userID string) ([]RoleView, error) {
	if _, err := s.tenantID(ctx); err != nil {
		return nil, err
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	roles, err := query.Find[models.Role](ctx, s.db, query.New().OrderBy("name"))
	if err != nil {
		return nil, errInternal(err, "failed to load roles")
	}

	if len(roles) == 0 {
		return nil, errNotFound("no roles are defined")
	}

	grants, err := query.Find[models.UserRole](ctx, s.db, query.New().Where("user_id = ?", user.ID))
	if err != nil {
		return nil, errInternal(err, "failed to load role grants for user %s", user.ID)
	}

	held := make(map[uint]bool, len(grants))
	for _, grant := range grants {
		held[grant.RoleID] = true
	}

	views := make([]RoleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, RoleView{
			RoleID:      role.ID,
			Name:        role.Name,
			Description: role.Description,
			Enabled:     held[role.ID],
		})
	}

	return views, nil
}

// checkAdminDemotion rejects admin role removals that would violate the
// admin head count policy. The count check runs before the batch; the window
// between count and commit is not serialized here.
func (s *Service) checkAdminDemotion(ctx context.Context, tenantID string, user *models.User, changes []RoleChange) error {
	disablesAdmin := false

	for _, change := range changes {
		if change.RoleName == RoleAdmin && !change.Enabled {
			disablesAdmin = true
			break
		}
	}

	if !disablesAdmin {
		return nil
	}

	admin, err := s.roleByName(ctx, s.db, RoleAdmin)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil
		}

		return err
	}

	held, err := s.holdsRole(ctx, s.db, user.ID, admin.ID)
	if err != nil {
		return err
	}

	if !held {
		return nil
	}

	if strings.EqualFold(user.Email, s.cfg.RootAdminEmail) {
		if tenantID == s.cfg.RootTenantID {
			return errValidation("the root administrator cannot lose the Admin role in the root tenant")
		}

		return nil
	}

	count, err := query.Count[models.UserRole](ctx, s.db, query.New().Where("role_id = ?", admin.ID))
	if err != nil {
		return errInternal(err, "failed to count admins")
	}

	if count <= minTenantAdmins {
		return errValidation("tenant should have at least 2 admins.")
	}

	return nil
}

// applyRoleChanges walks the batch inside the transaction and returns the
// names of newly granted roles.
func (s *Service) applyRoleChanges(ctx context.Context, tx *gorm.DB, tenantID string, user *models.User, changes []RoleChange) ([]string, error) {
	var assigned []string

	for _, change := range changes {
		role, err := s.roleByName(ctx, tx, change.RoleName)
		if err != nil {
			if KindOf(err) == KindNotFound {
				continue
			}

			return nil, err
		}

		held, err := s.holdsRole(ctx, tx, user.ID, role.ID)
		if err != nil {
			return nil, err
		}

		if change.Enabled {
			if held {
				continue
			}

			grant := models.UserRole{UserID: user.ID, RoleID: role.ID, TenantID: tenantID}
			if err := tx.Create(&grant).Error; err != nil {
				return nil, errInternal(err, "failed to grant role %s to user %s", role.Name, user.ID)
			}

			assigned = append(assigned, role.Name)

			continue
		}

		if !held {
			continue
		}

		err = tx.Where("user_id = ? AND role_id = ? AND tenant_id = ?", user.ID, role.ID, tenantID).
			Delete(&models.UserRole{}).Error
		if err != nil {
			return nil, errInternal(err, "failed to revoke role %s from user %s", role.Name, user.ID)
		}
	}

	return assigned, nil
}
