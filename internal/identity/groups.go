package identity

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/db/query"
)

// CreateGroupRequest carries a new group.
type CreateGroupRequest struct {
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=255"`
	IsDefault   bool
	RoleIDs     []uint
}

// UpdateGroupRequest carries a group edit. RoleIDs is the complete desired
// role set, not a delta.
type UpdateGroupRequest struct {
	GroupID     uint   `validate:"required"`
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=255"`
	IsDefault   bool
	RoleIDs     []uint
}

// CreateGroup creates a group in the ambient tenant with an optional initial
// role set. Group names are unique per tenant.
func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (GroupDetail, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return GroupDetail{}, err
	}

	if err := s.checkInput(req); err != nil {
		return GroupDetail{}, err
	}

	name := strings.TrimSpace(req.Name)

	taken, err := query.Exists[models.Group](ctx, s.db, query.New().Where("name = ?", name))
	if err != nil {
		return GroupDetail{}, errInternal(err, "failed to check group name uniqueness")
	}

	if taken {
		return GroupDetail{}, errConflict("group %s already exists", name)
	}

	roles, err := s.resolveRoles(ctx, req.RoleIDs)
	if err != nil {
		return GroupDetail{}, err
	}

	group := models.Group{
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		IsDefault:   req.IsDefault,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return errInternal(err, "failed to create group %s", name)
		}

		for _, role := range roles {
			attachment := models.GroupRole{GroupID: group.ID, RoleID: role.ID, TenantID: tenantID}
			if err := tx.Create(&attachment).Error; err != nil {
				return errInternal(err, "failed to attach role %s to group %s", role.Name, name)
			}
		}

		return nil
	})
	if err != nil {
		return GroupDetail{}, err
	}

	return s.groupDetail(ctx, &group, roles)
}

// UpdateGroup applies a group edit. The attached role set is reconciled to
// exactly the requested ids: rows for dropped roles are removed, rows for new
// ones added, held ones left alone. Everything persists in one transaction.
func (s *Service) UpdateGroup(ctx context.Context, req UpdateGroupRequest) (GroupDetail, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return GroupDetail{}, err
	}

	if err := s.checkInput(req); err != nil {
		return GroupDetail{}, err
	}

	group, err := s.loadGroup(ctx, req.GroupID)
	if err != nil {
		return GroupDetail{}, err
	}

	if group.IsSystemGroup {
		return GroupDetail{}, errValidation("system group %s cannot be edited", group.Name)
	}

	name := strings.TrimSpace(req.Name)

	taken, err := query.Exists[models.Group](ctx, s.db,
		query.New().Where("name = ? AND id <> ?", name, group.ID))
	if err != nil {
		return GroupDetail{}, errInternal(err, "failed to check group name uniqueness")
	}

	if taken {
		return GroupDetail{}, errConflict("group %s already exists", name)
	}

	roles, err := s.resolveRoles(ctx, req.RoleIDs)
	if err != nil {
		return GroupDetail{}, err
	}

	current, err := query.Find[models.GroupRole](ctx, s.db,
		query.New().Where("group_id = ?", group.ID))
	if err != nil {
		return GroupDetail{}, errInternal(err, "failed to load role set of group %s", group.Name)
	}

	held := make(map[uint]bool, len(current))
	for _, attachment := range current {
		held[attachment.RoleID] = true
	}

	wanted := make(map[uint]bool, len(req.RoleIDs))
	for _, id := range req.RoleIDs {
		wanted[id] = true
	}

	group.Name = name
	group.Description = strings.TrimSpace(req.Description)
	group.IsDefault = req.IsDefault

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(group).Error; err != nil {
			return errInternal(err, "failed to persist group %s", group.Name)
		}

		for _, attachment := range current {
			if wanted[attachment.RoleID] {
				continue
			}

			err := tx.Where("group_id = ? AND role_id = ?", group.ID, attachment.RoleID).
				Delete(&models.GroupRole{}).Error
			if err != nil {
				return errInternal(err, "failed to detach role %d from group %s", attachment.RoleID, group.Name)
			}
		}

		for _, role := range roles {
			if held[role.ID] {
				continue
			}

			attachment := models.GroupRole{GroupID: group.ID, RoleID: role.ID, TenantID: tenantID}
			if err := tx.Create(&attachment).Error; err != nil {
				return errInternal(err, "failed to attach role %s to group %s", role.Name, group.Name)
			}
		}

		return nil
	})
	if err != nil {
		return GroupDetail{}, err
	}

	return s.groupDetail(ctx, group, roles)
}

// loadGroup fetches one group of the ambient tenant.
func (s *Service) loadGroup(ctx context.Context, id uint) (*models.Group, error) {
	group, err := query.First[models.Group](ctx, s.db, query.New().Where("id = ?", id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("group %d was not found", id)
		}

		return nil, errInternal(err, "failed to load group %d", id)
	}

	return group, nil
}

// resolveRoles loads the requested roles and fails listing every id that
// does not exist.
func (s *Service) resolveRoles(ctx context.Context, ids []uint) ([]models.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	roles, err := query.Find[models.Role](ctx, s.db, query.New().Where("id IN ?", ids).OrderBy("name"))
	if err != nil {
		return nil, errInternal(err, "failed to load roles")
	}

	found := make(map[uint]bool, len(roles))
	for _, role := range roles {
		found[role.ID] = true
	}

	var invalid []string

	for _, id := range ids {
		if !found[id] {
			invalid = append(invalid, strconv.FormatUint(uint64(id), 10))
		}
	}

	if len(invalid) > 0 {
		return nil, errNotFound("roles with ids %s were not found", strings.Join(invalid, ", "))
	}

	return roles, nil
}

// groupDetail builds the read shape with the member count taken from the
// membership join table.
func (s *Service) groupDetail(ctx context.Context, group *models.Group, roles []models.Role) (GroupDetail, error) {
	members, err := query.Count[models.UserGroup](ctx, s.db,
		query.New().Where("group_id = ?", group.ID))
	if err != nil {
		return GroupDetail{}, errInternal(err, "failed to count members of group %s", group.Name)
	}

	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}

	return GroupDetail{
		ID:            group.ID,
		Name:          group.Name,
		Description:   group.Description,
		IsDefault:     group.IsDefault,
		IsSystemGroup: group.IsSystemGroup,
		MemberCount:   members,
		Roles:         names,
	}, nil
}
