package identity

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/db/query"
)

// Get returns the view of one user. Views are cached with the image
// reference unresolved, so one cache entry serves any request origin.
func (s *Service) Get(ctx context.Context, userID, origin string) (UserView, error) {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return UserView{}, err
	}

	if view, ok := s.cachedUser(ctx, tenantID, userID); ok {
		view.ImageURL = resolveImageURL(view.ImageURL, s.effectiveOrigin(origin))

		return view, nil
	}

	user, err := s.loadUser(ctx, s.db, userID)
	if err != nil {
		return UserView{}, err
	}

	view := newUserView(user, "")
	s.cacheUser(ctx, tenantID, view)

	view.ImageURL = resolveImageURL(view.ImageURL, s.effectiveOrigin(origin))

	return view, nil
}

// GetList returns the user views matching the filter, ordered by username
// and then id for a stable paging sequence.
func (s *Service) GetList(ctx context.Context, filter Filter, origin string) ([]UserView, error) {
	if _, err := s.tenantID(ctx); err != nil {
		return nil, err
	}

	filter = filter.normalized()

	spec := query.New().
		OrderBy("username").
		OrderBy("id").
		Page(filter.PageSize, (filter.Page-1)*filter.PageSize).
		ReadOnly()

	if search := strings.TrimSpace(filter.Search); search != "" {
		// lower() keeps the match case-insensitive on every engine.
		pattern := "%" + strings.ToLower(search) + "%"
		spec = spec.Where(
			"(lower(email) LIKE ? OR lower(username) LIKE ? OR lower(first_name) LIKE ? OR lower(last_name) LIKE ?)",
			pattern, pattern, pattern, pattern)
	}

	if filter.ActiveOnly != nil {
		spec = spec.Where("is_active = ?", *filter.ActiveOnly)
	}

	users, err := query.Find[models.User](ctx, s.db, spec)
	if err != nil {
		return nil, errInternal(err, "failed to list users")
	}

	resolved := s.effectiveOrigin(origin)

	views := make([]UserView, 0, len(users))
	for i := range users {
		views = append(views, newUserView(&users[i], resolved))
	}

	return views, nil
}

// GetCount returns the number of users in the ambient tenant.
func (s *Service) GetCount(ctx context.Context) (int64, error) {
	if _, err := s.tenantID(ctx); err != nil {
		return 0, err
	}

	count, err := query.Count[models.User](ctx, s.db, query.New())
	if err != nil {
		return 0, errInternal(err, "failed to count users")
	}

	return count, nil
}

// ExistsWithEmail reports whether a user other than excludeID holds the
// email within the ambient tenant.
func (s *Service) ExistsWithEmail(ctx context.Context, email, excludeID string) (bool, error) {
	if _, err := s.tenantID(ctx); err != nil {
		return false, err
	}

	spec := query.New().Where("email = ?", strings.ToLower(strings.TrimSpace(email)))
	if excludeID != "" {
		spec = spec.Where("id <> ?", excludeID)
	}

	ok, err := query.Exists[models.User](ctx, s.db, spec)
	if err != nil {
		return false, errInternal(err, "failed to probe email uniqueness")
	}

	return ok, nil
}

// ExistsWithUsername reports whether a user other than excludeID holds the
// username within the ambient tenant.
func (s *Service) ExistsWithUsername(ctx context.Context, username, excludeID string) (bool, error) {
	if _, err := s.tenantID(ctx); err != nil {
		return false, err
	}

	spec := query.New().Where("username = ?", strings.TrimSpace(username))
	if excludeID != "" {
		spec = spec.Where("id <> ?", excludeID)
	}

	ok, err := query.Exists[models.User](ctx, s.db, spec)
	if err != nil {
		return false, errInternal(err, "failed to probe username uniqueness")
	}

	return ok, nil
}

// ExistsWithPhone reports whether a user other than excludeID holds the
// phone number within the ambient tenant.
func (s *Service) ExistsWithPhone(ctx context.Context, phone, excludeID string) (bool, error) {
	if _, err := s.tenantID(ctx); err != nil {
		return false, err
	}

	spec := query.New().Where("phone_number = ?", strings.TrimSpace(phone))
	if excludeID != "" {
		spec = spec.Where("id <> ?", excludeID)
	}

	ok, err := query.Exists[models.User](ctx, s.db, spec)
	if err != nil {
		return false, errInternal(err, "failed to probe phone number uniqueness")
	}

	return ok, nil
}

// effectiveOrigin picks the configured public origin over the request origin.
func (s *Service) effectiveOrigin(origin string) string {
	if s.cfg.PublicOrigin != "" {
		return s.cfg.PublicOrigin
	}

	return origin
}

// cachedUser returns the cached view when present and decodable.
func (s *Service) cachedUser(ctx context.Context, tenantID, userID string) (UserView, bool) {
	if s.collab.Cache == nil {
		return UserView{}, false
	}

	raw, ok, err := s.collab.Cache.Get(ctx, userCacheKey(tenantID, userID))
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to read cached user view")

		return UserView{}, false
	}

	if !ok {
		return UserView{}, false
	}

	var view UserView
	if err := json.Unmarshal(raw, &view); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to decode cached user view")

		return UserView{}, false
	}

	return view, true
}

// cacheUser stores the view for the configured TTL. Cache trouble is logged
// and otherwise ignored.
func (s *Service) cacheUser(ctx context.Context, tenantID string, view UserView) {
	if s.collab.Cache == nil {
		return
	}

	raw, err := json.Marshal(view)
	if err != nil {
		log.Warn().Err(err).Str("user_id", view.ID).Msg("failed to encode user view for caching")

		return
	}

	if err := s.collab.Cache.Set(ctx, userCacheKey(tenantID, view.ID), raw, s.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Str("user_id", view.ID).Msg("failed to cache user view")
	}
}
