package identity

import (
	"strings"
	"time"

	"github.com/NeverMind-orz/identity-kit/internal/db/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UserView is the read shape returned for one user account.
// It is also the shape cached between reads.
type UserView struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	FullName       string    `json:"fullName"`
	PhoneNumber    string    `json:"phoneNumber"`
	IsActive       bool      `json:"isActive"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	PhoneConfirmed bool      `json:"phoneConfirmed"`
	ImageURL       string    `json:"imageUrl"`
	AuthSource     string    `json:"authSource"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RoleView is one role together with whether the user holds it.
type RoleView struct {
	RoleID      uint   `json:"roleId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// GroupDetail is the read shape returned for one group.
type GroupDetail struct {
	ID            uint     `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	IsDefault     bool     `json:"isDefault"`
	IsSystemGroup bool     `json:"isSystemGroup"`
	MemberCount   int64    `json:"memberCount"`
	Roles         []string `json:"roles"`
}

// Filter narrows and pages a user listing.
type Filter struct {
	// Search matches against email, username, first and last name,
	// case-insensitive.
	Search string
	// ActiveOnly keeps only active (true) or only inactive (false)
	// accounts when set.
	ActiveOnly *bool
	// Page is the 1-based page number.
	Page int
	// PageSize bounds the page length.
	PageSize int
}

// normalized clamps paging to sane bounds.
func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}

	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}

	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}

	return f
}

// newUserView maps a user row onto its view, resolving the image URL
// against the given public origin.
func newUserView(user *models.User, origin string) UserView {
	return UserView{
		ID:             user.ID,
		Email:          user.Email,
		Username:       user.Username,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		FullName:       user.FullName(),
		PhoneNumber:    user.PhoneNumber,
		IsActive:       user.IsActive,
		EmailConfirmed: user.EmailConfirmed,
		PhoneConfirmed: user.PhoneConfirmed,
		ImageURL:       resolveImageURL(user.ImagePath, origin),
		AuthSource:     string(user.AuthSource),
		CreatedAt:      user.CreatedAt,
	}
}

// resolveImageURL turns a stored image reference into a URL. Absolute
// references (external avatars) pass through; blob keys are prefixed with
// the public origin when one is configured.
func resolveImageURL(path, origin string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	if origin == "" {
		return path
	}

	return strings.TrimRight(origin, "/") + "/" + strings.TrimLeft(path, "/")
}
