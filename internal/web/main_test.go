package web_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/NeverMind-orz/identity-kit/internal/config"
	"github.com/NeverMind-orz/identity-kit/internal/db/models"
	"github.com/NeverMind-orz/identity-kit/internal/session"
	"github.com/NeverMind-orz/identity-kit/internal/tenant"
	"github.com/NeverMind-orz/identity-kit/internal/web"
)

// passwordStub accepts one fixed credential pair.
type passwordStub struct {
	user     *models.User
	password string
}

func (v *passwordStub) Verify(_ context.Context, username, password string) (*models.User, error) {
	if v.user == nil || username != v.user.Username || password != v.password {
		return nil, errors.New("invalid credentials")
	}

	return v.user, nil
}

// setupWeb builds the ops service over an in-memory database with one user
// who can log in, and returns a valid access token for that user.
func setupWeb(t *testing.T) (*web.Service, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.UserRole{},
		&models.Group{},
		&models.UserGroup{},
		&models.GroupRole{},
		&models.UserSession{},
	))

	user := &models.User{
		ID:            uuid.NewString(),
		TenantID:      "tenant-1",
		Email:         "jo@example.com",
		Username:      "jo",
		SecurityStamp: "stamp",
		IsActive:      true,
	}
	require.NoError(t, db.Create(user).Error)

	sessions, err := session.New(
		db,
		session.Config{SigningKey: "web-test-key"},
		&passwordStub{user: user, password: "pw"},
	)
	require.NoError(t, err)

	ctx := tenant.WithID(context.Background(), "tenant-1")

	pair, err := sessions.Login(ctx, session.Credentials{Username: "jo", Password: "pw"})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Webserver.Port = 8080
	cfg.Webserver.ShutDownTime = 1

	return web.New(cfg, db, sessions), pair.AccessToken
}

func TestHealthz(t *testing.T) {
	service, _ := setupWeb(t)

	resp, err := service.App.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "OK", string(body))
}

func TestReadyz(t *testing.T) {
	service, _ := setupWeb(t)

	resp, err := service.App.Test(httptest.NewRequest("GET", "/readyz", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	service, _ := setupWeb(t)

	resp, err := service.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

func TestWhoamiRequiresToken(t *testing.T) {
	service, _ := setupWeb(t)

	resp, err := service.App.Test(httptest.NewRequest("GET", "/whoami", nil))
	require.NoError(t, err)
	require.Equal(t, 401, resp.StatusCode)
}

func TestWhoamiRejectsGarbageToken(t *testing.T) {
	service, _ := setupWeb(t)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")

	resp, err := service.App.Test(req)
	require.NoError(t, err)
	require.Equal(t, 401, resp.StatusCode)
}

func TestWhoamiReturnsPrincipal(t *testing.T) {
	service, token := setupWeb(t)

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := service.App.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "jo@example.com")
	require.Contains(t, string(body), "tenant-1")
}
