package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kivu-pay/kivu_pay/internal/auth"
	"github.com/kivu-pay/kivu_pay/internal/config"
	"github.com/kivu-pay/kivu_pay/internal/identity"
	"github.com/kivu-pay/kivu_pay/internal/store"
)

type fakeUsers struct {
	users map[string]identity.User
}

func (r *fakeUsers) Create(_ context.Context, _ store.Tx, user identity.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *fakeUsers) FindByPhone(_ context.Context, phone string) (identity.User, error) {
	for _, u := range r.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

func (r *fakeUsers) FindByID(_ context.Context, id string) (identity.User, error) {
	u, ok := r.users[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (r *fakeUsers) UpdateDevice(_ context.Context, id, deviceID string) error {
	u := r.users[id]
	u.DeviceID = deviceID
	r.users[id] = u
	return nil
}

func (r *fakeUsers) UpdateTokenVersion(_ context.Context, id string, version int) error {
	u := r.users[id]
	u.TokenVersion = version
	r.users[id] = u
	return nil
}

func (r *fakeUsers) SetKYCStatus(_ context.Context, id string, status identity.KYCStatus) error {
	u := r.users[id]
	u.KYCStatus = status
	r.users[id] = u
	return nil
}

func (r *fakeUsers) KYCStatus(_ context.Context, _ store.Tx, id string) (identity.KYCStatus, error) {
	return r.users[id].KYCStatus, nil
}

func setupAuthApp(t *testing.T, role string) (*fiber.App, *auth.Service, *fakeUsers, identity.User) {
	t.Helper()
	user := identity.User{
		ID:           "11111111-2222-3333-4444-555555555555",
		Phone:        "+243819999999",
		Role:         role,
		TokenVersion: 1,
	}
	repo := &fakeUsers{users: map[string]identity.User{user.ID: user}}
	tokens := auth.NewService(config.Config{
		JWTSecret:       "test-secret",
		RefreshSecret:   "test-refresh",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}, repo)

	app := fiber.New()
	app.Get("/me", JWTAuth(tokens, repo), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id")})
	})
	app.Get("/admin", JWTAuth(tokens, repo), RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app, tokens, repo, user
}

func authedRequest(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTAuth_AllowsValidToken(t *testing.T) {
	app, tokens, _, user := setupAuthApp(t, identity.RoleUser)

	pair, err := tokens.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if status := authedRequest(t, app, "/me", pair.AccessToken); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestJWTAuth_RejectsMissingToken(t *testing.T) {
	app, _, _, _ := setupAuthApp(t, identity.RoleUser)

	if status := authedRequest(t, app, "/me", ""); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestJWTAuth_RejectsStaleTokenVersion(t *testing.T) {
	app, tokens, repo, user := setupAuthApp(t, identity.RoleUser)

	pair, err := tokens.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := repo.UpdateTokenVersion(context.Background(), user.ID, user.TokenVersion+1); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	if status := authedRequest(t, app, "/me", pair.AccessToken); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 after logout elsewhere, got %d", status)
	}
}

func TestRequireAdmin_BlocksNonAdmins(t *testing.T) {
	app, tokens, _, user := setupAuthApp(t, identity.RoleUser)

	pair, err := tokens.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if status := authedRequest(t, app, "/admin", pair.AccessToken); status != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestRequireAdmin_AllowsAdmins(t *testing.T) {
	app, tokens, _, user := setupAuthApp(t, identity.RoleAdmin)

	pair, err := tokens.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if status := authedRequest(t, app, "/admin", pair.AccessToken); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}
