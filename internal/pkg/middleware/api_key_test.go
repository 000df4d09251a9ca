package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedApp() *fiber.App {
	app := fiber.New()
	app.Get("/guarded", APIKeyAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	t.Setenv("API_KEY", "secret-key")

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{
			name:       "missing key",
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "wrong key",
			header:     "X-API-Key",
			value:      "wrong",
			wantStatus: fiber.StatusUnauthorized,
		},
		{
			name:       "valid key via X-API-Key",
			header:     "X-API-Key",
			value:      "secret-key",
			wantStatus: fiber.StatusNoContent,
		},
		{
			name:       "valid key via bearer token",
			header:     fiber.HeaderAuthorization,
			value:      "Bearer secret-key",
			wantStatus: fiber.StatusNoContent,
		},
	}

	app := newGuardedApp()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/guarded", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
		})
	}
}

func TestAPIKeyAuthMiddlewareUnsetKey(t *testing.T) {
	t.Setenv("API_KEY", "")

	t.Setenv("APP_ENV", "dev")
	resp, err := newGuardedApp().Test(httptest.NewRequest(fiber.MethodGet, "/guarded", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode, "development passes requests through")

	t.Setenv("APP_ENV", "prod")
	resp, err = newGuardedApp().Test(httptest.NewRequest(fiber.MethodGet, "/guarded", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode, "production rejects when no key is configured")
}
