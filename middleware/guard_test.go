package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepocero/gestioneducativa-sub000/security"
)

func guardTestApp(t *testing.T, policies map[security.EndpointClass]security.Policy) (*fiber.App, *Guard, *security.BufferedLogger) {
	t.Helper()
	limiter := security.NewMemoryLimiter()
	t.Cleanup(limiter.Stop)
	logger := security.NewBufferedLogger(security.BufferedLoggerConfig{}, nil)
	t.Cleanup(logger.Stop)

	app := fiber.New()
	return app, NewGuard(limiter, logger, policies), logger
}

func TestGuardMethodNotAllowed(t *testing.T) {
	app, guard, logger := guardTestApp(t, nil)
	app.All("/test", guard.Protect(security.ClassAPI, GuardOptions{Methods: []string{fiber.MethodPost}}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventAccessDenied}), 1)
}

func TestGuardRateLimitHeaders(t *testing.T) {
	policies := map[security.EndpointClass]security.Policy{
		security.ClassAPI: {MaxAttempts: 2, Window: time.Minute, BlockDuration: time.Minute},
	}
	app, guard, logger := guardTestApp(t, policies)
	app.Get("/test", guard.Protect(security.ClassAPI, GuardOptions{}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Len(t, logger.Events(security.Filter{Type: security.EventRateLimitExceeded}), 1)

	// The block is now active.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventRateLimitBlocked}), 1)
}

func TestGuardRejectsUnsafeQueryParam(t *testing.T) {
	app, guard, logger := guardTestApp(t, nil)
	app.Get("/test", guard.Protect(security.ClassAPI, GuardOptions{}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test?q=%3Cscript%3Ealert(1)%3C%2Fscript%3E", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventMaliciousInput}), 1)
}

func TestGuardRewritesQueryParams(t *testing.T) {
	app, guard, _ := guardTestApp(t, nil)
	app.Get("/test", guard.Protect(security.ClassAPI, GuardOptions{}), func(c *fiber.Ctx) error {
		return c.SendString(c.Query("q"))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test?q=%20%20padded%20%20", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "padded", string(body))
}

func TestGuardRequireIdentity(t *testing.T) {
	app, guard, _ := guardTestApp(t, nil)
	app.Get("/test", guard.Protect(security.ClassAPI, GuardOptions{RequireIdentity: true}), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	token, err := GenerateToken(uuid.New(), "user@example.com", "staff", uuid.New())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGuardContainsHandlerErrors(t *testing.T) {
	app, guard, logger := guardTestApp(t, nil)
	app.Get("/boom", guard.Protect(security.ClassAPI, GuardOptions{}), func(c *fiber.Ctx) error {
		return assert.AnError
	})
	app.Get("/missing", guard.Protect(security.ClassAPI, GuardOptions{}), func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventSystemError}), 1)

	// Typed fiber errors keep their status and are not system errors.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventSystemError}), 1)
}

func TestSanitizeBodyMapEmailHint(t *testing.T) {
	res := SanitizeBodyMap(map[string]any{
		"email":        "  User@Example.COM ",
		"notes":        "<script>x</script>clean",
		"student_name": "Ana",
		"credits":      3,
	})

	assert.False(t, res.Valid)
	assert.Equal(t, "user@example.com", res.Sanitized["email"])
	assert.Equal(t, "clean", res.Sanitized["notes"])
	assert.Equal(t, "Ana", res.Sanitized["student_name"])
	assert.Equal(t, 3, res.Sanitized["credits"])
	assert.NotEmpty(t, res.Errors["notes"])
	assert.Empty(t, res.Errors["email"])
}

func TestGuardSanitizeBodyRewrites(t *testing.T) {
	app, guard, _ := guardTestApp(t, nil)
	app.Post("/test", guard.Protect(security.ClassAPI, GuardOptions{SanitizeBody: true}), func(c *fiber.Ctx) error {
		var body struct {
			Status string `json:"status"`
		}
		if err := c.BodyParser(&body); err != nil {
			return err
		}
		return c.SendString(body.Status)
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"status":"  active  "}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "active", string(body))
}

func TestGuardSanitizeBodyRejectsUnsafeField(t *testing.T) {
	app, guard, logger := guardTestApp(t, nil)
	handled := false
	app.Post("/test", guard.Protect(security.ClassAPI, GuardOptions{SanitizeBody: true}), func(c *fiber.Ctx) error {
		handled = true
		return c.SendString("ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"status":"<script>alert(1)</script>"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.False(t, handled)
	assert.Len(t, logger.Events(security.Filter{Type: security.EventMaliciousInput}), 1)
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	app := fiber.New()
	app.Get("/ip", func(c *fiber.Ctx) error {
		return c.SendString(ClientIP(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	resp, err := app.Test(req)
	require.NoError(t, err)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "203.0.113.7", string(body))

	// Garbage in the header falls through to the socket address.
	req = httptest.NewRequest(http.MethodGet, "/ip", nil)
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.NotEqual(t, "not-an-ip", string(body))
}
