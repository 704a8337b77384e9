package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/tontine/internal/config"
	"github.com/congo-pay/tontine/internal/logging"
)

type client struct {
	t   *testing.T
	app *fiber.App
}

func newTestClient(t *testing.T) *client {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	cfg := config.Config{
		AppName:           "tontine-test",
		AppEnv:            "test",
		JWTSecret:         "access-secret",
		RefreshSecret:     "refresh-secret",
		AccessTokenTTL:    time.Hour,
		RefreshTokenTTL:   24 * time.Hour,
		IdempotencyTTL:    time.Minute,
		LoginRateLimit:    10,
		ContributionGrace: 7 * 24 * time.Hour,
		GroupWriteRetries: 5,
		AdminEmails:       []string{"root@example.com"},
	}
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logger}))
	return &client{t: t, app: app}
}

func (c *client) do(method, path, token string, body any, headers map[string]string) (int, map[string]any, []byte) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded, raw
}

func (c *client) register(name, email string) string {
	c.t.Helper()
	status, body, _ := c.do(fiber.MethodPost, "/api/v1/users/register", "", fiber.Map{
		"name": name, "email": email, "password": "correct-horse",
	}, nil)
	require.Equal(c.t, fiber.StatusCreated, status)
	return body["id"].(string)
}

func (c *client) login(email string) string {
	c.t.Helper()
	status, body, _ := c.do(fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"email": email, "password": "correct-horse",
	}, nil)
	require.Equal(c.t, fiber.StatusOK, status)
	return body["access_token"].(string)
}

func TestTontineLifecycleOverHTTP(t *testing.T) {
	c := newTestClient(t)

	c.register("Root", "root@example.com")
	aliceID := c.register("Alice", "alice@example.com")
	bobID := c.register("Bob", "bob@example.com")

	status, _, _ := c.do(fiber.MethodPost, "/api/v1/users/register", "", fiber.Map{
		"name": "Dup", "email": "ALICE@example.com", "password": "correct-horse",
	}, nil)
	require.Equal(t, fiber.StatusConflict, status)

	root := c.login("root@example.com")
	alice := c.login("alice@example.com")
	bob := c.login("bob@example.com")

	// Unverified members cannot create groups.
	status, body, _ := c.do(fiber.MethodPost, "/api/v1/groups", alice, fiber.Map{"name": "Family"}, nil)
	require.Equal(t, fiber.StatusForbidden, status, body)

	status, body, _ = c.do(fiber.MethodPost, "/api/v1/kyc/submit", alice, fiber.Map{"national_id": "CG-123"}, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "Pending", body["kyc_status"])

	status, _, raw := c.do(fiber.MethodGet, "/api/v1/kyc/pending", root, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, string(raw), aliceID)
	status, _, _ = c.do(fiber.MethodGet, "/api/v1/kyc/pending", alice, nil, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	for _, id := range []string{aliceID, bobID} {
		status, body, _ = c.do(fiber.MethodPost, "/api/v1/kyc/"+id+"/verify", root, nil, nil)
		require.Equal(t, fiber.StatusOK, status)
		require.Equal(t, "Verified", body["kyc_status"])
	}
	status, _, _ = c.do(fiber.MethodPost, "/api/v1/kyc/"+aliceID+"/reject", root, nil, nil)
	require.Equal(t, fiber.StatusConflict, status)
	status, body, _ = c.do(fiber.MethodGet, "/api/v1/me", alice, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "Verified", body["kyc_status"])

	// Replaying the same Idempotency-Key returns the first response.
	idem := map[string]string{"Idempotency-Key": "create-family"}
	status, created, first := c.do(fiber.MethodPost, "/api/v1/groups", alice, fiber.Map{"name": "Family", "contribution_amount": 500}, idem)
	require.Equal(t, fiber.StatusCreated, status)
	status, _, second := c.do(fiber.MethodPost, "/api/v1/groups", alice, fiber.Map{"name": "Family", "contribution_amount": 500}, idem)
	require.Equal(t, fiber.StatusCreated, status)
	require.JSONEq(t, string(first), string(second))
	groupID := created["id"].(string)
	base := "/api/v1/groups/" + groupID

	status, _, _ = c.do(fiber.MethodGet, base, bob, nil, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, _, _ = c.do(fiber.MethodPost, base+"/join", bob, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _, _ = c.do(fiber.MethodPost, base+"/join", bob, nil, nil)
	require.Equal(t, fiber.StatusConflict, status)

	status, _, _ = c.do(fiber.MethodPost, base+"/contributions", alice, nil, nil)
	require.Equal(t, fiber.StatusCreated, status)
	status, _, _ = c.do(fiber.MethodPost, base+"/contributions", alice, nil, nil)
	require.Equal(t, fiber.StatusConflict, status)

	status, _, _ = c.do(fiber.MethodPost, base+"/receive", alice, nil, nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _, _ = c.do(fiber.MethodPost, base+"/contributions", bob, nil, nil)
	require.Equal(t, fiber.StatusCreated, status)

	status, _, _ = c.do(fiber.MethodPost, base+"/receive", bob, nil, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	status, body, _ = c.do(fiber.MethodPost, base+"/receive", alice, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	received := body["group"].(map[string]any)
	require.EqualValues(t, 1, received["current_turn_index"])
	require.EqualValues(t, 1, received["current_round"])

	status, body, _ = c.do(fiber.MethodGet, base+"/turn", bob, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, bobID, body["user_id"])

	status, _, raw = c.do(fiber.MethodGet, base+"/contributions?round=1", bob, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	var contributions []map[string]any
	require.NoError(t, json.Unmarshal(raw, &contributions))
	require.Len(t, contributions, 2)

	status, body, _ = c.do(fiber.MethodGet, "/api/v1/reliability/me", alice, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 10, body["reliability_score"])

	status, _, raw = c.do(fiber.MethodGet, base+"/logs", bob, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, string(raw), "TURN_RECEIVED")

	status, _, _ = c.do(fiber.MethodGet, "/api/v1/audit/stats", bob, nil, nil)
	require.Equal(t, fiber.StatusForbidden, status)
	status, body, _ = c.do(fiber.MethodGet, "/api/v1/audit/stats", root, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NotZero(t, body["total_logs"])

	status, _, _ = c.do(fiber.MethodPost, base+"/close", bob, nil, nil)
	require.Equal(t, fiber.StatusForbidden, status)
	status, _, _ = c.do(fiber.MethodPost, base+"/close", alice, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _, _ = c.do(fiber.MethodPost, base+"/advance-turn", alice, nil, nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, status)
}

func TestLogoutRevokesTokens(t *testing.T) {
	c := newTestClient(t)
	c.register("Alice", "alice@example.com")
	token := c.login("alice@example.com")

	status, _, _ := c.do(fiber.MethodGet, "/api/v1/me", token, nil, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _, _ = c.do(fiber.MethodPost, "/api/v1/auth/logout", token, nil, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _, _ = c.do(fiber.MethodGet, "/api/v1/me", token, nil, nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestOperationalRoutes(t *testing.T) {
	c := newTestClient(t)

	status, body, _ := c.do(fiber.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "tontine-test", body["app"])

	status, body, _ = c.do(fiber.MethodGet, "/api/v1/ping", "", nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "ok", body["status"])

	status, _, raw := c.do(fiber.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, string(raw), "tontine_http_requests_total")

	status, body, _ = c.do(fiber.MethodGet, "/api/v1/groups", "", nil, nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.NotEmpty(t, body["error"])
}
