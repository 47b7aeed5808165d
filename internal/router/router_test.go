package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GistAPI/internal/access"
	"GistAPI/internal/auth"
	"GistAPI/internal/config"
	"GistAPI/internal/handler"
	"GistAPI/internal/logger"
	"GistAPI/internal/model"
	"GistAPI/internal/query"
	"GistAPI/internal/resolver"
)

type recordingRunner struct {
	principal access.Principal
	requestID string
	calls     int
}

func (f *recordingRunner) Run(ctx context.Context, req resolver.Request) (any, error) {
	f.calls++
	f.principal = req.Principal
	f.requestID = logger.RequestID(ctx)
	return []any{}, nil
}

func (f *recordingRunner) Describe(ctx context.Context, req resolver.Request) *resolver.DescribeResult {
	return &resolver.DescribeResult{Status: resolver.StatusOK}
}

func testConfig() *config.Config {
	return &config.Config{
		APIPrefix: "/api",
		CORS:      config.CORSConfig{AllowOrigin: "*"},
		Auth: config.AuthConfig{JWT: config.JWTConfig{
			ValidationType: "HS256",
			Issuer:         "auth-service",
			Audience:       "gist-api",
			HMACSecret:     "super-secret",
		}},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (http.Handler, *recordingRunner) {
	t.Helper()
	require.NoError(t, model.InitRegistry(model.SchemasFS("")))

	runner := &recordingRunner{}
	d := Deps{
		Config: cfg,
		Gist:   handler.NewGistHandler(runner, query.Defaults{PageSize: 50, MaxPageSize: 1000}),
	}
	if cfg.Auth.Enabled {
		v, err := auth.NewJWTValidator(cfg.Auth.JWT)
		require.NoError(t, err)
		d.Validator = v
	}
	return New(d), runner
}

func bearer(t *testing.T, cfg config.JWTConfig, claims jwt.MapClaims) string {
	t.Helper()
	claims["iss"] = cfg.Issuer
	claims["aud"] = cfg.Audience
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.HMACSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func serve(h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuthDisabledRunsAsSystem(t *testing.T) {
	h, runner := newTestServer(t, testConfig())

	w := serve(h, "/api/users/gist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, runner.principal.Superuser)
	assert.Equal(t, "system", runner.principal.Username)
}

func TestAuthEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	h, runner := newTestServer(t, cfg)

	t.Run("guest without token", func(t *testing.T) {
		w := serve(h, "/api/dataSets/gist", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, runner.principal.Anonymous)
	})

	t.Run("valid token", func(t *testing.T) {
		header := http.Header{"Authorization": {bearer(t, cfg.Auth.JWT, jwt.MapClaims{
			"sub":      "xE7jOejl9FI",
			"username": "admin",
			"groups":   []string{"wl5cDMuUhmF"},
		})}}
		w := serve(h, "/api/users/gist", header)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "xE7jOejl9FI", runner.principal.UID)
		assert.Equal(t, "admin", runner.principal.Username)
		assert.True(t, runner.principal.InGroup("wl5cDMuUhmF"))
		assert.False(t, runner.principal.Superuser)
	})

	for name, value := range map[string]string{
		"invalid token": "Bearer not-a-token",
		"basic scheme":  "Basic YWRtaW46ZGlzdHJpY3Q=",
	} {
		t.Run(name, func(t *testing.T) {
			calls := runner.calls
			w := serve(h, "/api/users/gist", http.Header{"Authorization": {value}})
			require.Equal(t, http.StatusUnauthorized, w.Code)

			var msg handler.WebMessage
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
			assert.Equal(t, "ERROR", msg.Status)
			assert.Equal(t, http.StatusUnauthorized, msg.HTTPStatusCode)
			assert.Equal(t, calls, runner.calls)
		})
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	h, _ := newTestServer(t, cfg)

	w := serve(h, "/health", http.Header{"Authorization": {"Bearer broken"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	h, runner := newTestServer(t, testConfig())

	w := serve(h, "/api/users/gist", nil)
	id := w.Header().Get(requestIDHeader)
	require.Len(t, id, 36)
	assert.Equal(t, id, runner.requestID)

	w = serve(h, "/api/users/gist", http.Header{requestIDHeader: {"client-42"}})
	assert.Equal(t, "client-42", w.Header().Get(requestIDHeader))
	assert.Equal(t, "client-42", runner.requestID)
}

func TestEmptyPrefix(t *testing.T) {
	cfg := testConfig()
	cfg.APIPrefix = ""
	h, runner := newTestServer(t, cfg)

	w := serve(h, "/users/gist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, runner.calls)

	w = serve(h, "/api/users/gist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}
	h, runner := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, serve(h, "/api/users/gist", nil).Code)
	}
	w := serve(h, "/api/users/gist", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, 2, runner.calls)
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	now := time.Unix(1730000000, 0)
	l := newRateLimiter(1, 1)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	l.get("10.0.0.1")
	now = now.Add(limiterIdle + sweepEvery)
	l.get("10.0.0.2")

	assert.NotContains(t, l.clients, "10.0.0.1")
	assert.Contains(t, l.clients, "10.0.0.2")
}
