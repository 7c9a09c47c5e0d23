package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rotations/rotations/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "development",
		DBTxRetries:    1,
		DefaultTenant:  "default",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		RequestTimeout: 5 * time.Second,
		NATSSubject:    "rotations.assignments.exceptional",
		AlertEmail:     "coordinacion@internado.local",
		NotifyTimeout:  time.Second,
		BodyLimit:      "64K",
	}
}

func serve(t *testing.T, e *echo.Echo, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthAndMetrics(t *testing.T) {
	srv := newServer(testConfig(), nil, zerolog.Nop())
	defer srv.close()

	rec := serve(t, srv.echo, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = serve(t, srv.echo, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "rotations_http_requests_total")
	assert.Contains(t, body, `route="/health"`)
	assert.Contains(t, body, "go_goroutines")
}

func TestServer_AlertsRequireCoordinator(t *testing.T) {
	srv := newServer(testConfig(), nil, zerolog.Nop())
	defer srv.close()

	rec := serve(t, srv.echo, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data"`)

	rec = serve(t, srv.echo, http.MethodGet, "/api/v1/alerts/stats", map[string]string{"X-Dev-Roles": "coordinator"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, srv.echo, http.MethodGet, "/api/v1/alerts", map[string]string{"X-Dev-Roles": "student"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_RegistersAssignmentRoutes(t *testing.T) {
	srv := newServer(testConfig(), nil, zerolog.Nop())
	defer srv.close()

	want := map[string]bool{
		"GET /api/v1/assignments":                               false,
		"POST /api/v1/assignments":                              false,
		"GET /api/v1/assignments/:id":                           false,
		"PUT /api/v1/assignments/:id":                           false,
		"DELETE /api/v1/assignments/:id":                        false,
		"GET /api/v1/assignments/agenda":                        false,
		"GET /api/v1/assignments/capacity":                      false,
		"GET /api/v1/assignments/institutions-with-assignments": false,
		"GET /api/v1/assignments/student/:student_id":           false,
	}
	for _, r := range srv.echo.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		assert.True(t, found, "route %s not registered", route)
	}
}

func TestServer_JWTModeRejectsAnonymous(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.JWTSigningKey = strings.Repeat("k", 32)

	srv := newServer(cfg, nil, zerolog.Nop())
	defer srv.close()

	rec := serve(t, srv.echo, http.MethodGet, "/api/v1/alerts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, srv.echo, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTenantSkipper(t *testing.T) {
	e := echo.New()
	tests := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/health/db", true},
		{"/metrics", true},
		{"/ws", true},
		{"/api/v1/alerts", true},
		{"/api/v1/alerts/:id/retry", true},
		{"/api/v1/assignments", false},
		{"/api/v1/assignments/:id", false},
	}
	for _, tt := range tests {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.SetPath(tt.path)
		assert.Equal(t, tt.want, tenantSkipper(c), tt.path)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a@x.org", "b@x.org"}, splitList(" a@x.org, ,b@x.org "))
	assert.Nil(t, splitList(""))
}
