package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			c := e.NewContext(req, httptest.NewRecorder())

			err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			Issuer:    "rotations-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID:  "medicina",
		Roles:     []string{RoleStudent},
		StudentID: "0b7d6c3e-9a53-4d0b-8f5a-3a0f3a0c2e11",
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	var gotCtx context.Context
	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "rotations-test"})(func(c echo.Context) error {
		gotCtx = c.Request().Context()
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if uid := UserIDFromContext(gotCtx); uid != "user-42" {
		t.Errorf("expected user-42, got %q", uid)
	}
	if !HasRole(gotCtx, RoleStudent) {
		t.Errorf("expected student role, got %v", RolesFromContext(gotCtx))
	}
	if sid := StudentIDFromContext(gotCtx); sid != claims.StudentID {
		t.Errorf("expected student id %s, got %q", claims.StudentID, sid)
	}
	if tid, _ := c.Get("jwt_tenant_id").(string); tid != "medicina" {
		t.Errorf("expected jwt_tenant_id medicina, got %q", tid)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	tokenStr := createTestToken(t, claims, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tokenStr := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}}, []byte("another-key-another-key-another-key"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	tokenStr := createTestToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x", Issuer: "someone-else"}}, testSigningKey)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "rotations-test"})(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	c.SetPath("/health")

	err := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})(okHandler)(c)
	if err != nil {
		t.Fatalf("expected skipped path to pass, got %v", err)
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	var gotCtx context.Context
	h := DevAuthMiddleware()(func(c echo.Context) error {
		gotCtx = c.Request().Context()
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !HasRole(gotCtx, RoleAdmin) {
		t.Errorf("expected admin role, got %v", RolesFromContext(gotCtx))
	}
	if UserIDFromContext(gotCtx) != "dev-user" {
		t.Errorf("expected dev-user, got %q", UserIDFromContext(gotCtx))
	}
}

func TestDevAuthMiddleware_Impersonation(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-Roles", "student")
	req.Header.Set("X-Dev-Student-ID", "abc")
	c := e.NewContext(req, httptest.NewRecorder())

	var gotCtx context.Context
	h := DevAuthMiddleware()(func(c echo.Context) error {
		gotCtx = c.Request().Context()
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if HasRole(gotCtx, RoleAdmin) || !HasRole(gotCtx, RoleStudent) {
		t.Errorf("expected only student role, got %v", RolesFromContext(gotCtx))
	}
	if StudentIDFromContext(gotCtx) != "abc" {
		t.Errorf("expected student id abc, got %q", StudentIDFromContext(gotCtx))
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		allow bool
	}{
		{"matching role", []string{RoleCoordinator}, true},
		{"admin passes", []string{RoleAdmin}, true},
		{"other role", []string{RoleStudent}, false},
		{"no roles", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, tt.roles))
			c := e.NewContext(req, httptest.NewRecorder())

			err := RequireRole(RoleCoordinator)(okHandler)(c)
			if tt.allow && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
			if !tt.allow {
				expectStatus(t, err, http.StatusForbidden)
			}
		})
	}
}

func TestAuthSkipper(t *testing.T) {
	for path, want := range map[string]bool{
		"/health":             true,
		"/health/db":          true,
		"/metrics":            true,
		"/api/v1/assignments": false,
		"/ws":                 false,
	} {
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, path, nil), httptest.NewRecorder())
		c.SetPath(path)
		if got := AuthSkipper(c); got != want {
			t.Errorf("AuthSkipper(%s) = %v, want %v", path, got, want)
		}
		if IsPublicPath(path) != want {
			t.Errorf("IsPublicPath(%s) mismatch", path)
		}
	}
}

func TestStudentOnly(t *testing.T) {
	tests := []struct {
		roles []string
		want  bool
	}{
		{[]string{RoleStudent}, true},
		{[]string{RoleStudent, RoleCoordinator}, false},
		{[]string{RoleStudent, RoleAdmin}, false},
		{[]string{RoleCoordinator}, false},
		{nil, false},
	}
	for _, tt := range tests {
		ctx := context.WithValue(context.Background(), UserRolesKey, tt.roles)
		if got := StudentOnly(ctx); got != tt.want {
			t.Errorf("StudentOnly(%v) = %v, want %v", tt.roles, got, tt.want)
		}
	}
}
