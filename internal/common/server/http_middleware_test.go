package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/auth"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
)

type fixedLimiter struct{ left int }

func newFixedLimiter(n int) *fixedLimiter { return &fixedLimiter{left: n} }

func (f *fixedLimiter) Allow(ctx context.Context) bool {
	if f.left <= 0 {
		return false
	}
	f.left--
	return true
}

func TestHTTPJWTAuthAndRoles(t *testing.T) {
	authCfg := config.AuthConfig{
		Enabled:       true,
		JWTSecret:     "test-secret",
		Issuer:        "abastech",
		Audience:      "fleet-api",
		PublicMethods: []string{"/healthz"},
	}

	tokenAdmin, _, err := auth.GenerateAccessToken(authCfg, "u-1", []string{"admin"}, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	tokenField, _, err := auth.GenerateAccessToken(authCfg, "u-2", []string{"field"}, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	var gotSubject string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ai, _ := AuthFromContext(r.Context())
		gotSubject = ai.Subject
		w.WriteHeader(http.StatusOK)
	})
	h := HTTPChain(inner, HTTPJWTAuth(authCfg, nil), RequireRoles("admin"))

	// 无 token
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rr.Code)
	}

	// field 角色访问 admin 路由
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+tokenField)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("field role: status = %d, want 403", rr.Code)
	}

	// admin 放行
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+tokenAdmin)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, want 200", rr.Code)
	}
	if gotSubject != "u-1" {
		t.Fatalf("subject = %q, want u-1", gotSubject)
	}
}

func TestHTTPJWTAuthPublicPath(t *testing.T) {
	authCfg := config.AuthConfig{
		Enabled:       true,
		JWTSecret:     "test-secret",
		PublicMethods: []string{"/healthz"},
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := HTTPChain(inner, HTTPJWTAuth(authCfg, nil))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("public path: status = %d, want 200", rr.Code)
	}
}

func TestHTTPRateLimit(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := HTTPChain(inner, HTTPRateLimit(newFixedLimiter(2)))

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/import/workbook", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("call %d: status = %d, want 200", i, rr.Code)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/import/workbook", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
}
