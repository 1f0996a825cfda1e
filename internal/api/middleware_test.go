package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/syncwave/syncwave/internal/auth"
)

func newTestDashboardAuth(t *testing.T) *auth.BasicAuthManager {
	t.Helper()
	mgr, err := auth.NewBasicAuthManager("admin", "supersecretpw")
	if err != nil {
		t.Fatalf("NewBasicAuthManager: %v", err)
	}
	return mgr
}

func TestBasicAuthMiddlewareRejectsMissingCredentials(t *testing.T) {
	mgr := newTestDashboardAuth(t)
	called := false
	handler := basicAuthMiddleware(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("expected the guarded handler not to run")
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected a WWW-Authenticate challenge header")
	}
}

func TestBasicAuthMiddlewareAllowsCorrectCredentials(t *testing.T) {
	mgr := newTestDashboardAuth(t)
	called := false
	handler := basicAuthMiddleware(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil)
	req.SetBasicAuth("admin", "supersecretpw")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !called {
		t.Fatal("expected the guarded handler to run")
	}
}
