package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/syncwave/syncwave/internal/chat"
	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/covercache"
	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/fetcher"
	"github.com/syncwave/syncwave/internal/gateway"
	"github.com/syncwave/syncwave/internal/lobby"
	"github.com/syncwave/syncwave/internal/songcache"
	"github.com/syncwave/syncwave/internal/wsgateway"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	store := database.Open(config.DatabaseConfig{})
	lobbies := lobby.New(store, config.DefaultLobbyPolicy())
	chatMod := chat.New(store)
	fetch := fetcher.New("", "")
	songs := songcache.New(store, fetch, t.TempDir(), time.Hour)
	covers, err := covercache.New(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("covercache.New: %v", err)
	}

	gw := gateway.New(lobbies, chatMod, fetch, songs, covers)
	hub := wsgateway.NewHub(gw)
	gw.SetHub(hub)
	done := make(chan struct{})
	go hub.Run(done)
	t.Cleanup(func() { close(done) })

	h := newTestHandler(t)
	return NewRouter(h, hub, gw, "https://app.example.com")
}

func TestRouterCORSAllowsOnlyTheConfiguredFrontendOrigin(t *testing.T) {
	r := newTestRouter(t)

	allowed := httptest.NewRequest(http.MethodOptions, "/api/lobbies", nil)
	allowed.Header.Set("Origin", "https://app.example.com")
	allowed.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, allowed)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("expected the configured frontend origin to be echoed back, got %q", got)
	}

	blocked := httptest.NewRequest(http.MethodOptions, "/api/lobbies", nil)
	blocked.Header.Set("Origin", "https://evil.example.com")
	blocked.Header.Set("Access-Control-Request-Method", "GET")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, blocked)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected an unconfigured origin to be rejected, got %q", got)
	}
}

func TestRouterServesHealthWithoutAuth(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterGuardsDashboardRoutesWithBasicAuth(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouterExposesPrometheusMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterCreateLobbyViaHTTP(t *testing.T) {
	r := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/lobbies", strings.NewReader(`{"name":"movie night","listeningMode":"synchronized"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}
