package config

import (
	"os"
	"testing"
	"time"
)

// setupTestEnv clears the environment, applies envVars, and returns a
// cleanup function restoring a clean slate for the next test.
func setupTestEnv(t *testing.T, envVars map[string]string) func() {
	t.Helper()
	os.Clearenv()
	for k, v := range envVars {
		if err := os.Setenv(k, v); err != nil {
			t.Fatalf("setenv %s: %v", k, err)
		}
	}
	return func() { os.Clearenv() }
}

func TestLoadAppliesDefaultsWithNoEnvOrFile(t *testing.T) {
	defer setupTestEnv(t, nil)()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.SongCache.Path != "data/songs" {
		t.Errorf("SongCache.Path = %q, want data/songs", cfg.SongCache.Path)
	}
	if cfg.Covers.LRUCapacity != 500 {
		t.Errorf("Covers.LRUCapacity = %d, want 500", cfg.Covers.LRUCapacity)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected default logging config: %+v", cfg.Logging)
	}
}

func TestLoadLegacyEnvOverridesWinOverDefaults(t *testing.T) {
	defer setupTestEnv(t, map[string]string{
		"PORT":           "9090",
		"DATABASE_URL":   "syncwave.duckdb",
		"SONGS_PATH":     "/var/lib/syncwave/songs",
		"COVERS_DIR":     "/var/lib/syncwave/covers",
		"DASHBOARD_USER": "admin",
		"DASHBOARD_PASS": "hunter2",
		"LOG_LEVEL":      "debug",
	})()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.URL != "syncwave.duckdb" {
		t.Errorf("Database.URL = %q, want syncwave.duckdb", cfg.Database.URL)
	}
	if cfg.SongCache.Path != "/var/lib/syncwave/songs" {
		t.Errorf("SongCache.Path = %q", cfg.SongCache.Path)
	}
	if cfg.Covers.Dir != "/var/lib/syncwave/covers" {
		t.Errorf("Covers.Dir = %q", cfg.Covers.Dir)
	}
	if cfg.Security.DashboardUser != "admin" || cfg.Security.DashboardPass != "hunter2" {
		t.Errorf("unexpected security config: %+v", cfg.Security)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	defer setupTestEnv(t, map[string]string{"PORT": "70000"})()

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject an out-of-range port")
	}
}

func TestResolveConfigPathHonorsConfigPathEnvVar(t *testing.T) {
	defer setupTestEnv(t, map[string]string{ConfigPathEnvVar: "/nonexistent/config.yaml"})()

	if got := resolveConfigPath(); got != "/nonexistent/config.yaml" {
		t.Errorf("resolveConfigPath() = %q, want /nonexistent/config.yaml", got)
	}
}

func TestResolveConfigPathFallsBackToEmptyWhenNothingFound(t *testing.T) {
	defer setupTestEnv(t, nil)()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(wd)

	if got := resolveConfigPath(); got != "" {
		t.Errorf("resolveConfigPath() = %q, want empty string", got)
	}
}

func TestValidateRejectsNonPositiveLRUCapacity(t *testing.T) {
	cfg := defaultConfig()
	cfg.Covers.LRUCapacity = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to reject a zero LRU capacity")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(defaultConfig()); err != nil {
		t.Fatalf("expected defaults to validate cleanly, got %v", err)
	}
}

func TestDefaultLobbyPolicyMatchesEvictionRule(t *testing.T) {
	p := DefaultLobbyPolicy()
	if p.IdleTimeout != 24*time.Hour {
		t.Errorf("IdleTimeout = %v, want 24h", p.IdleTimeout)
	}
	if p.SweepInterval != 60*time.Second {
		t.Errorf("SweepInterval = %v, want 60s", p.SweepInterval)
	}
}
