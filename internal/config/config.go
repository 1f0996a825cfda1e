// Package config loads syncwave's configuration from layered sources —
// built-in defaults, an optional YAML file, then environment variables —
// using koanf v2, the same layering the teacher config package uses.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	SongCache SongCacheConfig `koanf:"songcache"`
	Covers    CoversConfig    `koanf:"covers"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
	Spotify   SpotifyConfig   `koanf:"spotify"`
}

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	FrontendURL     string        `koanf:"frontend_url"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig controls the relational persistence store. When URL is
// empty the store runs in a degraded, memory-only mode — every component
// must tolerate that per spec §4.A.
type DatabaseConfig struct {
	URL     string `koanf:"url"`
	Threads int    `koanf:"threads"`
}

// SongCacheConfig controls the on-disk transcoded-audio cache.
type SongCacheConfig struct {
	Path     string        `koanf:"path"`
	MaxAge   time.Duration `koanf:"max_age"`
	SweepEvery time.Duration `koanf:"sweep_every"`
}

// CoversConfig controls the cover-image LRU cache.
type CoversConfig struct {
	Dir         string        `koanf:"dir"`
	LRUCapacity int           `koanf:"lru_capacity"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
}

// SecurityConfig controls admin-endpoint Basic auth.
type SecurityConfig struct {
	DashboardUser string `koanf:"dashboard_user"`
	DashboardPass string `koanf:"dashboard_pass"`
}

// LoggingConfig controls the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SpotifyConfig holds optional credentials for playlist metadata resolution.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
}

// LobbyPolicy holds the tunables for the lobby cleanup sweep and eviction
// rule (spec §4.F): empty-and-idle-over-this-long lobbies are evicted.
type LobbyPolicy struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// DefaultLobbyPolicy matches spec §4.F: 24h idle timeout, 60s sweep.
func DefaultLobbyPolicy() LobbyPolicy {
	return LobbyPolicy{IdleTimeout: 24 * time.Hour, SweepInterval: 60 * time.Second}
}
