// Package database is the relational persistence store (spec §4.A): lobbies,
// queue songs, playback state, the cached-song registry, chat and
// playlists, backed by DuckDB — an embedded, transactional SQL engine,
// the same driver the teacher uses for its own analytics store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/logging"
)

// Store wraps the DuckDB connection pool. All call sites must check
// IsAvailable() and degrade to memory-only behavior rather than fail when
// it returns false — this is a hard invariant from spec §4.A.
type Store struct {
	db        *sql.DB
	available bool
}

// Open creates the connection pool and runs Init(). If cfg.URL is empty or
// the database can't be opened, Open returns a Store with IsAvailable() ==
// false instead of an error, so callers can run in degraded mode from
// startup.
func Open(cfg config.DatabaseConfig) *Store {
	if cfg.URL == "" {
		logging.Warn().Msg("database: no DATABASE_URL configured, running memory-only")
		return &Store{available: false}
	}

	if dir := filepath.Dir(cfg.URL); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			logging.Error().Err(err).Msg("database: failed to create data directory, running memory-only")
			return &Store{available: false}
		}
	}

	db, err := sql.Open("duckdb", cfg.URL)
	if err != nil {
		logging.Error().Err(err).Msg("database: failed to open, running memory-only")
		return &Store{available: false}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	db.SetMaxOpenConns(threads)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db, available: true}
	if err := s.init(); err != nil {
		logging.Error().Err(err).Msg("database: schema init failed, running memory-only")
		_ = db.Close()
		return &Store{available: false}
	}
	return s
}

// IsAvailable reports whether the store is backed by a live connection.
func (s *Store) IsAvailable() bool {
	return s != nil && s.available
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Query runs a SELECT and returns the raw *sql.Rows. Callers must close
// the result. Returns an error if the store is unavailable — callers that
// tolerate degraded mode should check IsAvailable() first.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if !s.IsAvailable() {
		return nil, sql.ErrConnDone
	}
	return s.db.QueryContext(ctx, query, args...)
}

// Exec runs an INSERT/UPDATE/DELETE statement.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if !s.IsAvailable() {
		return nil, sql.ErrConnDone
	}
	return s.db.ExecContext(ctx, query, args...)
}

// Transaction runs fn inside a transaction, committing on nil error and
// rolling back otherwise. Used by reorderSong and playlist-song reorder to
// keep sort_order dense (spec §4.D, §4.H).
func (s *Store) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if !s.IsAvailable() {
		return sql.ErrConnDone
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Error().Err(rbErr).Msg("database: rollback failed")
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) init() error {
	ctx := context.Background()
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS lobbies (
		id TEXT PRIMARY KEY,
		host_id TEXT,
		name TEXT,
		listening_mode TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_activity TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_lobbies_name_ci ON lobbies (lower(name)) WHERE name IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS playback_state (
		lobby_id TEXT PRIMARY KEY REFERENCES lobbies(id) ON DELETE CASCADE,
		current_track JSON,
		position DOUBLE NOT NULL DEFAULT 0,
		is_playing BOOLEAN NOT NULL DEFAULT false,
		started_at TIMESTAMP,
		shuffle_enabled BOOLEAN NOT NULL DEFAULT false,
		shuffled_indices JSON,
		shuffle_index INTEGER NOT NULL DEFAULT 0,
		repeat_mode TEXT NOT NULL DEFAULT 'off'
	)`,
	`CREATE TABLE IF NOT EXISTS queue_songs (
		id TEXT PRIMARY KEY,
		lobby_id TEXT NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		duration DOUBLE NOT NULL,
		added_by TEXT,
		thumbnail TEXT,
		added_at TIMESTAMP NOT NULL,
		sort_order INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_songs_lobby_sort ON queue_songs (lobby_id, sort_order)`,
	`CREATE TABLE IF NOT EXISTS songs (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		duration DOUBLE,
		file_path TEXT,
		thumbnail_url TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_songs_status ON songs (status)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		lobby_id TEXT NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
		user_id TEXT,
		username TEXT,
		emoji TEXT,
		content TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS playlist_songs (
		id TEXT PRIMARY KEY,
		playlist_id TEXT NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		title TEXT,
		duration DOUBLE,
		thumbnail TEXT,
		sort_order INTEGER NOT NULL,
		added_at TIMESTAMP NOT NULL
	)`,
}
