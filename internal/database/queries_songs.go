package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/syncwave/syncwave/internal/models"
)

// UpsertCachedSong inserts or updates a cached-song registry row, keyed by
// URL (spec §4.B dedup contract: one row per source URL regardless of how
// many lobbies queue it).
func (s *Store) UpsertCachedSong(ctx context.Context, c *models.CachedSong) error {
	_, err := s.Exec(ctx, `
		INSERT INTO songs (id, url, title, duration, file_path, thumbnail_url, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			title = excluded.title,
			duration = excluded.duration,
			file_path = excluded.file_path,
			thumbnail_url = excluded.thumbnail_url,
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, c.ID, c.URL, nullableString(c.Title), c.Duration, nullableString(c.FilePath), nullableString(c.ThumbnailURL), string(c.Status), nullableString(c.ErrorMessage), c.CreatedAt, c.UpdatedAt)
	return err
}

// SetSongStatus transitions a cached song's status, optionally recording an
// error message (spec §4.B state machine: pending -> downloading -> ready|error).
func (s *Store) SetSongStatus(ctx context.Context, id string, status models.SongStatus, errMsg string, updatedAt time.Time) error {
	_, err := s.Exec(ctx, `UPDATE songs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), nullableString(errMsg), updatedAt, id)
	return err
}

// GetCachedSongByURL looks up a cached song by source URL, the dedup key.
func (s *Store) GetCachedSongByURL(ctx context.Context, url string) (*models.CachedSong, error) {
	rows, err := s.Query(ctx, `
		SELECT id, url, title, duration, file_path, thumbnail_url, status, error_message, created_at, updated_at
		FROM songs WHERE url = ?
	`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	return scanCachedSong(rows)
}

// GetCachedSong looks up a cached song by its registry id.
func (s *Store) GetCachedSong(ctx context.Context, id string) (*models.CachedSong, error) {
	rows, err := s.Query(ctx, `
		SELECT id, url, title, duration, file_path, thumbnail_url, status, error_message, created_at, updated_at
		FROM songs WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	return scanCachedSong(rows)
}

// GetAllCachedSongs loads the full registry, used by the dashboard song
// listing and by the delete-all action.
func (s *Store) GetAllCachedSongs(ctx context.Context) ([]*models.CachedSong, error) {
	rows, err := s.Query(ctx, `
		SELECT id, url, title, duration, file_path, thumbnail_url, status, error_message, created_at, updated_at
		FROM songs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CachedSong
	for rows.Next() {
		c, err := scanCachedSong(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetStaleSongs returns songs of any status last updated before cutoff, the
// candidate set for the cache eviction sweep (spec §4.B cleanupOldSongs).
func (s *Store) GetStaleSongs(ctx context.Context, cutoff time.Time) ([]*models.CachedSong, error) {
	rows, err := s.Query(ctx, `
		SELECT id, url, title, duration, file_path, thumbnail_url, status, error_message, created_at, updated_at
		FROM songs WHERE updated_at < ?
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CachedSong
	for rows.Next() {
		c, err := scanCachedSong(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCachedSong removes a registry row, called after its file is
// unlinked from disk.
func (s *Store) DeleteCachedSong(ctx context.Context, id string) error {
	_, err := s.Exec(ctx, `DELETE FROM songs WHERE id = ?`, id)
	return err
}

// DeleteAllCachedSongs truncates the registry (spec §4.B deleteAllSongs,
// the dashboard "clear cache" action).
func (s *Store) DeleteAllCachedSongs(ctx context.Context) error {
	_, err := s.Exec(ctx, `DELETE FROM songs`)
	return err
}

func scanCachedSong(rows *sql.Rows) (*models.CachedSong, error) {
	var c models.CachedSong
	var title, filePath, thumbnail, errMsg sql.NullString
	var status string
	if err := rows.Scan(&c.ID, &c.URL, &title, &c.Duration, &filePath, &thumbnail, &status, &errMsg, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan cached song: %w", err)
	}
	c.Title = title.String
	c.FilePath = filePath.String
	c.ThumbnailURL = thumbnail.String
	c.ErrorMessage = errMsg.String
	c.Status = models.SongStatus(status)
	return &c, nil
}
