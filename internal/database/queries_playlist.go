package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syncwave/syncwave/internal/models"
)

// CreatePlaylist inserts a new, empty playlist owned by userID.
func (s *Store) CreatePlaylist(ctx context.Context, p *models.Playlist) error {
	_, err := s.Exec(ctx, `
		INSERT INTO playlists (id, user_id, name, created_at) VALUES (?, ?, ?, ?)
	`, p.ID, p.UserID, p.Name, p.CreatedAt)
	return err
}

// RenamePlaylist updates a playlist's display name.
func (s *Store) RenamePlaylist(ctx context.Context, id, name string) error {
	_, err := s.Exec(ctx, `UPDATE playlists SET name = ? WHERE id = ?`, name, id)
	return err
}

// DeletePlaylist removes a playlist and its songs via FK cascade.
func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	_, err := s.Exec(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	return err
}

// GetPlaylist loads a playlist and its songs, ordered by sort_order.
func (s *Store) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	rows, err := s.Query(ctx, `SELECT id, user_id, name, created_at FROM playlists WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	var p models.Playlist
	if rows.Next() {
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
	} else {
		rows.Close()
		return nil, sql.ErrNoRows
	}
	rows.Close()

	songs, err := s.loadPlaylistSongs(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Songs = songs
	return &p, nil
}

// GetPlaylistsByUser lists every playlist owned by userID, without songs.
func (s *Store) GetPlaylistsByUser(ctx context.Context, userID string) ([]*models.Playlist, error) {
	rows, err := s.Query(ctx, `SELECT id, user_id, name, created_at FROM playlists WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Playlist
	for rows.Next() {
		var p models.Playlist
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// AddPlaylistSong appends a song to a playlist.
func (s *Store) AddPlaylistSong(ctx context.Context, ps *models.PlaylistSong) error {
	_, err := s.Exec(ctx, `
		INSERT INTO playlist_songs (id, playlist_id, url, title, duration, thumbnail, sort_order, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ps.ID, ps.PlaylistID, ps.URL, nullableString(ps.Title), ps.Duration, nullableString(ps.Thumbnail), ps.SortOrder, ps.AddedAt)
	return err
}

// RemovePlaylistSong deletes one song from a playlist.
func (s *Store) RemovePlaylistSong(ctx context.Context, id string) error {
	_, err := s.Exec(ctx, `DELETE FROM playlist_songs WHERE id = ?`, id)
	return err
}

// ReorderPlaylistSongs rewrites sort_order for a playlist's songs in one
// transaction, mirroring ReplaceSortOrders for the queue (spec §4.H).
func (s *Store) ReorderPlaylistSongs(ctx context.Context, playlistID string, ids []string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE playlist_songs SET sort_order = ? WHERE id = ? AND playlist_id = ?`, i, id, playlistID); err != nil {
				return fmt.Errorf("update sort_order for %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Store) loadPlaylistSongs(ctx context.Context, playlistID string) ([]models.PlaylistSong, error) {
	rows, err := s.Query(ctx, `
		SELECT id, playlist_id, url, title, duration, thumbnail, sort_order, added_at
		FROM playlist_songs WHERE playlist_id = ? ORDER BY sort_order ASC
	`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PlaylistSong
	for rows.Next() {
		var ps models.PlaylistSong
		var title, thumbnail sql.NullString
		if err := rows.Scan(&ps.ID, &ps.PlaylistID, &ps.URL, &title, &ps.Duration, &thumbnail, &ps.SortOrder, &ps.AddedAt); err != nil {
			return nil, fmt.Errorf("scan playlist song: %w", err)
		}
		ps.Title = title.String
		ps.Thumbnail = thumbnail.String
		out = append(out, ps)
	}
	return out, rows.Err()
}
