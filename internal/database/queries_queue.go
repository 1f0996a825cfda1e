package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syncwave/syncwave/internal/models"
)

// InsertSong persists a new queue entry.
func (s *Store) InsertSong(ctx context.Context, song *models.Song) error {
	_, err := s.Exec(ctx, `
		INSERT INTO queue_songs (id, lobby_id, url, title, duration, added_by, thumbnail, added_at, sort_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, song.ID, song.LobbyID, song.URL, song.Title, song.Duration, nullableString(song.AddedBy), nullableString(song.Thumbnail), song.AddedAt, song.SortOrder)
	return err
}

// DeleteSong removes a single queue entry.
func (s *Store) DeleteSong(ctx context.Context, id string) error {
	_, err := s.Exec(ctx, `DELETE FROM queue_songs WHERE id = ?`, id)
	return err
}

// ReplaceSortOrders rewrites the sort_order of every song in a lobby in one
// transaction, keeping {sort_order} a dense permutation per spec invariant
// §8.1. ids is the full, newly-ordered id list.
func (s *Store) ReplaceSortOrders(ctx context.Context, lobbyID string, ids []string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		for i, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE queue_songs SET sort_order = ? WHERE id = ? AND lobby_id = ?`, i, id, lobbyID); err != nil {
				return fmt.Errorf("update sort_order for %s: %w", id, err)
			}
		}
		return nil
	})
}

// LoadQueue restores a lobby's queue ordered by sort_order (spec §4.D
// loadFromDB).
func (s *Store) LoadQueue(ctx context.Context, lobbyID string) ([]*models.Song, error) {
	rows, err := s.Query(ctx, `
		SELECT id, lobby_id, url, title, duration, added_by, thumbnail, added_at, sort_order
		FROM queue_songs WHERE lobby_id = ? ORDER BY sort_order ASC
	`, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Song
	for rows.Next() {
		var song models.Song
		var addedBy, thumbnail sql.NullString
		if err := rows.Scan(&song.ID, &song.LobbyID, &song.URL, &song.Title, &song.Duration, &addedBy, &thumbnail, &song.AddedAt, &song.SortOrder); err != nil {
			return nil, fmt.Errorf("scan queue song: %w", err)
		}
		song.AddedBy = addedBy.String
		song.Thumbnail = thumbnail.String
		out = append(out, &song)
	}
	return out, rows.Err()
}

// CountSongs returns a lobby's queue length, used by GET /api/lobbies.
func (s *Store) CountSongs(ctx context.Context, lobbyID string) (int, error) {
	rows, err := s.Query(ctx, `SELECT count(*) FROM queue_songs WHERE lobby_id = ?`, lobbyID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}
