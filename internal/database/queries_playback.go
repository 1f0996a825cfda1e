package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/syncwave/syncwave/internal/models"
)

// UpsertPlaybackState writes the full playback row, called on every
// mutating playback operation (spec §4.E persistence).
func (s *Store) UpsertPlaybackState(ctx context.Context, p *models.PlaybackState) error {
	var trackJSON, indicesJSON []byte
	var err error
	if p.CurrentTrack != nil {
		if trackJSON, err = json.Marshal(p.CurrentTrack); err != nil {
			return fmt.Errorf("marshal current track: %w", err)
		}
	}
	if p.ShuffledIndices != nil {
		if indicesJSON, err = json.Marshal(p.ShuffledIndices); err != nil {
			return fmt.Errorf("marshal shuffled indices: %w", err)
		}
	}

	_, err = s.Exec(ctx, `
		INSERT INTO playback_state (lobby_id, current_track, position, is_playing, started_at, shuffle_enabled, shuffled_indices, shuffle_index, repeat_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lobby_id) DO UPDATE SET
			current_track = excluded.current_track,
			position = excluded.position,
			is_playing = excluded.is_playing,
			started_at = excluded.started_at,
			shuffle_enabled = excluded.shuffle_enabled,
			shuffled_indices = excluded.shuffled_indices,
			shuffle_index = excluded.shuffle_index,
			repeat_mode = excluded.repeat_mode
	`, p.LobbyID, nullableJSON(trackJSON), p.Position, p.IsPlaying, p.StartedAt, p.ShuffleEnabled, nullableJSON(indicesJSON), p.ShuffleIndex, string(p.RepeatMode))
	return err
}

// LoadPlaybackState restores a lobby's playback row, forcing IsPlaying to
// false per spec §4.E initLobbyFromDB (no phantom playhead after restart).
func (s *Store) LoadPlaybackState(ctx context.Context, lobbyID string) (*models.PlaybackState, error) {
	rows, err := s.Query(ctx, `
		SELECT lobby_id, current_track, position, is_playing, started_at, shuffle_enabled, shuffled_indices, shuffle_index, repeat_mode
		FROM playback_state WHERE lobby_id = ?
	`, lobbyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}

	var p models.PlaybackState
	var trackJSON, indicesJSON sql.NullString
	var startedAt sql.NullTime
	if err := rows.Scan(&p.LobbyID, &trackJSON, &p.Position, &p.IsPlaying, &startedAt, &p.ShuffleEnabled, &indicesJSON, &p.ShuffleIndex, &p.RepeatMode); err != nil {
		return nil, fmt.Errorf("scan playback state: %w", err)
	}
	if trackJSON.Valid && trackJSON.String != "" {
		var track models.Song
		if err := json.Unmarshal([]byte(trackJSON.String), &track); err != nil {
			return nil, fmt.Errorf("unmarshal current track: %w", err)
		}
		p.CurrentTrack = &track
	}
	if indicesJSON.Valid && indicesJSON.String != "" {
		if err := json.Unmarshal([]byte(indicesJSON.String), &p.ShuffledIndices); err != nil {
			return nil, fmt.Errorf("unmarshal shuffled indices: %w", err)
		}
	}
	if startedAt.Valid {
		p.StartedAt = &startedAt.Time
	}
	p.IsPlaying = false // restart invariant: never resume a phantom playhead
	return &p, nil
}

// DeletePlaybackState removes a lobby's playback row explicitly (normally
// handled by the lobbies FK cascade, but exposed for the cleanup sweep's
// orphan garbage collection).
func (s *Store) DeletePlaybackState(ctx context.Context, lobbyID string) error {
	_, err := s.Exec(ctx, `DELETE FROM playback_state WHERE lobby_id = ?`, lobbyID)
	return err
}

// GetAllPlaybackLobbyIDs lists every lobby id with a persisted playback row,
// used by the sweep to find rows whose owning lobby no longer exists.
func (s *Store) GetAllPlaybackLobbyIDs(ctx context.Context) ([]string, error) {
	rows, err := s.Query(ctx, `SELECT lobby_id FROM playback_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan playback lobby id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
