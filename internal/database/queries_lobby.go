package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/syncwave/syncwave/internal/models"
)

// UpsertLobby persists lobby metadata and activity timestamp.
func (s *Store) UpsertLobby(ctx context.Context, l *models.Lobby) error {
	_, err := s.Exec(ctx, `
		INSERT INTO lobbies (id, host_id, name, listening_mode, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			host_id = excluded.host_id,
			name = excluded.name,
			listening_mode = excluded.listening_mode,
			last_activity = excluded.last_activity
	`, l.ID, nullableString(l.HostID), nullableString(l.Name), string(l.Mode), l.CreatedAt, l.LastActivity)
	return err
}

// TouchLobbyActivity updates only the last_activity timestamp.
func (s *Store) TouchLobbyActivity(ctx context.Context, lobbyID string, at time.Time) error {
	_, err := s.Exec(ctx, `UPDATE lobbies SET last_activity = ? WHERE id = ?`, at, lobbyID)
	return err
}

// RenameLobby updates a lobby's display name.
func (s *Store) RenameLobby(ctx context.Context, lobbyID, name string) error {
	_, err := s.Exec(ctx, `UPDATE lobbies SET name = ? WHERE id = ?`, nullableString(name), lobbyID)
	return err
}

// GetLobby loads a single lobby row, used on registry lookup-miss.
func (s *Store) GetLobby(ctx context.Context, id string) (*models.Lobby, error) {
	rows, err := s.Query(ctx, `SELECT id, host_id, name, listening_mode, created_at, last_activity FROM lobbies WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	return scanLobby(rows)
}

// IsNameTaken reports whether name is already used by a live lobby other
// than excludeID, case-insensitively (spec §3, §4.F).
func (s *Store) IsNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	rows, err := s.Query(ctx, `SELECT id FROM lobbies WHERE lower(name) = lower(?) AND id != ?`, name, excludeID)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

// GetAllLobbies loads every persisted lobby, used on cold start.
func (s *Store) GetAllLobbies(ctx context.Context) ([]*models.Lobby, error) {
	rows, err := s.Query(ctx, `SELECT id, host_id, name, listening_mode, created_at, last_activity FROM lobbies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Lobby
	for rows.Next() {
		l, err := scanLobby(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLobby cascades to queue songs, playback state and chat via FK
// ON DELETE CASCADE.
func (s *Store) DeleteLobby(ctx context.Context, id string) error {
	_, err := s.Exec(ctx, `DELETE FROM lobbies WHERE id = ?`, id)
	return err
}

func scanLobby(rows *sql.Rows) (*models.Lobby, error) {
	var l models.Lobby
	var hostID, name sql.NullString
	if err := rows.Scan(&l.ID, &hostID, &name, &l.Mode, &l.CreatedAt, &l.LastActivity); err != nil {
		return nil, fmt.Errorf("scan lobby: %w", err)
	}
	l.HostID = hostID.String
	l.Name = name.String
	return &l, nil
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
