package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syncwave/syncwave/internal/models"
)

// InsertChatMessage appends a durable chat log entry. Persistence is
// optional per spec §9 Open Question 3: the in-memory ring buffer is
// authoritative for the 100-message history that chat.GetHistory reads,
// this table exists for operators who want a durable chat record.
func (s *Store) InsertChatMessage(ctx context.Context, m *models.ChatMessage) error {
	_, err := s.Exec(ctx, `
		INSERT INTO chat_messages (id, lobby_id, user_id, username, emoji, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.LobbyID, nullableString(m.UserID), nullableString(m.Username), nullableString(m.Emoji), nullableString(m.Content), m.Timestamp)
	return err
}

// GetRecentChatMessages loads the most recent limit messages for a lobby,
// oldest first, used to seed history if the in-memory ring was lost to a
// process restart.
func (s *Store) GetRecentChatMessages(ctx context.Context, lobbyID string, limit int) ([]*models.ChatMessage, error) {
	rows, err := s.Query(ctx, `
		SELECT id, lobby_id, user_id, username, emoji, content, created_at
		FROM chat_messages WHERE lobby_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, lobbyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ChatMessage
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanChatMessage(rows *sql.Rows) (*models.ChatMessage, error) {
	var m models.ChatMessage
	var userID, username, emoji, content sql.NullString
	if err := rows.Scan(&m.ID, &m.LobbyID, &userID, &username, &emoji, &content, &m.Timestamp); err != nil {
		return nil, fmt.Errorf("scan chat message: %w", err)
	}
	m.UserID = userID.String
	m.Username = username.String
	m.Emoji = emoji.String
	m.Content = content.String
	return &m, nil
}
