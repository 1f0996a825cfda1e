// Package chat implements component G: a bounded per-lobby message ring
// plus the per-connection throttle, grounded on the teacher's
// internal/cache.SlidingWindowCounter generalized from a bandwidth counter
// to a messages-per-window limiter.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncwave/syncwave/internal/cache"
	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/models"
)

const (
	historyCap   = 100
	maxContent   = 500
	throttleMsgs = 5
	throttleWin  = 10 * time.Second
)

// Module owns the chat history ring per lobby and the connection throttle.
type Module struct {
	store   *database.Store
	throttle *cache.ThrottleRegistry

	mu      sync.Mutex
	history map[string][]*models.ChatMessage // lobbyId -> ring, oldest first
}

// New creates a chat module backed by store for optional durable logging.
func New(store *database.Store) *Module {
	return &Module{
		store:    store,
		throttle: cache.NewThrottleRegistry(throttleMsgs, throttleWin),
		history:  make(map[string][]*models.ChatMessage),
	}
}

// IsThrottled records one attempt for connID and reports whether the
// connection has exceeded 5 messages per 10 s (the 6th call returns true).
func (m *Module) IsThrottled(connID string) bool {
	return m.throttle.IsThrottled(connID)
}

// RemoveConnection drops connID's throttle counter, called on disconnect.
func (m *Module) RemoveConnection(connID string) {
	m.throttle.Remove(connID)
}

// AddMessage truncates content to 500 chars, appends it to the lobby's
// ring (evicting the oldest entry past cap 100), and persists
// fire-and-forget.
func (m *Module) AddMessage(lobbyID, userID, username, emoji, content string) *models.ChatMessage {
	if len(content) > maxContent {
		content = content[:maxContent]
	}
	msg := &models.ChatMessage{
		ID:        uuid.NewString(),
		LobbyID:   lobbyID,
		UserID:    userID,
		Username:  username,
		Emoji:     emoji,
		Content:   strings.TrimSpace(content),
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	ring := append(m.history[lobbyID], msg)
	if len(ring) > historyCap {
		ring = ring[len(ring)-historyCap:]
	}
	m.history[lobbyID] = ring
	m.mu.Unlock()

	m.persist(msg)
	return msg
}

// GetHistory returns up to limit of the most recent messages for lobbyID,
// oldest first. Falls back to the durable log on an empty in-memory ring
// (e.g. after a restart) and caches the result.
func (m *Module) GetHistory(lobbyID string, limit int) []*models.ChatMessage {
	if limit <= 0 {
		limit = 50
	}

	m.mu.Lock()
	ring := m.history[lobbyID]
	m.mu.Unlock()

	if len(ring) == 0 && m.store.IsAvailable() {
		loaded, err := m.store.GetRecentChatMessages(context.Background(), lobbyID, historyCap)
		if err != nil {
			logging.Warn().Err(err).Str("lobbyId", lobbyID).Msg("chat: history fallback failed")
		} else if len(loaded) > 0 {
			m.mu.Lock()
			m.history[lobbyID] = loaded
			m.mu.Unlock()
			ring = loaded
		}
	}

	if len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	out := make([]*models.ChatMessage, len(ring))
	copy(out, ring)
	return out
}

// DropLobby clears a lobby's in-memory history, called when the lobby is
// deleted.
func (m *Module) DropLobby(lobbyID string) {
	m.mu.Lock()
	delete(m.history, lobbyID)
	m.mu.Unlock()
}

func (m *Module) persist(msg *models.ChatMessage) {
	if !m.store.IsAvailable() {
		return
	}
	go func() {
		if err := m.store.InsertChatMessage(context.Background(), msg); err != nil {
			logging.Warn().Err(err).Str("lobbyId", msg.LobbyID).Msg("chat: persist failed")
		}
	}()
}
