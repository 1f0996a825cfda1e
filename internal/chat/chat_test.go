package chat

import (
	"strings"
	"testing"

	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/database"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	store := database.Open(config.DatabaseConfig{})
	return New(store)
}

func TestAddMessageTruncatesContent(t *testing.T) {
	m := newTestModule(t)
	long := strings.Repeat("a", maxContent+50)

	msg := m.AddMessage("lobby-1", "user-1", "alice", "", long)

	if len(msg.Content) != maxContent {
		t.Fatalf("expected content truncated to %d chars, got %d", maxContent, len(msg.Content))
	}
}

func TestAddMessageTrimsWhitespace(t *testing.T) {
	m := newTestModule(t)
	msg := m.AddMessage("lobby-1", "user-1", "alice", "", "  hello  ")
	if msg.Content != "hello" {
		t.Fatalf("expected trimmed content, got %q", msg.Content)
	}
}

func TestGetHistoryReturnsOldestFirst(t *testing.T) {
	m := newTestModule(t)
	m.AddMessage("lobby-1", "u1", "alice", "", "first")
	m.AddMessage("lobby-1", "u1", "alice", "", "second")
	m.AddMessage("lobby-1", "u1", "alice", "", "third")

	history := m.GetHistory("lobby-1", 10)
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	if history[0].Content != "first" || history[2].Content != "third" {
		t.Fatalf("expected oldest-first order, got %+v", history)
	}
}

func TestGetHistoryRespectsLimit(t *testing.T) {
	m := newTestModule(t)
	for i := 0; i < 5; i++ {
		m.AddMessage("lobby-1", "u1", "alice", "", "msg")
	}
	history := m.GetHistory("lobby-1", 2)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
}

func TestGetHistoryEvictsPastCap(t *testing.T) {
	m := newTestModule(t)
	for i := 0; i < historyCap+10; i++ {
		m.AddMessage("lobby-1", "u1", "alice", "", "msg")
	}
	history := m.GetHistory("lobby-1", historyCap+10)
	if len(history) != historyCap {
		t.Fatalf("expected ring capped at %d, got %d", historyCap, len(history))
	}
}

func TestIsThrottledAllowsUpToLimit(t *testing.T) {
	m := newTestModule(t)
	for i := 0; i < throttleMsgs; i++ {
		if m.IsThrottled("conn-1") {
			t.Fatalf("expected message %d to be allowed", i+1)
		}
	}
	if !m.IsThrottled("conn-1") {
		t.Fatal("expected message past the limit to be throttled")
	}
}

func TestRemoveConnectionResetsThrottle(t *testing.T) {
	m := newTestModule(t)
	for i := 0; i < throttleMsgs; i++ {
		m.IsThrottled("conn-1")
	}
	m.RemoveConnection("conn-1")

	if m.IsThrottled("conn-1") {
		t.Fatal("expected throttle counter reset after RemoveConnection")
	}
}

func TestDropLobbyClearsHistory(t *testing.T) {
	m := newTestModule(t)
	m.AddMessage("lobby-1", "u1", "alice", "", "hi")

	m.DropLobby("lobby-1")

	if history := m.GetHistory("lobby-1", 10); len(history) != 0 {
		t.Fatalf("expected empty history after drop, got %+v", history)
	}
}
