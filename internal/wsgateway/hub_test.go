package wsgateway

import (
	"sync"
	"testing"
	"time"
)

// mockRouter is a test double for Router; it has no lobby/queue/playback
// knowledge, matching the real boundary internal/gateway sits behind.
type mockRouter struct {
	mu          sync.Mutex
	disconnects []uint64
}

func (m *mockRouter) HandleMessage(c *Client, msg Message) {}

func (m *mockRouter) HandleDisconnect(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, c.id)
}

// testClient builds a Client with no backing websocket connection, valid
// for exercising Hub's room bookkeeping which never touches conn.
func testClient(lobbyID string) *Client {
	c := &Client{
		id:     clientIDCounter.Add(1),
		send:   make(chan Message, 8),
		connID: "conn",
	}
	c.lobbyID.Store(lobbyID)
	return c
}

func runHub(h *Hub) chan struct{} {
	done := make(chan struct{})
	go h.Run(done)
	return done
}

func TestRegisterAddsClientToRoom(t *testing.T) {
	router := &mockRouter{}
	h := NewHub(router)
	done := runHub(h)
	defer close(done)

	c := testClient("lobby-1")
	h.Register(c)

	waitFor(t, func() bool { return h.RoomSize("lobby-1") == 1 })
}

func TestUnregisterRemovesClientAndNotifiesRouter(t *testing.T) {
	router := &mockRouter{}
	h := NewHub(router)
	done := runHub(h)
	defer close(done)

	c := testClient("lobby-1")
	h.Register(c)
	waitFor(t, func() bool { return h.RoomSize("lobby-1") == 1 })

	h.Unregister(c)
	waitFor(t, func() bool { return h.RoomSize("lobby-1") == 0 })

	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.disconnects) != 1 || router.disconnects[0] != c.id {
		t.Fatalf("expected router to be notified of disconnect for client %d, got %v", c.id, router.disconnects)
	}
}

func TestBroadcastFansOutToRoomOnly(t *testing.T) {
	h := NewHub(&mockRouter{})
	done := runHub(h)
	defer close(done)

	inRoom := testClient("lobby-1")
	otherRoom := testClient("lobby-2")
	h.Register(inRoom)
	h.Register(otherRoom)
	waitFor(t, func() bool { return h.RoomSize("lobby-1") == 1 && h.RoomSize("lobby-2") == 1 })

	h.Broadcast("lobby-1", Message{Event: "chat:message"})

	select {
	case msg := <-inRoom.send:
		if msg.Event != "chat:message" {
			t.Fatalf("unexpected event %q", msg.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected client in lobby-1 to receive the broadcast")
	}

	select {
	case <-otherRoom.send:
		t.Fatal("expected client in another room not to receive the broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnicastSendsToOneClient(t *testing.T) {
	h := NewHub(&mockRouter{})
	c := testClient("lobby-1")

	h.Unicast(c, Message{Event: "playback:forceSync"})

	select {
	case msg := <-c.send:
		if msg.Event != "playback:forceSync" {
			t.Fatalf("unexpected event %q", msg.Event)
		}
	default:
		t.Fatal("expected message to be queued for delivery")
	}
}

func TestMoveRoomMigratesClient(t *testing.T) {
	h := NewHub(&mockRouter{})
	done := runHub(h)
	defer close(done)

	c := testClient("lobby-1")
	h.Register(c)
	waitFor(t, func() bool { return h.RoomSize("lobby-1") == 1 })

	h.MoveRoom(c, "lobby-2")

	if h.RoomSize("lobby-1") != 0 {
		t.Fatalf("expected lobby-1 empty after move, got %d", h.RoomSize("lobby-1"))
	}
	if h.RoomSize("lobby-2") != 1 {
		t.Fatalf("expected lobby-2 to have 1 client, got %d", h.RoomSize("lobby-2"))
	}
	if c.LobbyID() != "lobby-2" {
		t.Fatalf("expected client's LobbyID updated, got %q", c.LobbyID())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
