package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/syncwave/syncwave/internal/chat"
	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/covercache"
	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/fetcher"
	"github.com/syncwave/syncwave/internal/lobby"
	"github.com/syncwave/syncwave/internal/songcache"
	"github.com/syncwave/syncwave/internal/wsgateway"
)

// newTestGateway wires a Gateway against the degraded (no DATABASE_URL)
// store, matching main.go's construction order: gateway first, then hub,
// then SetHub, resolving the two's mutual reference.
func newTestGateway(t *testing.T) (*Gateway, *wsgateway.Hub) {
	t.Helper()
	store := database.Open(config.DatabaseConfig{})
	lobbies := lobby.New(store, config.DefaultLobbyPolicy())
	chatMod := chat.New(store)
	fetch := fetcher.New("", "")
	songs := songcache.New(store, fetch, t.TempDir(), time.Hour)
	covers, err := covercache.New(t.TempDir(), time.Second)
	if err != nil {
		t.Fatalf("covercache.New: %v", err)
	}

	gw := New(lobbies, chatMod, fetch, songs, covers)
	hub := wsgateway.NewHub(gw)
	gw.SetHub(hub)

	done := make(chan struct{})
	go hub.Run(done)
	t.Cleanup(func() { close(done) })

	return gw, hub
}

// newConnectedClient upgrades a real websocket connection per the
// teacher's httptest.Server + gorilla/websocket.Dialer test pattern, so
// HandleMessage is exercised end to end through Client's read/write pumps
// rather than by reaching into wsgateway internals.
func newConnectedClient(t *testing.T, hub *wsgateway.Hub, connID string) (*websocket.Conn, *wsgateway.Client) {
	t.Helper()
	ready := make(chan *wsgateway.Client, 1)
	stop := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := wsgateway.NewClient(hub, conn, connID)
		hub.Register(client)
		client.Start()
		ready <- client
		<-stop
	}))
	t.Cleanup(func() { close(stop); server.Close() })

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, <-ready
}

func readEvent(t *testing.T, conn *websocket.Conn, want string) wsgateway.Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	for {
		var msg wsgateway.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("expected event %q, got read error: %v", want, err)
		}
		if msg.Event == want {
			return msg
		}
	}
}

func TestHandleLobbyCreateRespondsWithLobbyCreated(t *testing.T) {
	_, hub := newTestGateway(t)
	conn, client := newConnectedClient(t, hub, "conn-1")

	if err := conn.WriteJSON(wsgateway.Message{Event: "lobby:create", Data: map[string]any{
		"username": "alice", "emoji": "🎧",
	}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readEvent(t, conn, "lobby:created")
	if msg.Data == nil {
		t.Fatal("expected lobby:created payload")
	}

	waitFor(t, func() bool { return client.LobbyID() != "" })
}

func TestHandleLobbyJoinUnknownLobbyCreatesOne(t *testing.T) {
	_, hub := newTestGateway(t)
	conn, _ := newConnectedClient(t, hub, "conn-1")

	if err := conn.WriteJSON(wsgateway.Message{Event: "lobby:join", Data: map[string]any{
		"lobbyId": "brand-new-lobby", "username": "bob",
	}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readEvent(t, conn, "lobby:joined")
	if msg.Data == nil {
		t.Fatal("expected lobby:joined payload")
	}
}

func TestHandleLobbyJoinBroadcastsUserJoinedToRoom(t *testing.T) {
	_, hub := newTestGateway(t)
	hostConn, host := newConnectedClient(t, hub, "host")

	if err := hostConn.WriteJSON(wsgateway.Message{Event: "lobby:create", Data: map[string]any{"username": "host"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, hostConn, "lobby:created")
	waitFor(t, func() bool { return host.LobbyID() != "" })
	lobbyID := host.LobbyID()

	guestConn, _ := newConnectedClient(t, hub, "guest")
	if err := guestConn.WriteJSON(wsgateway.Message{Event: "lobby:join", Data: map[string]any{
		"lobbyId": lobbyID, "username": "guest",
	}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	readEvent(t, guestConn, "lobby:joined")
	readEvent(t, hostConn, "lobby:user-joined")
}

func TestHandleQueueAddBroadcastsUpdateAndStartsPlaybackWhenEmpty(t *testing.T) {
	_, hub := newTestGateway(t)
	conn, client := newConnectedClient(t, hub, "conn-1")

	if err := conn.WriteJSON(wsgateway.Message{Event: "lobby:create", Data: map[string]any{"username": "alice"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn, "lobby:created")
	waitFor(t, func() bool { return client.LobbyID() != "" })
	lobbyID := client.LobbyID()

	if err := conn.WriteJSON(wsgateway.Message{Event: "queue:add", Data: map[string]any{
		"lobbyId": lobbyID, "url": "https://example.com/song.mp3", "title": "a song", "addedBy": "alice",
	}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	readEvent(t, conn, "queue:update")
	readEvent(t, conn, "playback:sync")
}

func TestHandleQueueAddWithoutURLSendsError(t *testing.T) {
	_, hub := newTestGateway(t)
	conn, client := newConnectedClient(t, hub, "conn-1")

	if err := conn.WriteJSON(wsgateway.Message{Event: "lobby:create", Data: map[string]any{"username": "alice"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn, "lobby:created")
	waitFor(t, func() bool { return client.LobbyID() != "" })

	if err := conn.WriteJSON(wsgateway.Message{Event: "queue:add", Data: map[string]any{"lobbyId": client.LobbyID()}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	readEvent(t, conn, "lobby:error")
}

func TestHandleChatSendBroadcastsMessage(t *testing.T) {
	_, hub := newTestGateway(t)
	conn, client := newConnectedClient(t, hub, "conn-1")

	if err := conn.WriteJSON(wsgateway.Message{Event: "lobby:create", Data: map[string]any{"username": "alice"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn, "lobby:created")
	waitFor(t, func() bool { return client.LobbyID() != "" })

	if err := conn.WriteJSON(wsgateway.Message{Event: "chat:send", Data: map[string]any{
		"lobbyId": client.LobbyID(), "content": "hello lobby",
	}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	readEvent(t, conn, "chat:message")
}

func TestHandleChatSendThrottledAfterLimit(t *testing.T) {
	_, hub := newTestGateway(t)
	conn, client := newConnectedClient(t, hub, "conn-1")

	if err := conn.WriteJSON(wsgateway.Message{Event: "lobby:create", Data: map[string]any{"username": "alice"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn, "lobby:created")
	waitFor(t, func() bool { return client.LobbyID() != "" })
	lobbyID := client.LobbyID()

	for i := 0; i < 5; i++ {
		if err := conn.WriteJSON(wsgateway.Message{Event: "chat:send", Data: map[string]any{
			"lobbyId": lobbyID, "content": "msg",
		}}); err != nil {
			t.Fatalf("write: %v", err)
		}
		readEvent(t, conn, "chat:message")
	}

	if err := conn.WriteJSON(wsgateway.Message{Event: "chat:send", Data: map[string]any{
		"lobbyId": lobbyID, "content": "one too many",
	}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, conn, "lobby:error")
}

func TestHandleDisconnectBroadcastsUserLeft(t *testing.T) {
	_, hub := newTestGateway(t)
	hostConn, host := newConnectedClient(t, hub, "host")

	if err := hostConn.WriteJSON(wsgateway.Message{Event: "lobby:create", Data: map[string]any{"username": "host"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, hostConn, "lobby:created")
	waitFor(t, func() bool { return host.LobbyID() != "" })
	lobbyID := host.LobbyID()

	guestConn, guest := newConnectedClient(t, hub, "guest")
	if err := guestConn.WriteJSON(wsgateway.Message{Event: "lobby:join", Data: map[string]any{
		"lobbyId": lobbyID, "username": "guest",
	}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readEvent(t, guestConn, "lobby:joined")
	readEvent(t, hostConn, "lobby:user-joined")

	guestConn.Close()

	readEvent(t, hostConn, "user-left")
}

func TestRunDownloadEventBridgeReturnsOnContextCancel(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		gw.RunDownloadEventBridge(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected RunDownloadEventBridge to return after context cancellation")
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
