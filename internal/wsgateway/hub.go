// Package wsgateway is the websocket transport: a room-scoped Hub/Client
// pair adapted from the teacher's internal/websocket package. The teacher
// hub serves one global room; here every client belongs to at most one
// lobby room at a time; broadcasts are room-scoped so there is no
// cross-lobby leakage (spec §5 Broadcast discipline).
package wsgateway

import (
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/metrics"
)

// Message is the wire envelope for every realtime event (spec §6).
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Router dispatches an inbound Message for a Client. Implemented by
// internal/gateway; kept as an interface here so wsgateway has no
// knowledge of lobbies, queues or playback.
type Router interface {
	HandleMessage(c *Client, msg Message)
	HandleDisconnect(c *Client)
}

// Hub owns the room membership table and the registration channels,
// mirroring the teacher's priority-select Run loop generalized to
// per-room broadcast.
type Hub struct {
	router Router

	mu    sync.RWMutex
	rooms map[string]map[*Client]bool // lobbyId -> client set

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
}

type roomMessage struct {
	lobbyID string
	msg     Message
}

// NewHub creates a hub dispatching inbound messages to router.
func NewHub(router Router) *Hub {
	return &Hub{
		router:     router,
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
	}
}

// Register enqueues a newly-connected client.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister enqueues a disconnected client.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Run services registration and broadcast channels until done is closed,
// using the teacher's priority-select pattern: lifecycle events drain
// before broadcasts so room membership is always consistent before a
// message is fanned out.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case c := <-h.register:
			h.addClient(c)
			continue
		case c := <-h.unregister:
			h.removeClient(c)
			continue
		default:
		}

		select {
		case <-done:
			h.closeAll()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case rm := <-h.broadcast:
			h.fanOut(rm.lobbyID, rm.msg)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.rooms[c.LobbyID()] == nil {
		h.rooms[c.LobbyID()] = make(map[*Client]bool)
	}
	h.rooms[c.LobbyID()][c] = true
	h.mu.Unlock()
	metrics.ActiveConnections.Inc()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if set, ok := h.rooms[c.LobbyID()]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.send)
			if len(set) == 0 {
				delete(h.rooms, c.LobbyID())
			}
		}
	}
	h.mu.Unlock()
	metrics.ActiveConnections.Dec()
	h.router.HandleDisconnect(c)
}

// MoveRoom migrates a client from its current room to lobbyID, used on
// lobby:join when already in another lobby (spec §4.I).
func (h *Hub) MoveRoom(c *Client, lobbyID string) {
	h.mu.Lock()
	if set, ok := h.rooms[c.LobbyID()]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, c.LobbyID())
		}
	}
	c.setLobbyID(lobbyID)
	if h.rooms[lobbyID] == nil {
		h.rooms[lobbyID] = make(map[*Client]bool)
	}
	h.rooms[lobbyID][c] = true
	h.mu.Unlock()
}

// Broadcast fans a message out to every client currently in lobbyID's room.
func (h *Hub) Broadcast(lobbyID string, msg Message) {
	select {
	case h.broadcast <- roomMessage{lobbyID: lobbyID, msg: msg}:
	default:
		logging.Warn().Str("lobbyId", lobbyID).Str("event", msg.Event).Msg("wsgateway: broadcast channel full, dropping message")
	}
}

// Unicast sends a message to a single client, bypassing room membership.
func (h *Hub) Unicast(c *Client, msg Message) {
	select {
	case c.send <- msg:
	default:
		logging.Warn().Str("event", msg.Event).Msg("wsgateway: client send buffer full, dropping message")
	}
}

// RoomSize reports the number of clients in lobbyID's room.
func (h *Hub) RoomSize(lobbyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[lobbyID])
}

func (h *Hub) fanOut(lobbyID string, msg Message) {
	h.mu.RLock()
	set := h.rooms[lobbyID]
	clients := make([]*Client, 0, len(set))
	for c := range set {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	// Deterministic order, grounded on the teacher's client-id sort before
	// fan-out/close.
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	var stuck []*Client
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			stuck = append(stuck, c)
		}
	}
	for _, c := range stuck {
		h.Unregister(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for lobbyID, set := range h.rooms {
		clients := make([]*Client, 0, len(set))
		for c := range set {
			clients = append(clients, c)
		}
		sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
		for _, c := range clients {
			close(c.send)
		}
		delete(h.rooms, lobbyID)
	}
	logging.Info().Msg("wsgateway: closed all clients during shutdown")
}

// MarshalMessage encodes a Message for logging/testing.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
