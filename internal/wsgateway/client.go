package wsgateway

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/syncwave/syncwave/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var clientIDCounter atomic.Uint64

// Client is a single websocket connection, at most one lobby room at a
// time (the room-scoped generalization of the teacher's single-hub
// Client).
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	send    chan Message
	connID  string
	lobbyID atomic.Value // string
}

// NewClient wraps conn with a unique, deterministically-ordered id and an
// opaque connection id used as the realtime protocol's connId.
func NewClient(hub *Hub, conn *websocket.Conn, connID string) *Client {
	c := &Client{
		id:     clientIDCounter.Add(1),
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, 256),
		connID: connID,
	}
	c.lobbyID.Store("")
	return c
}

// ID returns the client's deterministic ordering key.
func (c *Client) ID() uint64 { return c.id }

// ConnID returns the opaque connection id exposed to the protocol layer.
func (c *Client) ConnID() string { return c.connID }

// LobbyID returns the room the client currently belongs to, or "" if none.
func (c *Client) LobbyID() string {
	return c.lobbyID.Load().(string)
}

func (c *Client) setLobbyID(id string) {
	c.lobbyID.Store(id)
}

// Start begins the read/write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("wsgateway: set read deadline failed")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("connId", c.connID).Msg("wsgateway: unexpected close")
			}
			return
		}
		c.hub.router.HandleMessage(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("wsgateway: set write deadline failed")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Str("connId", c.connID).Msg("wsgateway: write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
