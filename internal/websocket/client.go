package websocket

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingEvery    = 50 * time.Second
	readLimit    = 512
	sendBuffer   = 64
)

// Client is one websocket connection of a user. The channel is push only:
// inbound frames are read and discarded so pongs and close frames are seen.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	send   chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, buffer int) *Client {
	return &Client{hub: hub, conn: conn, userID: userID, send: make(chan []byte, buffer)}
}

// ServeWs attaches conn to the hub and blocks until the peer disconnects or
// the hub shuts down.
func ServeWs(hub *Hub, conn *websocket.Conn, userID uuid.UUID) {
	c := newClient(hub, conn, userID, sendBuffer)
	if !hub.attach(c) {
		_ = conn.Close()
		return
	}

	go c.deliver()
	c.drain()
}

func (c *Client) drain() {
	defer func() {
		c.hub.detach(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Hub", "Connection closed unexpectedly", map[string]interface{}{
					"user_id": c.userID.String(),
					"error":   err.Error(),
				})
			}
			return
		}
	}
}

func (c *Client) deliver() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		var (
			kind    = websocket.PingMessage
			payload []byte
		)
		select {
		case msg, open := <-c.send:
			if !open {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			kind, payload = websocket.TextMessage, msg
		case <-ping.C:
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}
