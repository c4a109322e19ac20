package websocket

import (
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Client is one subscriber on the event feed.
type Client struct {
	ID   uuid.UUID
	Hub  *Hub
	Conn *websocket.Conn

	// Types limits delivery to these event types; empty receives everything.
	Types map[string]struct{}

	// Buffered channel of outbound frames, one encoded Message each.
	Send chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, types []string) *Client {
	c := &Client{ID: uuid.New(), Hub: hub, Conn: conn, Send: make(chan []byte, sendBuffer)}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			if c.Types == nil {
				c.Types = make(map[string]struct{})
			}
			c.Types[t] = struct{}{}
		}
	}
	return c
}

// ParseTypes splits a comma-separated types query value.
func ParseTypes(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (c *Client) Wants(eventType string) bool {
	if len(c.Types) == 0 {
		return true
	}
	_, ok := c.Types[eventType]
	return ok
}

// readPump keeps the read deadline alive through pongs. The feed is one-way,
// so inbound payloads are discarded; a read error ends the session.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn(module, "Unexpected close", map[string]interface{}{
					"client_id": c.ID,
					"error":     err.Error(),
				})
			}
			return
		}
	}
}

// writePump forwards hub frames and pings until Send is closed or a write
// fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
