package websocket

import "github.com/gofiber/websocket/v2"

// ServeWs subscribes conn to the hub, optionally filtered to types, and
// blocks until the connection closes.
func ServeWs(hub *Hub, conn *websocket.Conn, types []string) {
	client := NewClient(hub, conn, types)
	hub.register <- client

	go client.writePump()
	client.readPump()
}
