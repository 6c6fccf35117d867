package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs binds a fresh connection to the hub. The session id doubles as
// the connection id: one session per websocket connection.
func ServeWs(hub *Hub, c *websocket.Conn, handler QueryHandler) {
	client := &Client{
		Hub:       hub,
		Conn:      c,
		SessionId: uuid.NewString(),
		Send:      make(chan []byte, 256),
		handler:   handler,
	}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
