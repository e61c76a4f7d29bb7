package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs registers the connection in rooms and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, userID string, rooms []string) {
	client := &Client{Hub: hub, Conn: c, UserID: userID, Rooms: rooms, Send: make(chan []byte, 256)}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
