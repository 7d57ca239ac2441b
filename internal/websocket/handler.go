package websocket

import (
	"streamchat-orchestrator/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
)

// ServeWs handles a websocket upgrade for room. Each connection gets its
// own Client; the Hub multiplexes the room's Fanout events across however
// many clients (tabs, devices) are currently watching it.
func ServeWs(hub *Hub, c *websocket.Conn, room string, log logger.ILogger) {
	client := &Client{Hub: hub, Conn: c, Room: room, Send: make(chan []byte, 256), logger: log}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
