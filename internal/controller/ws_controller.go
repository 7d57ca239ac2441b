package controller

import (
	"streamchat-orchestrator/internal/apperr"
	"streamchat-orchestrator/internal/domain"
	"streamchat-orchestrator/internal/pkg/logger"
	"streamchat-orchestrator/internal/pkg/serverutils"
	"streamchat-orchestrator/internal/websocket"

	"github.com/gofiber/fiber/v2"
	gofiberws "github.com/gofiber/websocket/v2"
)

// WebSocketController upgrades a client into the push channel for one
// chat's room, the websocket half of the Push Fanout alongside the HTTP
// chunked-response writer in ChatController.Chat.
type WebSocketController struct {
	hub    *websocket.Hub
	logger logger.ILogger
}

func NewWebSocketController(hub *websocket.Hub, log logger.ILogger) *WebSocketController {
	return &WebSocketController{hub: hub, logger: log}
}

func (c *WebSocketController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/ws/v1")
	h.Use(wsAuthUpgrade)
	h.Get("/room", gofiberws.New(c.Room))
}

// wsAuthUpgrade recovers the same bearer-token user id the HTTP endpoints
// use and requires the websocket upgrade headers, then lets fiber's
// websocket middleware take over.
func wsAuthUpgrade(ctx *fiber.Ctx) error {
	if !gofiberws.IsWebSocketUpgrade(ctx) {
		return apperr.Validation("expected websocket upgrade")
	}
	return serverutils.NewJwtMiddleware(jwtSecretVar())(ctx)
}

func jwtSecretVar() string { return jwtSecret }

func (c *WebSocketController) Room(conn *gofiberws.Conn) {
	userID, _ := conn.Locals("user_id").(string)
	sessionID := conn.Query("session_id")
	chatID := conn.Query("chat_id")
	instanceID := conn.Query("instance_id")

	room := domain.Fingerprint{UserID: userID, SessionID: sessionID, ChatID: chatID, InstanceID: instanceID}.String()
	websocket.ServeWs(c.hub, conn, room, c.logger)
}
