package handlers

import (
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/understories/p2pmentor/internal/notify"
)

type NotificationHandler struct {
	hub *notify.Hub
}

func NewNotificationHandler(hub *notify.Hub) *NotificationHandler {
	return &NotificationHandler{hub: hub}
}

// WebSocketUpgrade gates the notification socket. The actor identity comes
// from the actor_id query parameter because browsers cannot set headers on
// websocket upgrades.
func (h *NotificationHandler) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	actorID := strings.TrimSpace(c.Query("actor_id"))
	if actorID == "" {
		actorID = strings.TrimSpace(c.Get("X-Actor-ID"))
	}
	if actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing actor identity"})
	}

	c.Locals("actor_id", actorID)
	return c.Next()
}

func (h *NotificationHandler) HandleWebSocket(conn *websocket.Conn) {
	actorID, _ := conn.Locals("actor_id").(string)
	client := notify.NewClient(h.hub, conn, actorID)

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}
