package handler

import (
	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/internal/pkg/serverutils"
	internalWS "daw-agent-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const module = "WEBSOCKET"

// EventHandler upgrades clients onto the live agent event feed.
type EventHandler struct {
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewEventHandler(hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *EventHandler {
	return &EventHandler{hub: hub, jwtSecret: jwtSecret, logger: log}
}

// ServeWs authenticates the handshake, when a secret is configured, and upgrades.
func (h *EventHandler) ServeWs(c *fiber.Ctx) error {
	if h.jwtSecret != "" {
		// Browsers cannot set headers on the upgrade request, so the query wins.
		tokenStr := c.Query("token")
		if tokenStr == "" {
			authHeader := c.Get("Authorization")
			if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
				tokenStr = authHeader[7:]
			}
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
		}
		if _, err := serverutils.ParseToken(tokenStr, h.jwtSecret); err != nil {
			h.logger.Warn(module, "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
			return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	types := internalWS.ParseTypes(c.Query("types"))
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info(module, "Starting event feed session", map[string]interface{}{"types": types})
		internalWS.ServeWs(h.hub, conn, types)
		h.logger.Info(module, "Event feed session ended", nil)
	})(c)
}

func (h *EventHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws/events", h.ServeWs)
}
