package handler

import (
	"exam-proctor-be/internal/pkg/logger"
	"exam-proctor-be/internal/pkg/serverutils"
	internalWS "exam-proctor-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type MonitoringHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewMonitoringHandler(hub *internalWS.Hub, log logger.ILogger) *MonitoringHandler {
	return &MonitoringHandler{
		hub:    hub,
		logger: log,
	}
}

// ServeWs authenticates the handshake and joins the connection to its rooms:
// students to their own warning room, supervisors to one exam (exam_id) or to
// every exam.
func (h *MonitoringHandler) ServeWs(c *fiber.Ctx) error {
	// Query param first (browsers cannot set headers on WS), then Authorization header.
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

	id, err := serverutils.ParseToken(tokenStr)
	if err != nil {
		h.logger.Warn("MonitoringHandler", "Invalid Token in WS Handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	rooms := Rooms(id, c.Query("exam_id"))

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("MonitoringHandler", "Starting WebSocket session", map[string]interface{}{"user_id": id.UserID, "role": id.Role})
		internalWS.ServeWs(h.hub, conn, id.UserID, rooms)
		h.logger.Info("MonitoringHandler", "WebSocket session ended", map[string]interface{}{"user_id": id.UserID})
	})(c)
}

// Rooms resolves which hub rooms an identity listens to.
func Rooms(id serverutils.Identity, examID string) []string {
	if !id.IsSupervisor() {
		return []string{internalWS.StudentRoom(id.UserID)}
	}
	if examID != "" {
		return []string{internalWS.ExamRoom(examID)}
	}
	return []string{internalWS.SupervisorsRoom}
}

func (h *MonitoringHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/proctor/ws", h.ServeWs)
}
