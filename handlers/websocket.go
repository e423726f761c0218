package handlers

import (
	"net/http"

	"detection-service/models"
	ws "detection-service/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades dashboard connections to the live feed.
type WebSocketHandler struct {
	hub *ws.Hub
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The HTTP API already allows any origin; the feed matches it.
		return true
	},
}

// LiveFeed handles WebSocket connections for the live detection feed.
func (h *WebSocketHandler) LiveFeed(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}

	h.hub.RegisterClient(conn)
}

// HealthCheck reports service liveness and live feed stats.
func (h *WebSocketHandler) HealthCheck(c *gin.Context) {
	connected, _ := h.hub.GetStats()
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:           "healthy",
		Service:          "detection-service",
		Version:          "1.0.0",
		ConnectedClients: connected,
	})
}
