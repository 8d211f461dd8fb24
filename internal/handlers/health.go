package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"genslides/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	connManager *services.ConnectionManager
	redis       *services.RedisService // nil when running without Redis
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connManager *services.ConnectionManager, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{connManager: connManager, redis: redis}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "healthy"
		if err := h.redis.Ping(c.Context()); err != nil {
			redisStatus = "unreachable"
		}
	}

	return c.JSON(fiber.Map{
		"status":      "healthy",
		"connections": h.connManager.Count(),
		"redis":       redisStatus,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
