package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"lumichat/internal/database"
	"lumichat/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db          *database.DB
	connManager *services.ConnectionManager
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, connManager *services.ConnectionManager) *HealthHandler {
	return &HealthHandler{db: db, connManager: connManager}
}

// Handle responds with server health status. An unreachable database
// demotes the status so load balancers rotate the instance out.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	httpStatus := fiber.StatusOK
	if err := h.db.Ping(); err != nil {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":      status,
		"connections": h.connManager.Count(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
