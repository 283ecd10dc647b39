package handlers

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"lumichat/internal/services"
)

// SyncHandler handles the sync blob endpoints
type SyncHandler struct {
	service *services.SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service *services.SyncService) *SyncHandler {
	return &SyncHandler{service: service}
}

type syncUploadRequest struct {
	SyncKey string          `json:"syncKey"`
	Data    json.RawMessage `json:"data"`
}

type syncKeyRequest struct {
	SyncKey string `json:"syncKey"`
}

// Upload handles POST /api/sync/upload
func (h *SyncHandler) Upload(c *fiber.Ctx) error {
	var req syncUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.service.Upload(req.SyncKey, req.Data); err != nil {
		return syncError(c, err, "Failed to store data")
	}
	return c.JSON(fiber.Map{"success": true})
}

// Download handles POST /api/sync/download
func (h *SyncHandler) Download(c *fiber.Ctx) error {
	var req syncKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	blob, err := h.service.Download(req.SyncKey)
	if err != nil {
		return syncError(c, err, "Failed to load data")
	}
	return c.JSON(fiber.Map{
		"data":      blob.Data,
		"updatedAt": blob.UpdatedAt,
	})
}

// CreateKey handles POST /api/sync/admin/keys (admin token required)
func (h *SyncHandler) CreateKey(c *fiber.Ctx) error {
	var req syncKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.service.CreateKey(req.SyncKey); err != nil {
		return syncError(c, err, "Failed to create key")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
}

// DeleteKey handles DELETE /api/sync/admin/keys (admin token required)
func (h *SyncHandler) DeleteKey(c *fiber.Ctx) error {
	var req syncKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.service.DeleteKey(req.SyncKey); err != nil {
		return syncError(c, err, "Failed to delete key")
	}
	return c.JSON(fiber.Map{"success": true})
}

// Stats handles GET /api/sync/admin/stats (admin token required)
func (h *SyncHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats()
	if err != nil {
		log.Printf("❌ Failed to list sync keys: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sync keys",
		})
	}
	return c.JSON(fiber.Map{"keys": stats})
}

func syncError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, services.ErrInvalidSyncKey):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, services.ErrSyncKeyNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sync key not found",
		})
	default:
		log.Printf("❌ Sync operation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fallback,
		})
	}
}
