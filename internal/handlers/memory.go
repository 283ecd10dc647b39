package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"lumichat/internal/models"
	"lumichat/internal/services"
)

// MemoryHandler handles the memory surfaces: global memory, per-actor
// memory, memory tables, and the now-playing fact.
type MemoryHandler struct {
	memory    *services.MemoryService
	refresher *services.MemoryRefreshService
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(memory *services.MemoryService, refresher *services.MemoryRefreshService) *MemoryHandler {
	return &MemoryHandler{memory: memory, refresher: refresher}
}

type memoryBody struct {
	Content string `json:"content"`
}

// GetGlobal handles GET /api/memory/global
func (h *MemoryHandler) GetGlobal(c *fiber.Ctx) error {
	content, err := h.memory.GetGlobalMemory()
	if err != nil {
		log.Printf("❌ Failed to get global memory: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get global memory",
		})
	}
	return c.JSON(fiber.Map{"content": content})
}

// SetGlobal handles PUT /api/memory/global
func (h *MemoryHandler) SetGlobal(c *fiber.Ctx) error {
	var body memoryBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.memory.SetGlobalMemory(body.Content); err != nil {
		log.Printf("❌ Failed to set global memory: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save global memory",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetCharacter handles GET /api/memory/character/:actorId
func (h *MemoryHandler) GetCharacter(c *fiber.Ctx) error {
	content, err := h.memory.GetCharacterMemory(c.Params("actorId"))
	if err != nil {
		log.Printf("❌ Failed to get character memory: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get character memory",
		})
	}
	return c.JSON(fiber.Map{"content": content})
}

// SetCharacter handles PUT /api/memory/character/:actorId
func (h *MemoryHandler) SetCharacter(c *fiber.Ctx) error {
	var body memoryBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.memory.SetCharacterMemory(c.Params("actorId"), body.Content); err != nil {
		log.Printf("❌ Failed to set character memory: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save character memory",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetTable handles GET /api/memory/table/:actorId
func (h *MemoryHandler) GetTable(c *fiber.Ctx) error {
	content, err := h.memory.GetMemoryTable(c.Params("actorId"))
	if err != nil {
		log.Printf("❌ Failed to get memory table: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get memory table",
		})
	}
	return c.JSON(fiber.Map{"content": content})
}

// SetTable handles PUT /api/memory/table/:actorId
func (h *MemoryHandler) SetTable(c *fiber.Ctx) error {
	var body memoryBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := h.memory.SetMemoryTable(c.Params("actorId"), body.Content); err != nil {
		log.Printf("❌ Failed to set memory table: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save memory table",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// Refresh handles POST /api/memory/table/:actorId/refresh. A refresh
// already in flight is reported, not queued.
func (h *MemoryHandler) Refresh(c *fiber.Ctx) error {
	actorID := c.Params("actorId")
	started := h.refresher.Trigger(c.Context(), actorID)
	return c.JSON(fiber.Map{
		"started":  started,
		"inFlight": !started,
	})
}

// SetMusic handles PUT /api/memory/music
func (h *MemoryHandler) SetMusic(c *fiber.Ctx) error {
	var music models.MusicFact
	if err := c.BodyParser(&music); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	var fact *models.MusicFact
	if music.Song != "" {
		fact = &music
	}
	if err := h.memory.SetMusicNow(fact); err != nil {
		log.Printf("❌ Failed to set music fact: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save music fact",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
