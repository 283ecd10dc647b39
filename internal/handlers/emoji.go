package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"lumichat/internal/models"
	"lumichat/internal/services"
)

// EmojiHandler handles the emoji catalog endpoints
type EmojiHandler struct {
	service *services.EmojiService
}

// NewEmojiHandler creates a new emoji handler
func NewEmojiHandler(service *services.EmojiService) *EmojiHandler {
	return &EmojiHandler{service: service}
}

// List handles GET /api/emojis
func (h *EmojiHandler) List(c *fiber.Ctx) error {
	emojis, err := h.service.List()
	if err != nil {
		log.Printf("❌ Failed to list emojis: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list emojis",
		})
	}
	return c.JSON(fiber.Map{"emojis": emojis})
}

// Upsert handles PUT /api/emojis
func (h *EmojiHandler) Upsert(c *fiber.Ctx) error {
	var emoji models.Emoji
	if err := c.BodyParser(&emoji); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if emoji.Tag == "" || emoji.Meaning == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Emoji tag and meaning are required",
		})
	}

	if err := h.service.Upsert(emoji); err != nil {
		log.Printf("❌ Failed to save emoji %s: %v", emoji.Tag, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save emoji",
		})
	}
	return c.JSON(emoji)
}

// Delete handles DELETE /api/emojis/:tag
func (h *EmojiHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Params("tag")); err != nil {
		log.Printf("❌ Failed to delete emoji: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete emoji",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}
