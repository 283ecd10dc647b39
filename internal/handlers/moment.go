package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"lumichat/internal/services"
)

// MomentHandler handles the moment generation endpoints
type MomentHandler struct {
	service *services.MomentService
}

// NewMomentHandler creates a new moment handler
func NewMomentHandler(service *services.MomentService) *MomentHandler {
	return &MomentHandler{service: service}
}

type momentRequest struct {
	ActorID string `json:"actorId"`
	Content string `json:"content"`
}

// Generate handles POST /api/moments/generate
func (h *MomentHandler) Generate(c *fiber.Ctx) error {
	var req momentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ActorID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "actorId is required",
		})
	}

	moment, err := h.service.GenerateMoment(c.Context(), req.ActorID)
	if err != nil {
		log.Printf("❌ Moment generation failed for actor %s: %v", req.ActorID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Moment generation failed",
			"hint":  services.Hint(err),
		})
	}
	return c.JSON(moment)
}

// Comments handles POST /api/moments/comments
func (h *MomentHandler) Comments(c *fiber.Ctx) error {
	var req momentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ActorID == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "actorId and content are required",
		})
	}

	bundle, err := h.service.GenerateComments(c.Context(), req.ActorID, req.Content)
	if err != nil {
		log.Printf("❌ Moment comments failed for actor %s: %v", req.ActorID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Moment comment generation failed",
			"hint":  services.Hint(err),
		})
	}
	return c.JSON(bundle)
}
