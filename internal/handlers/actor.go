package handlers

import (
	"database/sql"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"lumichat/internal/models"
	"lumichat/internal/services"
)

// ActorHandler handles actor CRUD and the user profile
type ActorHandler struct {
	service *services.ActorService
}

// NewActorHandler creates a new actor handler
func NewActorHandler(service *services.ActorService) *ActorHandler {
	return &ActorHandler{service: service}
}

// List handles GET /api/actors
func (h *ActorHandler) List(c *fiber.Ctx) error {
	actors, err := h.service.List()
	if err != nil {
		log.Printf("❌ Failed to list actors: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list actors",
		})
	}
	return c.JSON(fiber.Map{"actors": actors})
}

// Get handles GET /api/actors/:id
func (h *ActorHandler) Get(c *fiber.Ctx) error {
	actor, err := h.service.Get(c.Params("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Actor not found",
			})
		}
		log.Printf("❌ Failed to get actor: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get actor",
		})
	}
	return c.JSON(actor)
}

// Create handles POST /api/actors
func (h *ActorHandler) Create(c *fiber.Ctx) error {
	var actor models.Actor
	if err := c.BodyParser(&actor); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if actor.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Actor name is required",
		})
	}
	if actor.Kind == "" {
		actor.Kind = models.ActorKindIndividual
	}
	if actor.ID == "" {
		actor.ID = uuid.New().String()
	}

	if err := h.service.Create(&actor); err != nil {
		log.Printf("❌ Failed to create actor: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create actor",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(actor)
}

// Update handles PUT /api/actors/:id
func (h *ActorHandler) Update(c *fiber.Ctx) error {
	var actor models.Actor
	if err := c.BodyParser(&actor); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	actor.ID = c.Params("id")

	if err := h.service.Update(&actor); err != nil {
		log.Printf("❌ Failed to update actor: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update actor",
		})
	}
	return c.JSON(actor)
}

// Delete handles DELETE /api/actors/:id
func (h *ActorHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Params("id")); err != nil {
		log.Printf("❌ Failed to delete actor: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete actor",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetProfile handles GET /api/profile
func (h *ActorHandler) GetProfile(c *fiber.Ctx) error {
	profile, err := h.service.GetUserProfile()
	if err != nil {
		log.Printf("❌ Failed to get user profile: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get profile",
		})
	}
	return c.JSON(profile)
}

// SetProfile handles PUT /api/profile
func (h *ActorHandler) SetProfile(c *fiber.Ctx) error {
	var profile models.UserProfile
	if err := c.BodyParser(&profile); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.service.SetUserProfile(profile); err != nil {
		log.Printf("❌ Failed to set user profile: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save profile",
		})
	}
	return c.JSON(profile)
}
