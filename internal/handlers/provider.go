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

// ProviderHandler handles API config CRUD and the call statistics view
type ProviderHandler struct {
	providers *services.ProviderService
	stats     *services.StatsService
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(providers *services.ProviderService, stats *services.StatsService) *ProviderHandler {
	return &ProviderHandler{providers: providers, stats: stats}
}

// List handles GET /api/providers. API keys are masked on the way out.
func (h *ProviderHandler) List(c *fiber.Ctx) error {
	configs, err := h.providers.List()
	if err != nil {
		log.Printf("❌ Failed to list providers: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list providers",
		})
	}
	for _, cfg := range configs {
		maskKeys(cfg)
	}
	return c.JSON(fiber.Map{"providers": configs})
}

// Create handles POST /api/providers
func (h *ProviderHandler) Create(c *fiber.Ctx) error {
	var cfg models.APIConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	if err := h.providers.Create(&cfg); err != nil {
		log.Printf("❌ Failed to create provider: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create provider",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(&cfg)
}

// Update handles PUT /api/providers/:id
func (h *ProviderHandler) Update(c *fiber.Ctx) error {
	var cfg models.APIConfig
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	cfg.ID = c.Params("id")

	if err := h.providers.Update(&cfg); err != nil {
		log.Printf("❌ Failed to update provider: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update provider",
		})
	}
	return c.JSON(&cfg)
}

// Delete handles DELETE /api/providers/:id
func (h *ProviderHandler) Delete(c *fiber.Ctx) error {
	if err := h.providers.Delete(c.Params("id")); err != nil {
		log.Printf("❌ Failed to delete provider: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete provider",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// Activate handles POST /api/providers/:id/activate
func (h *ProviderHandler) Activate(c *fiber.Ctx) error {
	if err := h.providers.SetActive(c.Params("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Provider not found",
			})
		}
		log.Printf("❌ Failed to activate provider: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate provider",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// Stats handles GET /api/providers/:id/stats. The summary covers the
// rolling 24 hour window, grouped per key.
func (h *ProviderHandler) Stats(c *fiber.Ctx) error {
	summaries, err := h.stats.RecentCounts(c.Params("id"))
	if err != nil {
		log.Printf("❌ Failed to load call stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load call stats",
		})
	}
	return c.JSON(fiber.Map{"keys": summaries})
}

// maskKeys hides the key material, keeping only a recognisable tail.
func maskKeys(cfg *models.APIConfig) {
	for i, key := range cfg.APIKeys {
		if len(key) > 4 {
			cfg.APIKeys[i] = "****" + key[len(key)-4:]
		} else if key != "" {
			cfg.APIKeys[i] = "****"
		}
	}
}
