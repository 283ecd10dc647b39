package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"lumichat/internal/config"
)

// AdminMiddleware gates the sync-key admin endpoints behind the
// server-side admin token. When no token is configured the endpoints
// are disabled outright.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.AdminToken == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin endpoints are disabled",
			})
		}

		token := c.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin token",
			})
		}

		return c.Next()
	}
}
