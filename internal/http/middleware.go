package http

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"fathom/internal/config"
)

// authMiddleware validates the Authorization: Bearer <key> header
// against the single configured API key.
func authMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Auth.Enabled {
			return c.Next()
		}

		rawAuth := c.Get("Authorization")
		if rawAuth == "" || !strings.HasPrefix(rawAuth, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error: "missing Authorization Bearer token",
			})
		}

		token := strings.TrimSpace(strings.TrimPrefix(rawAuth, "Bearer "))
		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Auth.APIKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error: "invalid API key",
			})
		}
		return c.Next()
	}
}
