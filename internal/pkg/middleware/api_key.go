package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/eduka-ec/certflow/internal/pkg/env"
)

// APIKeyAuthMiddleware authenticates requests carrying the shared operator
// API key. The key comes from API_KEY; when it is unset, development lets
// everything through and any other environment rejects all requests.
func APIKeyAuthMiddleware() fiber.Handler {
	configured := env.GetEnv("API_KEY", "")
	if configured == "" {
		if env.IsDev() {
			log.Warn("[Middleware] API_KEY not set, operator endpoints are unprotected (dev)")
			return func(c *fiber.Ctx) error {
				return c.Next()
			}
		}
		log.Error("[Middleware] API_KEY not set, rejecting all operator requests")
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "API key not configured"})
		}
	}

	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(configured)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}
		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}
	auth := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
