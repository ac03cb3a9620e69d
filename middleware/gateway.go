// middleware/gateway.go
package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware rejects any request that does not carry the shared
// token the Gateway attaches before proxying to the ladder service. Every
// route sits behind it; the engine never sees an unauthenticated call.
func GatewayAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("LADDER_SERVICE_TOKEN")
	if expectedToken == "" {
		log.Fatal("❌ LADDER_SERVICE_TOKEN is not set — refusing to serve ladder routes unauthenticated")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [GATEWAY_AUTH] No Authorization header on %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// Accept "Bearer <token>" or the bare token.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if token != expectedToken {
			log.Printf("❌ [GATEWAY_AUTH] Token mismatch on %s (prefix: %.10s...)", c.Path(), token)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}

		return c.Next()
	}
}
