package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// IdentityRequired extracts the acting participant from the X-Actor-ID
// header. Authentication proper happens at the gateway in front of this
// service; here only the identity of the actor is threaded through.
func IdentityRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actorID := strings.TrimSpace(c.Get("X-Actor-ID"))
		if actorID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing X-Actor-ID header",
			})
		}

		c.Locals("actor_id", actorID)

		return c.Next()
	}
}
