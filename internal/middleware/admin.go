package middleware

import (
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/dto"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"github.com/gofiber/fiber/v2"
)

// RequireRoles lets the request through only when the token role is one of
// roles. It must run after JWTProtected.
func RequireRoles(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := CurrentActor(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.Envelope{
				Success: false, Message: "Not authorized to access this route",
			})
		}

		if !models.IsMember(roles, actor.Role) {
			return c.Status(fiber.StatusForbidden).JSON(dto.Envelope{
				Success: false, Message: "User role " + actor.Role + " is not authorized to access this route",
			})
		}

		c.Locals("user_id", actor.ID.String())
		return c.Next()
	}
}

// AdminRequired is RequireRoles for admins only.
func AdminRequired() fiber.Handler {
	return RequireRoles(models.RoleAdmin)
}
