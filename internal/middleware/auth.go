package middleware

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/config"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/dto"
	"github.com/ahmetcoskunkizilkaya/civictrack/internal/services"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// userKey is the Locals key the JWT middleware stores the token under.
const userKey = "user"

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ContextKey: userKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.Envelope{
				Success: false, Message: "Not authorized to access this route",
			})
		},
	})
}

// CurrentActor reads the authenticated user from the verified JWT claims.
func CurrentActor(c *fiber.Ctx) (services.Actor, error) {
	token, ok := c.Locals(userKey).(*jwt.Token)
	if !ok || token == nil {
		return services.Actor{}, errors.New("invalid token in context")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return services.Actor{}, errors.New("invalid claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return services.Actor{}, errors.New("missing sub claim")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return services.Actor{}, err
	}

	role, _ := claims["role"].(string)
	name, _ := claims["name"].(string)
	return services.Actor{ID: id, Role: role, Name: name}, nil
}
