package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/carecircle/internal/config"
	"github.com/example/carecircle/internal/models"
	"github.com/example/carecircle/internal/utils"
)

const sessionContextKey = "currentSession"

// AuthMiddleware validates JWT tokens and loads the caller's session into context.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}

		session, err := utils.ParseToken(cfg.JWTSecret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(sessionContextKey, session)
		return c.Next()
	}
}

// RequireRole rejects callers whose session role is not one of roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, ok := GetSession(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
		}
		for _, role := range roles {
			if session.Role == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "role not allowed")
	}
}

// GetSession extracts the authenticated session from context.
func GetSession(c *fiber.Ctx) (utils.Session, bool) {
	session, ok := c.Locals(sessionContextKey).(utils.Session)
	if !ok || session.AccountID == "" {
		return utils.Session{}, false
	}
	return session, true
}

// GetCurrentUserID extracts the authenticated account ID from context.
func GetCurrentUserID(c *fiber.Ctx) (string, bool) {
	session, ok := GetSession(c)
	return session.AccountID, ok
}
