package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// OpsKeyMiddleware guards operator routes with the X-Ops-Key header. An unset
// key disables the routes.
func OpsKeyMiddleware(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return fiber.NewError(fiber.StatusNotFound, "not found")
		}
		if subtle.ConstantTimeCompare([]byte(c.Get("X-Ops-Key")), []byte(key)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid ops key")
		}
		return c.Next()
	}
}
