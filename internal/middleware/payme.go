package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/carecircle/internal/services"
)

type paymeRequestID struct {
	ID any `json:"id"`
}

// PaymeAuthMiddleware validates the Payme Basic Authorization header against
// the merchant key. An unset key rejects every request.
func PaymeAuthMiddleware(merchantKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var reqID paymeRequestID
		_ = json.Unmarshal(c.Body(), &reqID)

		if merchantKey == "" {
			return writePaymeAuthError(c, reqID.ID)
		}

		parts := strings.SplitN(c.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Basic") {
			return writePaymeAuthError(c, reqID.ID)
		}

		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			return writePaymeAuthError(c, reqID.ID)
		}

		_, key, found := strings.Cut(string(decoded), ":")
		if !found || subtle.ConstantTimeCompare([]byte(key), []byte(merchantKey)) != 1 {
			return writePaymeAuthError(c, reqID.ID)
		}

		return c.Next()
	}
}

func writePaymeAuthError(c *fiber.Ctx, id any) error {
	info := services.PaymeErrorInvalidAuthorization
	return c.JSON(fiber.Map{
		"error": fiber.Map{
			"code": info.Code,
			"message": fiber.Map{
				"uz": info.Message["uz"],
				"ru": info.Message["ru"],
				"en": info.Message["en"],
			},
			"data": nil,
		},
		"id": id,
	})
}

