package middlewares

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/params"
)

// InternalSecret guards service-to-service routes with a shared secret header.
// The routes answer 404 when no secret is configured.
func InternalSecret(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if secret == "" {
			return fiber.ErrNotFound
		}
		given := ctx.Get(params.InternalSecretHeader)
		if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			return apperror.ErrUnauthenticated
		}
		return ctx.Next()
	}
}
