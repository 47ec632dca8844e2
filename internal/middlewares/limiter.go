package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/khanghh/kadmin/params"
)

// RateLimit allows max requests per client ip in each window. Counters live in
// storage so that every replica shares them when storage is redis.
func RateLimit(storage fiber.Storage, name string, max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: params.RateLimitWindow,
		KeyGenerator: func(ctx *fiber.Ctx) string {
			return params.RateLimitKeyPrefix + name + ":" + ctx.IP()
		},
		LimitReached: func(ctx *fiber.Ctx) error {
			return fiber.ErrTooManyRequests
		},
		Storage: storage,
	})
}
