package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/render"
)

func ErrorHandler(ctx *fiber.Ctx, err error) error {
	return render.RenderError(ctx, err)
}
