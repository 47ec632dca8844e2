package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/spf13/cast"
)

// parseBody decodes the request body into out. An empty body leaves out untouched.
func parseBody(ctx *fiber.Ctx, out any) error {
	if len(ctx.Body()) == 0 {
		return nil
	}
	if err := ctx.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return nil
}

// paramID parses a numeric path parameter. Malformed ids cannot name an existing
// resource, so they are reported as not found.
func paramID(ctx *fiber.Ctx, name string) (uint, error) {
	id, err := cast.ToUintE(ctx.Params(name))
	if err != nil || id == 0 {
		return 0, apperror.ErrNotFound
	}
	return id, nil
}

// optionalID parses an id from a query or body field, returning fallback when empty.
func optionalID(value string, fallback uint) (uint, error) {
	if value == "" {
		return fallback, nil
	}
	id, err := cast.ToUintE(value)
	if err != nil || id == 0 {
		return 0, apperror.ErrNotFound
	}
	return id, nil
}
