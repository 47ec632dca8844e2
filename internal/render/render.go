// Package render writes the JSON envelope every API response uses.
package render

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/params"
)

const errorDomain = "kadmin"

type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Errors  []APIErrorDetail `json:"errors,omitempty"`
}

type APIErrorDetail struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

var kindStatus = map[apperror.Kind]int{
	apperror.Internal:          fiber.StatusInternalServerError,
	apperror.Unauthenticated:   fiber.StatusUnauthorized,
	apperror.Forbidden:         fiber.StatusForbidden,
	apperror.NotFound:          fiber.StatusNotFound,
	apperror.InvalidTransition: fiber.StatusConflict,
	apperror.Validation:        fiber.StatusUnprocessableEntity,
	apperror.Conflict:          fiber.StatusConflict,
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind apperror.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func NewDataResponse(data any) APIResponse {
	return APIResponse{APIVersion: params.APIVersion, Data: data}
}

func NewErrorResponse(code int, message string, details ...APIErrorDetail) APIResponse {
	return APIResponse{
		APIVersion: params.APIVersion,
		Error: &APIErrorInfo{
			Code:    code,
			Message: message,
			Errors:  details,
		},
	}
}

func RenderData(ctx *fiber.Ctx, status int, data any) error {
	return ctx.Status(status).JSON(NewDataResponse(data))
}

func RenderOK(ctx *fiber.Ctx, data any) error {
	return RenderData(ctx, fiber.StatusOK, data)
}

// RenderError writes err as an error envelope. Internal errors are logged and
// replaced with a generic message so storage details never reach the client.
func RenderError(ctx *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return ctx.Status(fiberErr.Code).JSON(NewErrorResponse(fiberErr.Code, fiberErr.Message))
	}

	appErr := apperror.As(err)
	status := StatusOf(appErr.Kind)
	if appErr.Kind == apperror.Internal {
		slog.Error("Unhandled error", "method", ctx.Method(), "path", ctx.Path(), "error", err)
		appErr = apperror.ErrInternal
	}
	return ctx.Status(status).JSON(NewErrorResponse(status, appErr.Message, APIErrorDetail{
		Domain:  errorDomain,
		Reason:  appErr.Code,
		Message: appErr.Message,
	}))
}

func RenderBadRequest(ctx *fiber.Ctx, message string) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(NewErrorResponse(fiber.StatusBadRequest, message))
}
