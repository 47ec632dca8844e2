package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderErr(t *testing.T, err error) (int, APIResponse) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(ctx *fiber.Ctx) error {
		return RenderError(ctx, err)
	})
	resp, testErr := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, testErr)
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)
	var out APIResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out
}

func TestRenderErrorStatusByKind(t *testing.T) {
	cases := map[error]int{
		apperror.ErrUnauthenticated:   fiber.StatusUnauthorized,
		apperror.ErrForbidden:         fiber.StatusForbidden,
		apperror.ErrNotFound:          fiber.StatusNotFound,
		apperror.ErrInvalidTransition: fiber.StatusConflict,
		apperror.ErrValidation:        fiber.StatusUnprocessableEntity,
		apperror.ErrConflict:          fiber.StatusConflict,
	}
	for err, status := range cases {
		code, out := renderErr(t, fmt.Errorf("wrapped: %w", err))
		assert.Equal(t, status, code, err.Error())
		require.NotNil(t, out.Error)
		require.Len(t, out.Error.Errors, 1)
		assert.Equal(t, apperror.As(err).Code, out.Error.Errors[0].Reason)
	}
}

func TestRenderErrorHidesInternalDetails(t *testing.T) {
	code, out := renderErr(t, errors.New("dial tcp 10.0.0.3:3306: connection refused"))
	assert.Equal(t, fiber.StatusInternalServerError, code)
	require.NotNil(t, out.Error)
	assert.Equal(t, apperror.ErrInternal.Message, out.Error.Message)
	assert.Equal(t, "INTERNAL", out.Error.Errors[0].Reason)
}

func TestRenderErrorKeepsFiberStatus(t *testing.T) {
	code, out := renderErr(t, fiber.ErrMethodNotAllowed)
	assert.Equal(t, fiber.StatusMethodNotAllowed, code)
	assert.Equal(t, fiber.StatusMethodNotAllowed, out.Error.Code)
}
