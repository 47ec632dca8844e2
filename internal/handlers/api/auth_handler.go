package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/khanghh/kadmin/internal/users"
)

type CookieConfig struct {
	Name   string
	Secure bool
}

type AuthHandler struct {
	userService *users.UserService
	cookie      CookieConfig
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	deviceInfo := req.DeviceInfo
	if deviceInfo == "" {
		deviceInfo = ctx.Get(fiber.HeaderUserAgent)
	}

	result, err := h.userService.Login(ctx.Context(), users.LoginOptions{
		TenantSlug: req.Tenant,
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: deviceInfo,
		IP:         ctx.IP(),
	})
	if err != nil {
		return err
	}

	ctx.Cookie(&fiber.Cookie{
		Name:     h.cookie.Name,
		Value:    result.Token,
		Expires:  result.Session.ExpiresAt,
		HTTPOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return render.RenderOK(ctx, loginResponse{
		Identity:    newIdentityInfo(result.Identity),
		SessionID:   result.Session.ID,
		Token:       result.Token,
		ExpiresAt:   result.Session.ExpiresAt,
		MFARequired: result.MFARequired,
	})
}

func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	principal := middlewares.GetPrincipal(ctx)
	if err := h.userService.Logout(ctx.Context(), middlewares.GetActor(ctx), principal.Session.ID); err != nil {
		return err
	}
	ctx.ClearCookie(h.cookie.Name)
	return ctx.SendStatus(fiber.StatusNoContent)
}

func NewAuthHandler(userService *users.UserService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		cookie:      cookie,
	}
}
