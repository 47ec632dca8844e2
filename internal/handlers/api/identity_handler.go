package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/khanghh/kadmin/internal/users"
)

type IdentityHandler struct {
	userService *users.UserService
}

func (h *IdentityHandler) GetMe(ctx *fiber.Ctx) error {
	principal := middlewares.GetPrincipal(ctx)
	return render.RenderOK(ctx, fiber.Map{
		"identity":    newIdentityInfo(principal.Identity),
		"sessionId":   principal.Session.ID,
		"mfaVerified": principal.Session.MFAVerified,
		"permissions": principal.Permissions,
	})
}

func (h *IdentityHandler) GetIdentity(ctx *fiber.Ctx) error {
	identityID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	identity, err := h.userService.GetIdentity(ctx.Context(), middlewares.GetActor(ctx), identityID)
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, newIdentityInfo(identity))
}

func (h *IdentityHandler) PostIdentity(ctx *fiber.Ctx) error {
	var req createIdentityRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	identity, err := h.userService.CreateIdentity(ctx.Context(), middlewares.GetActor(ctx), users.CreateIdentityOptions{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		return err
	}
	return render.RenderData(ctx, fiber.StatusCreated, newIdentityInfo(identity))
}

func (h *IdentityHandler) PostDeactivate(ctx *fiber.Ctx) error {
	identityID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err := h.userService.Deactivate(ctx.Context(), middlewares.GetActor(ctx), identityID); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *IdentityHandler) PostChangePassword(ctx *fiber.Ctx) error {
	var req changePasswordRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	principal := middlewares.GetPrincipal(ctx)
	err := h.userService.ChangePassword(ctx.Context(), middlewares.GetActor(ctx), principal.Session.ID, req.OldPassword, req.NewPassword)
	if err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func NewIdentityHandler(userService *users.UserService) *IdentityHandler {
	return &IdentityHandler{userService: userService}
}
