package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/khanghh/kadmin/internal/twofactor"
)

type TwoFactorHandler struct {
	twoFactorService *twofactor.TwoFactorService
}

func (h *TwoFactorHandler) GetStatus(ctx *fiber.Ctx) error {
	identityID := middlewares.GetActor(ctx).IdentityID
	enabled, err := h.twoFactorService.IsEnabled(ctx.Context(), identityID)
	if err != nil {
		return err
	}
	remaining, err := h.twoFactorService.RemainingBackupCodes(ctx.Context(), identityID)
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, fiber.Map{
		"enabled":              enabled,
		"remainingBackupCodes": remaining,
	})
}

func (h *TwoFactorHandler) PostEnroll(ctx *fiber.Ctx) error {
	key, err := h.twoFactorService.BeginEnrollment(ctx.Context(), middlewares.GetActor(ctx))
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, key)
}

func (h *TwoFactorHandler) PostEnrollConfirm(ctx *fiber.Ctx) error {
	var req mfaCodeRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	codes, err := h.twoFactorService.ConfirmEnrollment(ctx.Context(), middlewares.GetActor(ctx), req.Code)
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, backupCodesResponse{BackupCodes: codes})
}

func (h *TwoFactorHandler) PostVerify(ctx *fiber.Ctx) error {
	var req mfaCodeRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	principal := middlewares.GetPrincipal(ctx)
	method, err := h.twoFactorService.VerifyStepUp(ctx.Context(), middlewares.GetActor(ctx), principal.Session.ID, req.Code)
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, fiber.Map{"method": method})
}

func (h *TwoFactorHandler) PostBackupCodes(ctx *fiber.Ctx) error {
	var req mfaCodeRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	codes, err := h.twoFactorService.RegenerateBackupCodes(ctx.Context(), middlewares.GetActor(ctx), req.Code)
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, backupCodesResponse{BackupCodes: codes})
}

func (h *TwoFactorHandler) PostDisable(ctx *fiber.Ctx) error {
	var req mfaDisableRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	if err := h.twoFactorService.Disable(ctx.Context(), middlewares.GetActor(ctx), req.Password, req.Code); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func NewTwoFactorHandler(twoFactorService *twofactor.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{twoFactorService: twoFactorService}
}
