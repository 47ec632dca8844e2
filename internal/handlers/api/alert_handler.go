package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/alerts"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/spf13/cast"
)

type AlertHandler struct {
	alertService *alerts.Service
}

func (h *AlertHandler) GetAlerts(ctx *fiber.Ctx) error {
	actor := middlewares.GetActor(ctx)
	identityID, err := optionalID(ctx.Query("identityId"), actor.IdentityID)
	if err != nil {
		return err
	}
	list, err := h.alertService.ListAlerts(ctx.Context(), actor, identityID, cast.ToBool(ctx.Query("unread")), cast.ToInt(ctx.Query("limit")))
	if err != nil {
		return err
	}
	items := make([]alertInfo, 0, len(list))
	for _, alert := range list {
		items = append(items, newAlertInfo(alert))
	}
	return render.RenderOK(ctx, fiber.Map{"items": items})
}

func (h *AlertHandler) PostRead(ctx *fiber.Ctx) error {
	alertID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err := h.alertService.MarkRead(ctx.Context(), middlewares.GetActor(ctx), alertID); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func NewAlertHandler(alertService *alerts.Service) *AlertHandler {
	return &AlertHandler{alertService: alertService}
}
