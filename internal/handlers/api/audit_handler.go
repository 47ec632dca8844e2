package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/spf13/cast"
)

type AuditHandler struct {
	auditService *audit.AuditService
}

func (h *AuditHandler) GetAuditLogs(ctx *fiber.Ctx) error {
	filter := audit.Filter{
		Action: ctx.Query("action"),
		Limit:  cast.ToInt(ctx.Query("limit")),
		Offset: cast.ToInt(ctx.Query("offset")),
	}
	if since := ctx.Query("since"); since != "" {
		ts, err := cast.ToTimeE(since)
		if err != nil {
			return render.RenderBadRequest(ctx, "Invalid since parameter")
		}
		filter.Since = ts
	}
	records, err := h.auditService.List(ctx.Context(), middlewares.GetActor(ctx), filter)
	if err != nil {
		return err
	}
	items := make([]auditRecord, 0, len(records))
	for _, record := range records {
		items = append(items, newAuditRecord(record))
	}
	return render.RenderOK(ctx, fiber.Map{"items": items})
}

func (h *AuditHandler) GetVerify(ctx *fiber.Ctx) error {
	report, err := h.auditService.VerifyChain(ctx.Context(), middlewares.GetActor(ctx))
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, report)
}

func (h *AuditHandler) PostCleanup(ctx *fiber.Ctx) error {
	var req cleanupRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	olderThan := time.Duration(req.OlderThanDays) * 24 * time.Hour
	deleted, err := h.auditService.Cleanup(ctx.Context(), middlewares.GetActor(ctx), olderThan)
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, fiber.Map{"deleted": deleted})
}

func NewAuditHandler(auditService *audit.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}
