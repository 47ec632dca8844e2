package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/khanghh/kadmin/internal/workflow"
	"github.com/khanghh/kadmin/model"
)

type DocumentHandler struct {
	engine *workflow.Engine
}

func (h *DocumentHandler) renderDocument(ctx *fiber.Ctx, status int, doc *model.Document) error {
	principal := middlewares.GetPrincipal(ctx)
	actions := workflow.AvailableActions(doc, principal.Permissions, time.Now())
	return render.RenderData(ctx, status, newDocumentInfo(doc, actions))
}

func (h *DocumentHandler) PostDocument(ctx *fiber.Ctx) error {
	var req createDocumentRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	doc, err := h.engine.CreateDocument(ctx.Context(), middlewares.GetActor(ctx), req.Title, req.ExpiresAt)
	if err != nil {
		return err
	}
	return h.renderDocument(ctx, fiber.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocument(ctx *fiber.Ctx) error {
	documentID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	doc, err := h.engine.GetDocument(ctx.Context(), middlewares.GetActor(ctx), documentID)
	if err != nil {
		return err
	}
	return h.renderDocument(ctx, fiber.StatusOK, doc)
}

func (h *DocumentHandler) PostAction(ctx *fiber.Ctx) error {
	documentID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	action, err := workflow.ParseAction(ctx.Params("action"))
	if err != nil {
		return workflow.ErrUnknownAction
	}
	var req documentActionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	actor := middlewares.GetActor(ctx)
	doc, err := h.engine.ExecuteAction(ctx.Context(), documentID, actor.TenantID, action, actor, req.Comment)
	if err != nil {
		return err
	}
	return h.renderDocument(ctx, fiber.StatusOK, doc)
}

func NewDocumentHandler(engine *workflow.Engine) *DocumentHandler {
	return &DocumentHandler{engine: engine}
}
