package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/khanghh/kadmin/internal/sessions"
)

type SessionHandler struct {
	sessionService *sessions.SessionService
}

func (h *SessionHandler) GetSessions(ctx *fiber.Ctx) error {
	principal := middlewares.GetPrincipal(ctx)
	identityID, err := optionalID(ctx.Query("identityId"), principal.Identity.ID)
	if err != nil {
		return err
	}
	list, err := h.sessionService.ListSessions(ctx.Context(), middlewares.GetActor(ctx), identityID)
	if err != nil {
		return err
	}
	items := make([]sessionInfo, 0, len(list))
	for _, session := range list {
		items = append(items, newSessionInfo(session, principal.Session.ID))
	}
	return render.RenderOK(ctx, fiber.Map{"items": items})
}

func (h *SessionHandler) DeleteSession(ctx *fiber.Ctx) error {
	if err := h.sessionService.Revoke(ctx.Context(), middlewares.GetActor(ctx), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *SessionHandler) PostRevokeAll(ctx *fiber.Ctx) error {
	var req revokeAllRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	principal := middlewares.GetPrincipal(ctx)
	identityID, err := optionalID(req.IdentityID, principal.Identity.ID)
	if err != nil {
		return err
	}
	revoked, err := h.sessionService.RevokeAll(ctx.Context(), middlewares.GetActor(ctx), identityID)
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, fiber.Map{"revoked": revoked})
}

// PostValidate answers other services asking whether a session is usable. Invalid
// sessions are a normal answer, not an error.
func (h *SessionHandler) PostValidate(ctx *fiber.Ctx) error {
	var req validateSessionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	sessionID := req.SessionID
	if req.Token != "" {
		parsed, err := h.sessionService.ParseToken(req.Token)
		if err != nil {
			return render.RenderOK(ctx, &sessions.Validation{Reason: sessions.ReasonSessionNotFound})
		}
		sessionID = parsed
	}
	if sessionID == "" {
		return render.RenderBadRequest(ctx, "sessionId or token is required")
	}
	validation, err := h.sessionService.ValidateSession(ctx.Context(), sessionID)
	if err != nil {
		return err
	}
	return render.RenderOK(ctx, validation)
}

func NewSessionHandler(sessionService *sessions.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}
