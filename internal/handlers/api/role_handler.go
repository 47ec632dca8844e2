package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/render"
	"github.com/khanghh/kadmin/model"
)

var errUnknownPermission = apperror.New(apperror.Validation, "UNKNOWN_PERMISSION", "unknown permission")

type RoleHandler struct {
	roleService *rbac.RoleService
}

func (h *RoleHandler) GetRoles(ctx *fiber.Ctx) error {
	roles, err := h.roleService.ListRoles(ctx.Context(), middlewares.GetActor(ctx))
	if err != nil {
		return err
	}
	items := make([]roleInfo, 0, len(roles))
	for _, role := range roles {
		items = append(items, newRoleInfo(role))
	}
	return render.RenderOK(ctx, fiber.Map{"items": items})
}

func (h *RoleHandler) PostRole(ctx *fiber.Ctx) error {
	var req createRoleRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	role, err := h.roleService.CreateRole(ctx.Context(), middlewares.GetActor(ctx), req.Name, req.Description)
	if err != nil {
		return err
	}
	return render.RenderData(ctx, fiber.StatusCreated, newRoleInfo(role))
}

func (h *RoleHandler) DeleteRole(ctx *fiber.Ctx) error {
	roleID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	if err := h.roleService.DeleteRole(ctx.Context(), middlewares.GetActor(ctx), roleID); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *RoleHandler) PostMember(ctx *fiber.Ctx) error {
	roleID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var req roleMemberRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	identityID, err := optionalID(req.IdentityID, 0)
	if err != nil || identityID == 0 {
		return apperror.ErrNotFound
	}
	if err := h.roleService.AssignRole(ctx.Context(), middlewares.GetActor(ctx), identityID, roleID); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *RoleHandler) DeleteMember(ctx *fiber.Ctx) error {
	roleID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	identityID, err := paramID(ctx, "identityId")
	if err != nil {
		return err
	}
	if err := h.roleService.UnassignRole(ctx.Context(), middlewares.GetActor(ctx), identityID, roleID); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *RoleHandler) PostPermission(ctx *fiber.Ctx) error {
	roleID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	var req rolePermissionRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}
	perm, ok := model.ParsePermission(req.Permission)
	if !ok {
		return errUnknownPermission
	}
	if err := h.roleService.GrantPermission(ctx.Context(), middlewares.GetActor(ctx), roleID, perm); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (h *RoleHandler) DeletePermission(ctx *fiber.Ctx) error {
	roleID, err := paramID(ctx, "id")
	if err != nil {
		return err
	}
	perm, ok := model.ParsePermission(ctx.Params("permission"))
	if !ok {
		return errUnknownPermission
	}
	if err := h.roleService.RevokePermission(ctx.Context(), middlewares.GetActor(ctx), roleID, perm); err != nil {
		return err
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}

func NewRoleHandler(roleService *rbac.RoleService) *RoleHandler {
	return &RoleHandler{roleService: roleService}
}
