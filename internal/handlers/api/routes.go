package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/alerts"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/middlewares"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/sessions"
	"github.com/khanghh/kadmin/internal/twofactor"
	"github.com/khanghh/kadmin/internal/users"
	"github.com/khanghh/kadmin/internal/workflow"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
)

type Services struct {
	Authorizer middlewares.Authorizer
	Users      *users.UserService
	Sessions   *sessions.SessionService
	TwoFactor  *twofactor.TwoFactorService
	Workflow   *workflow.Engine
	Audit      *audit.AuditService
	Roles      *rbac.RoleService
	Alerts     *alerts.Service
}

type RouteConfig struct {
	Cookie         CookieConfig
	InternalSecret string
	LimiterStorage fiber.Storage
}

func SetupRoutes(router fiber.Router, svc Services, cfg RouteConfig) {
	var (
		authHandler      = NewAuthHandler(svc.Users, cfg.Cookie)
		identityHandler  = NewIdentityHandler(svc.Users)
		sessionHandler   = NewSessionHandler(svc.Sessions)
		documentHandler  = NewDocumentHandler(svc.Workflow)
		twoFactorHandler = NewTwoFactorHandler(svc.TwoFactor)
		auditHandler     = NewAuditHandler(svc.Audit)
		roleHandler      = NewRoleHandler(svc.Roles)
		alertHandler     = NewAlertHandler(svc.Alerts)
	)

	authCfg := middlewares.AuthConfig{Authorizer: svc.Authorizer, CookieName: cfg.Cookie.Name}
	requireAuth := middlewares.RequireAuth(authCfg)
	requirePerm := func(perm model.PermissionID) fiber.Handler {
		return middlewares.RequirePermission(authCfg, perm)
	}

	internal := router.Group("/internal")
	internal.Post("/sessions/validate",
		middlewares.InternalSecret(cfg.InternalSecret),
		middlewares.RateLimit(cfg.LimiterStorage, "validate", params.InternalValidateRateLimit),
		sessionHandler.PostValidate,
	)

	api := router.Group("/api")
	api.Post("/auth/login", middlewares.RateLimit(cfg.LimiterStorage, "login", params.LoginRateLimit), authHandler.PostLogin)
	api.Post("/auth/logout", requireAuth, authHandler.PostLogout)

	api.Get("/me", requireAuth, identityHandler.GetMe)
	api.Post("/account/password", requireAuth, identityHandler.PostChangePassword)
	api.Post("/identities", requireAuth, identityHandler.PostIdentity)
	api.Get("/identities/:id", requireAuth, identityHandler.GetIdentity)
	api.Post("/identities/:id/deactivate", requireAuth, identityHandler.PostDeactivate)

	api.Get("/sessions", requireAuth, sessionHandler.GetSessions)
	api.Post("/sessions/revoke-all", requireAuth, sessionHandler.PostRevokeAll)
	api.Delete("/sessions/:id", requireAuth, sessionHandler.DeleteSession)

	api.Post("/documents", requireAuth, documentHandler.PostDocument)
	api.Get("/documents/:id", requirePerm(model.PermDocumentView), documentHandler.GetDocument)
	api.Post("/documents/:id/actions/:action", requireAuth, documentHandler.PostAction)

	api.Get("/mfa", requireAuth, twoFactorHandler.GetStatus)
	api.Post("/mfa/enroll", requireAuth, twoFactorHandler.PostEnroll)
	api.Post("/mfa/enroll/confirm", requireAuth, twoFactorHandler.PostEnrollConfirm)
	api.Post("/mfa/verify", requireAuth, twoFactorHandler.PostVerify)
	api.Post("/mfa/backup-codes", requireAuth, twoFactorHandler.PostBackupCodes)
	api.Post("/mfa/disable", requireAuth, twoFactorHandler.PostDisable)

	api.Get("/audit", requirePerm(model.PermAuditView), auditHandler.GetAuditLogs)
	api.Get("/audit/verify", requirePerm(model.PermAuditView), auditHandler.GetVerify)
	api.Post("/audit/cleanup", requirePerm(model.PermAuditCleanup), auditHandler.PostCleanup)

	api.Get("/roles", requirePerm(model.PermRoleManage), roleHandler.GetRoles)
	api.Post("/roles", requirePerm(model.PermRoleManage), roleHandler.PostRole)
	api.Delete("/roles/:id", requirePerm(model.PermRoleManage), roleHandler.DeleteRole)
	api.Post("/roles/:id/members", requirePerm(model.PermRoleManage), roleHandler.PostMember)
	api.Delete("/roles/:id/members/:identityId", requirePerm(model.PermRoleManage), roleHandler.DeleteMember)
	api.Post("/roles/:id/permissions", requirePerm(model.PermRoleManage), roleHandler.PostPermission)
	api.Delete("/roles/:id/permissions/:permission", requirePerm(model.PermRoleManage), roleHandler.DeletePermission)

	api.Get("/alerts", requireAuth, alertHandler.GetAlerts)
	api.Post("/alerts/:id/read", requireAuth, alertHandler.PostRead)
}
