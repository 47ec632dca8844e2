package middlewares

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/authz"
	"github.com/khanghh/kadmin/model"
)

const principalContextKey = "principal"

type Authorizer interface {
	RequireAuth(ctx context.Context, token string) (*authz.Principal, error)
	RequirePermission(ctx context.Context, token string, perm model.PermissionID) (*authz.Principal, error)
}

type AuthConfig struct {
	Authorizer Authorizer
	CookieName string
}

// SessionToken reads the session reference from a bearer Authorization header,
// falling back to the session cookie.
func SessionToken(ctx *fiber.Ctx, cookieName string) string {
	if header := ctx.Get(fiber.HeaderAuthorization); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return ctx.Cookies(cookieName)
}

func RequireAuth(cfg AuthConfig) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		principal, err := cfg.Authorizer.RequireAuth(ctx.Context(), SessionToken(ctx, cfg.CookieName))
		if err != nil {
			return err
		}
		ctx.Locals(principalContextKey, principal)
		return ctx.Next()
	}
}

// RequirePermission authenticates the request unless an earlier middleware already
// did, then checks perm in the identity's tenant.
func RequirePermission(cfg AuthConfig, perm model.PermissionID) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if principal := GetPrincipal(ctx); principal != nil {
			if !principal.Permissions.Has(perm) {
				return apperror.ErrForbidden
			}
			return ctx.Next()
		}
		principal, err := cfg.Authorizer.RequirePermission(ctx.Context(), SessionToken(ctx, cfg.CookieName), perm)
		if err != nil {
			return err
		}
		ctx.Locals(principalContextKey, principal)
		return ctx.Next()
	}
}

// GetPrincipal returns the authenticated principal, or nil on unguarded routes.
func GetPrincipal(ctx *fiber.Ctx) *authz.Principal {
	principal, _ := ctx.Locals(principalContextKey).(*authz.Principal)
	return principal
}

func GetActor(ctx *fiber.Ctx) audit.Actor {
	principal := GetPrincipal(ctx)
	if principal == nil {
		return audit.Actor{IP: ctx.IP()}
	}
	return principal.Actor(ctx.IP())
}
