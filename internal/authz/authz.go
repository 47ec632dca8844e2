// Package authz combines session authentication with permission resolution. Every
// handler that touches protected state goes through RequireAuth or RequirePermission.
package authz

import (
	"context"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/sessions"
	"github.com/khanghh/kadmin/model"
)

// Principal is an authenticated identity with the permissions resolved for this request.
type Principal struct {
	Identity    *model.Identity
	Session     *model.Session
	Permissions *rbac.PermissionSet
}

func (p *Principal) Actor(ip string) audit.Actor {
	return audit.Actor{IdentityID: p.Identity.ID, TenantID: p.Identity.TenantID, IP: ip}
}

type Authorizer struct {
	sessions *sessions.SessionService
	resolver *rbac.Resolver
}

// RequireAuth fails with UNAUTHENTICATED unless token references a usable session.
func (a *Authorizer) RequireAuth(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperror.ErrUnauthenticated
	}
	session, identity, err := a.sessions.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	perms, err := a.resolver.Resolve(ctx, identity.ID, identity.TenantID)
	if err != nil {
		return nil, err
	}
	return &Principal{Identity: identity, Session: session, Permissions: perms}, nil
}

// RequirePermission fails with UNAUTHENTICATED for an unusable session and with
// FORBIDDEN when the identity lacks perm in its tenant.
func (a *Authorizer) RequirePermission(ctx context.Context, token string, perm model.PermissionID) (*Principal, error) {
	principal, err := a.RequireAuth(ctx, token)
	if err != nil {
		return nil, err
	}
	if !principal.Permissions.Has(perm) {
		return nil, apperror.ErrForbidden
	}
	return principal, nil
}

func NewAuthorizer(sessionService *sessions.SessionService, resolver *rbac.Resolver) *Authorizer {
	return &Authorizer{
		sessions: sessionService,
		resolver: resolver,
	}
}
