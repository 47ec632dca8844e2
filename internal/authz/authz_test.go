package authz

import (
	"context"
	"testing"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/sessions"
	"github.com/khanghh/kadmin/internal/testutil"
	"github.com/khanghh/kadmin/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirePermission(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	editor := testutil.CreateIdentity(t, db, tenant.ID, "ed@acme.io", "", model.PermDocumentView, model.PermDocumentEdit)
	resolver := rbac.NewResolver(db)
	auditService := audit.NewAuditService(db, resolver, nil, audit.Config{MasterKey: "k"})
	sessionService := sessions.NewSessionService(db, auditService, resolver, sessions.Config{MasterKey: "k"})
	authorizer := NewAuthorizer(sessionService, resolver)

	session, token, err := sessionService.CreateSession(ctx, db, editor, "cli", "127.0.0.1")
	require.NoError(t, err)

	principal, err := authorizer.RequirePermission(ctx, token, model.PermDocumentEdit)
	require.NoError(t, err)
	assert.Equal(t, editor.ID, principal.Identity.ID)
	assert.Equal(t, session.ID, principal.Session.ID)
	assert.Equal(t, audit.Actor{IdentityID: editor.ID, TenantID: tenant.ID, IP: "1.2.3.4"}, principal.Actor("1.2.3.4"))

	_, err = authorizer.RequirePermission(ctx, token, model.PermDocumentApprove)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = authorizer.RequireAuth(ctx, "")
	assert.Equal(t, apperror.Unauthenticated, apperror.KindOf(err))

	require.NoError(t, sessionService.Revoke(ctx, principal.Actor(""), session.ID))
	_, err = authorizer.RequirePermission(ctx, token, model.PermDocumentEdit)
	assert.ErrorIs(t, err, sessions.ErrSessionRevoked)
	assert.Equal(t, apperror.Unauthenticated, apperror.KindOf(err))
}
