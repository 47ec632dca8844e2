package rbac

import (
	"context"
	"testing"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/testutil"
	"github.com/khanghh/kadmin/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnionOfRoles(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	alice := testutil.CreateIdentity(t, db, tenant.ID, "alice@acme.io", "", model.PermDocumentView)
	approvers := testutil.CreateRole(t, db, tenant.ID, "approvers", model.PermDocumentView, model.PermDocumentApprove)
	testutil.AssignRole(t, db, alice, approvers)

	set, err := NewResolver(db).Resolve(ctx, alice.ID, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.PermissionID{model.PermDocumentView, model.PermDocumentApprove}, set.IDs())
	assert.Equal(t, []string{"document.approve", "document.view"}, set.Codes())
	assert.True(t, set.HasCode("document.approve"))
	assert.False(t, set.Has(model.PermDocumentManage))
}

func TestResolveIgnoresForeignTenantRoles(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	acme := testutil.CreateTenant(t, db, "acme")
	globex := testutil.CreateTenant(t, db, "globex")
	alice := testutil.CreateIdentity(t, db, acme.ID, "alice@acme.io", "")
	foreign := testutil.CreateRole(t, db, globex.ID, "admins", model.PermRoleManage)
	// an inconsistent assignment must still not grant anything
	require.NoError(t, db.Create(&model.IdentityRole{IdentityID: alice.ID, RoleID: foreign.ID, TenantID: acme.ID}).Error)

	set, err := NewResolver(db).Resolve(ctx, alice.ID, acme.ID)
	require.NoError(t, err)
	assert.Empty(t, set.IDs())

	set, err = NewResolver(db).Resolve(ctx, alice.ID, globex.ID)
	require.NoError(t, err)
	assert.Empty(t, set.IDs())
}

func TestResolveInactiveIdentityHasNoPermissions(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	alice := testutil.CreateIdentity(t, db, tenant.ID, "alice@acme.io", "", model.PermDocumentView)
	require.NoError(t, db.Model(alice).Update("active", false).Error)

	ok, err := NewResolver(db).HasPermission(ctx, alice.ID, tenant.ID, model.PermDocumentView)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveSeesChangesImmediately(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	admin := testutil.CreateIdentity(t, db, tenant.ID, "admin@acme.io", "", model.PermRoleManage)
	bob := testutil.CreateIdentity(t, db, tenant.ID, "bob@acme.io", "")
	resolver := NewResolver(db)
	roles := NewRoleService(db, resolver, audit.NewAuditService(db, resolver, nil, audit.Config{MasterKey: "k"}))
	adminActor := audit.Actor{IdentityID: admin.ID, TenantID: tenant.ID}
	bobActor := audit.Actor{IdentityID: bob.ID, TenantID: tenant.ID}

	assert.ErrorIs(t, resolver.Require(ctx, bobActor, model.PermAuditView), apperror.ErrForbidden)

	role, err := roles.CreateRole(ctx, adminActor, "auditors", "")
	require.NoError(t, err)
	require.NoError(t, roles.GrantPermission(ctx, adminActor, role.ID, model.PermAuditView))
	require.NoError(t, roles.AssignRole(ctx, adminActor, bob.ID, role.ID))
	assert.NoError(t, resolver.Require(ctx, bobActor, model.PermAuditView))

	require.NoError(t, roles.RevokePermission(ctx, adminActor, role.ID, model.PermAuditView))
	assert.ErrorIs(t, resolver.Require(ctx, bobActor, model.PermAuditView), apperror.ErrForbidden)
}
