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
	"gorm.io/gorm"
)

type roleFixture struct {
	db     *gorm.DB
	roles  *RoleService
	tenant *model.Tenant
	admin  audit.Actor
}

func newRoleFixture(t *testing.T) *roleFixture {
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	admin := testutil.CreateIdentity(t, db, tenant.ID, "admin@acme.io", "", model.PermRoleManage)
	resolver := NewResolver(db)
	auditService := audit.NewAuditService(db, resolver, nil, audit.Config{MasterKey: "k"})
	return &roleFixture{
		db:     db,
		roles:  NewRoleService(db, resolver, auditService),
		tenant: tenant,
		admin:  audit.Actor{IdentityID: admin.ID, TenantID: tenant.ID, IP: "10.0.0.1"},
	}
}

func TestCreateRoleConflict(t *testing.T) {
	ctx := context.Background()
	f := newRoleFixture(t)

	_, err := f.roles.CreateRole(ctx, f.admin, "editors", "")
	require.NoError(t, err)
	_, err = f.roles.CreateRole(ctx, f.admin, "editors", "")
	assert.ErrorIs(t, err, ErrRoleNameTaken)
	assert.Equal(t, apperror.Conflict, apperror.KindOf(err))
	assert.EqualValues(t, 1, testutil.CountAudit(t, f.db, f.tenant.ID, audit.ActionRoleCreated))

	_, err = f.roles.CreateRole(ctx, f.admin, "  ", "")
	assert.ErrorIs(t, err, ErrRoleNameInvalid)
}

func TestRoleAdministrationRequiresPermission(t *testing.T) {
	ctx := context.Background()
	f := newRoleFixture(t)
	bob := testutil.CreateIdentity(t, f.db, f.tenant.ID, "bob@acme.io", "", model.PermDocumentView)
	bobActor := audit.Actor{IdentityID: bob.ID, TenantID: f.tenant.ID}

	_, err := f.roles.CreateRole(ctx, bobActor, "mine", "")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Zero(t, testutil.CountAudit(t, f.db, f.tenant.ID, audit.ActionRoleCreated))
}

func TestDeleteSystemRoleForbidden(t *testing.T) {
	ctx := context.Background()
	f := newRoleFixture(t)

	var systemRoles map[string]*model.Role
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		systemRoles, err = f.roles.CreateSystemRoles(ctx, tx, f.tenant.ID)
		return err
	}))
	require.Len(t, systemRoles, len(SystemRoles))

	err := f.roles.DeleteRole(ctx, f.admin, systemRoles[RoleAdmin].ID)
	assert.ErrorIs(t, err, ErrSystemRole)

	custom, err := f.roles.CreateRole(ctx, f.admin, "temp", "")
	require.NoError(t, err)
	require.NoError(t, f.roles.DeleteRole(ctx, f.admin, custom.ID))
	assert.ErrorIs(t, f.roles.DeleteRole(ctx, f.admin, custom.ID), apperror.ErrNotFound)
	assert.EqualValues(t, 1, testutil.CountAudit(t, f.db, f.tenant.ID, audit.ActionRoleDeleted))
}

func TestAssignRoleAcrossTenantsIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newRoleFixture(t)
	globex := testutil.CreateTenant(t, f.db, "globex")
	outsider := testutil.CreateIdentity(t, f.db, globex.ID, "eve@globex.io", "")
	foreignRole := testutil.CreateRole(t, f.db, globex.ID, "foreign")

	role, err := f.roles.CreateRole(ctx, f.admin, "editors", "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.roles.AssignRole(ctx, f.admin, outsider.ID, role.ID), apperror.ErrNotFound)
	assert.ErrorIs(t, f.roles.AssignRole(ctx, f.admin, f.admin.IdentityID, foreignRole.ID), apperror.ErrNotFound)
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newRoleFixture(t)
	bob := testutil.CreateIdentity(t, f.db, f.tenant.ID, "bob@acme.io", "")
	role, err := f.roles.CreateRole(ctx, f.admin, "editors", "")
	require.NoError(t, err)

	require.NoError(t, f.roles.AssignRole(ctx, f.admin, bob.ID, role.ID))
	require.NoError(t, f.roles.AssignRole(ctx, f.admin, bob.ID, role.ID))
	assert.EqualValues(t, 1, testutil.CountAudit(t, f.db, f.tenant.ID, audit.ActionRoleAssigned))

	require.NoError(t, f.roles.UnassignRole(ctx, f.admin, bob.ID, role.ID))
	assert.EqualValues(t, 1, testutil.CountAudit(t, f.db, f.tenant.ID, audit.ActionRoleUnassigned))
}

func TestGrantUnknownPermission(t *testing.T) {
	f := newRoleFixture(t)
	assert.ErrorIs(t, f.roles.GrantPermission(context.Background(), f.admin, 1, model.PermissionID(999)), ErrUnknownPermission)
}
