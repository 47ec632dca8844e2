package alerts

import (
	"context"
	"sync"
	"testing"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/testutil"
	"github.com/khanghh/kadmin/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*model.SecurityAlert
}

func (n *recordingNotifier) Notify(ctx context.Context, alert *model.SecurityAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

type alertFixture struct {
	db       *gorm.DB
	svc      *Service
	audit    *audit.AuditService
	notifier *recordingNotifier
	tenant   *model.Tenant
	alice    *model.Identity
	admin    *model.Identity
}

func newAlertFixture(t *testing.T) *alertFixture {
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	resolver := rbac.NewResolver(db)
	notifier := &recordingNotifier{}
	return &alertFixture{
		db:       db,
		svc:      NewService(db, resolver, notifier),
		audit:    audit.NewAuditService(db, resolver, nil, audit.Config{MasterKey: "k"}),
		notifier: notifier,
		tenant:   tenant,
		alice:    testutil.CreateIdentity(t, db, tenant.ID, "alice@acme.io", ""),
		admin:    testutil.CreateIdentity(t, db, tenant.ID, "admin@acme.io", "", model.PermAlertView, model.PermSessionManage),
	}
}

func (f *alertFixture) event(t *testing.T, action string, actor, target *model.Identity, metadata map[string]any) *model.AuditLog {
	t.Helper()
	entry := audit.Entry{TenantID: f.tenant.ID, EntityType: audit.EntityIdentity, Action: action, Metadata: metadata}
	if actor != nil {
		entry.ActorID = &actor.ID
	}
	if target != nil {
		entry.TargetID = &target.ID
	}
	record, err := f.audit.Create(context.Background(), nil, entry)
	require.NoError(t, err)
	return record
}

func (f *alertFixture) alerts(t *testing.T, alertType string) []model.SecurityAlert {
	t.Helper()
	var alerts []model.SecurityAlert
	require.NoError(t, f.db.Where("type = ?", alertType).Find(&alerts).Error)
	return alerts
}

func TestRepeatedLoginFailureRaisesOneHighAlert(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionLoginFailed, nil, f.alice, nil)))
	}
	assert.Empty(t, f.alerts(t, TypeRepeatedLoginFailure))

	fifth := f.event(t, audit.ActionLoginFailed, nil, f.alice, nil)
	require.NoError(t, f.svc.Evaluate(ctx, fifth))
	alerts := f.alerts(t, TypeRepeatedLoginFailure)
	require.Len(t, alerts, 1)
	assert.Equal(t, f.alice.ID, alerts[0].IdentityID)
	assert.Equal(t, model.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, fifth.EventID, alerts[0].AuditEvent)

	// further failures inside the window are de-duplicated
	require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionLoginFailed, nil, f.alice, nil)))
	assert.Len(t, f.alerts(t, TypeRepeatedLoginFailure), 1)
	assert.Len(t, f.notifier.alerts, 1)
}

func TestLoginFailuresWithoutTargetAreIgnored(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t)
	for i := 0; i < 6; i++ {
		require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionLoginFailed, nil, nil, nil)))
	}
	assert.Empty(t, f.alerts(t, TypeRepeatedLoginFailure))
}

func TestRepeatedMFAFailure(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionMFAStepUpFailed, f.alice, f.alice, nil)))
	}
	require.Len(t, f.alerts(t, TypeRepeatedMFAFailure), 1)
}

func TestMediumAndLowAlertsAreNotMailed(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t)

	require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionMFADisabled, f.alice, f.alice, nil)))
	require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionSessionsRevokedAll, f.admin, f.alice, nil)))
	require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionRetentionCleanup, f.admin, nil, map[string]any{"deleted": 3})))

	disabled := f.alerts(t, TypeMFADisabled)
	require.Len(t, disabled, 1)
	assert.Equal(t, model.SeverityMedium, disabled[0].Severity)
	revoked := f.alerts(t, TypeSessionsRevoked)
	require.Len(t, revoked, 1)
	assert.Equal(t, model.SeverityLow, revoked[0].Severity)
	cleanup := f.alerts(t, TypeAuditCleanup)
	require.Len(t, cleanup, 1)
	assert.Equal(t, f.admin.ID, cleanup[0].IdentityID)
	assert.Contains(t, cleanup[0].Message, "3")
	assert.Empty(t, f.notifier.alerts)
}

func TestSelfRevocationRaisesNothing(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t)
	require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionSessionsRevokedAll, f.alice, f.alice, nil)))
	require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionLoginSuccess, f.alice, f.alice, nil)))

	var count int64
	require.NoError(t, f.db.Model(&model.SecurityAlert{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	f := newAlertFixture(t)
	bob := testutil.CreateIdentity(t, f.db, f.tenant.ID, "bob@acme.io", "")
	require.NoError(t, f.svc.Evaluate(ctx, f.event(t, audit.ActionMFADisabled, f.alice, f.alice, nil)))
	aliceActor := audit.Actor{IdentityID: f.alice.ID, TenantID: f.tenant.ID}
	bobActor := audit.Actor{IdentityID: bob.ID, TenantID: f.tenant.ID}
	adminActor := audit.Actor{IdentityID: f.admin.ID, TenantID: f.tenant.ID}

	own, err := f.svc.ListAlerts(ctx, aliceActor, f.alice.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)

	_, err = f.svc.ListAlerts(ctx, bobActor, f.alice.ID, false, 0)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = f.svc.ListAlerts(ctx, aliceActor, 0, false, 0)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	all, err := f.svc.ListAlerts(ctx, adminActor, 0, false, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, f.svc.MarkRead(ctx, bobActor, own[0].ID), apperror.ErrNotFound)
	require.NoError(t, f.svc.MarkRead(ctx, aliceActor, own[0].ID))
	unread, err := f.svc.ListAlerts(ctx, aliceActor, f.alice.ID, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
