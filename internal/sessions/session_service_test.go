package sessions

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/testutil"
	"github.com/khanghh/kadmin/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sessionFixture struct {
	db       *gorm.DB
	svc      *SessionService
	tenant   *model.Tenant
	alice    *model.Identity
	bob      *model.Identity
	admin    *model.Identity
	outsider *model.Identity
}

func newSessionFixture(t *testing.T) *sessionFixture {
	db := testutil.NewDB(t)
	tenant := testutil.CreateTenant(t, db, "acme")
	globex := testutil.CreateTenant(t, db, "globex")
	resolver := rbac.NewResolver(db)
	auditService := audit.NewAuditService(db, resolver, nil, audit.Config{MasterKey: "k"})
	return &sessionFixture{
		db:       db,
		svc:      NewSessionService(db, auditService, resolver, Config{MasterKey: "k", Lifetime: time.Hour, MaxLifetime: 3 * time.Hour}),
		tenant:   tenant,
		alice:    testutil.CreateIdentity(t, db, tenant.ID, "alice@acme.io", ""),
		bob:      testutil.CreateIdentity(t, db, tenant.ID, "bob@acme.io", ""),
		admin:    testutil.CreateIdentity(t, db, tenant.ID, "admin@acme.io", "", model.PermSessionManage),
		outsider: testutil.CreateIdentity(t, db, globex.ID, "root@globex.io", "", model.PermSessionManage),
	}
}

func (f *sessionFixture) login(t *testing.T, identity *model.Identity) (*model.Session, string) {
	t.Helper()
	session, token, err := f.svc.CreateSession(context.Background(), f.db, identity, "firefox", "10.0.0.1")
	require.NoError(t, err)
	return session, token
}

func actorOf(identity *model.Identity) audit.Actor {
	return audit.Actor{IdentityID: identity.ID, TenantID: identity.TenantID, IP: "10.0.0.9"}
}

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	created, token := f.login(t, f.alice)

	assert.WithinDuration(t, created.CreatedAt.Add(time.Hour), created.ExpiresAt, time.Second)

	session, identity, err := f.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, session.ID)
	assert.Equal(t, f.alice.ID, identity.ID)

	_, _, err = f.svc.Authenticate(ctx, token+"x")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	forged, err := NewTokenSigner("other-key").Sign(created, created.ExpiresAt)
	require.NoError(t, err)
	_, _, err = f.svc.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCreateSessionTruncatesDeviceInfo(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	deviceInfo := "a" + strings.Repeat("é", maxDeviceInfoLength)
	created, _, err := f.svc.CreateSession(ctx, f.db, f.alice, deviceInfo, "10.0.0.1")
	require.NoError(t, err)

	var stored model.Session
	require.NoError(t, f.db.First(&stored, "id = ?", created.ID).Error)
	assert.True(t, utf8.ValidString(stored.DeviceInfo))
	assert.Equal(t, maxDeviceInfoLength, utf8.RuneCountInString(stored.DeviceInfo))
	assert.Equal(t, "a"+strings.Repeat("é", maxDeviceInfoLength-1), stored.DeviceInfo)

	short, _, err := f.svc.CreateSession(ctx, f.db, f.alice, "firefox", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "firefox", short.DeviceInfo)
}

func TestValidateSessionReasons(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)

	result, err := f.svc.ValidateSession(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, ReasonSessionNotFound, result.Reason)

	result, err = f.svc.ValidateSession(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Equal(t, ReasonSessionNotFound, result.Reason)

	revoked, _ := f.login(t, f.alice)
	require.NoError(t, f.svc.Revoke(ctx, actorOf(f.alice), revoked.ID))
	result, err = f.svc.ValidateSession(ctx, revoked.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonSessionRevoked, result.Reason)
	assert.ErrorIs(t, result.Err(), ErrSessionRevoked)

	expiring, _ := f.login(t, f.alice)
	realNow := f.svc.now
	f.svc.now = func() time.Time { return realNow().Add(2 * time.Hour) }
	result, err = f.svc.ValidateSession(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonSessionExpired, result.Reason)
	f.svc.now = realNow

	inactive, _ := f.login(t, f.bob)
	require.NoError(t, f.db.Model(f.bob).Update("active", false).Error)
	result, err = f.svc.ValidateSession(ctx, inactive.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonIdentityInactive, result.Reason)

	valid, _ := f.login(t, f.alice)
	result, err = f.svc.ValidateSession(ctx, valid.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reason)
	assert.NoError(t, result.Err())
}

func TestRevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	session, _ := f.login(t, f.alice)

	require.NoError(t, f.svc.Revoke(ctx, actorOf(f.alice), session.ID))
	var first model.Session
	require.NoError(t, f.db.First(&first, "id = ?", session.ID).Error)
	require.NotNil(t, first.RevokedAt)

	require.NoError(t, f.svc.Revoke(ctx, actorOf(f.admin), session.ID))
	var second model.Session
	require.NoError(t, f.db.First(&second, "id = ?", session.ID).Error)
	assert.True(t, first.RevokedAt.Equal(*second.RevokedAt))
	assert.Equal(t, "10.0.0.9", *second.RevokedByIP)
	assert.EqualValues(t, 1, testutil.CountAudit(t, f.db, f.tenant.ID, audit.ActionSessionRevoked))
}

func TestRevokeOwnership(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	session, _ := f.login(t, f.alice)

	err := f.svc.Revoke(ctx, actorOf(f.bob), session.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	err = f.svc.Revoke(ctx, actorOf(f.outsider), session.ID)
	assert.ErrorIs(t, err, ErrCrossTenant)
	assert.Equal(t, apperror.Forbidden, apperror.KindOf(err))

	assert.ErrorIs(t, f.svc.Revoke(ctx, actorOf(f.alice), uuid.NewString()), apperror.ErrNotFound)

	require.NoError(t, f.svc.Revoke(ctx, actorOf(f.admin), session.ID))
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	f.login(t, f.alice)
	f.login(t, f.alice)
	f.login(t, f.bob)

	_, err := f.svc.RevokeAll(ctx, actorOf(f.bob), f.alice.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = f.svc.RevokeAll(ctx, actorOf(f.outsider), f.alice.ID)
	assert.ErrorIs(t, err, ErrCrossTenant)

	count, err := f.svc.RevokeAll(ctx, actorOf(f.admin), f.alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = f.svc.RevokeAll(ctx, actorOf(f.alice), f.alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.EqualValues(t, 1, testutil.CountAudit(t, f.db, f.tenant.ID, audit.ActionSessionsRevokedAll))

	active, err := f.svc.ListSessions(ctx, actorOf(f.bob), f.bob.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRevokeAllTxKeepsCurrentSession(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	current, _ := f.login(t, f.alice)
	f.login(t, f.alice)

	count, err := f.svc.RevokeAllTx(ctx, f.db, f.alice.ID, "10.0.0.1", current.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	result, err := f.svc.ValidateSession(ctx, current.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestAuthenticateSlidesExpiry(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	session, token := f.login(t, f.alice)
	realNow := f.svc.now

	f.svc.now = func() time.Time { return realNow().Add(time.Minute) }
	touched, _, err := f.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.True(t, touched.ExpiresAt.Equal(session.ExpiresAt), "no renewal inside the touch interval")

	f.svc.now = func() time.Time { return realNow().Add(50 * time.Minute) }
	touched, _, err = f.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.True(t, touched.ExpiresAt.After(session.ExpiresAt))

	f.svc.now = func() time.Time { return realNow().Add(100 * time.Minute) }
	_, _, err = f.svc.Authenticate(ctx, token)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return realNow().Add(150 * time.Minute) }
	touched, _, err = f.svc.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.WithinDuration(t, session.CreatedAt.Add(3*time.Hour), touched.ExpiresAt, time.Second)
}

func TestMarkMFAVerified(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t)
	session, _ := f.login(t, f.alice)

	require.NoError(t, f.svc.MarkMFAVerified(ctx, f.db, session.ID))
	stored, err := f.svc.GetSession(ctx, actorOf(f.alice), session.ID)
	require.NoError(t, err)
	assert.True(t, stored.MFAVerified)

	require.NoError(t, f.svc.Revoke(ctx, actorOf(f.alice), session.ID))
	assert.ErrorIs(t, f.svc.MarkMFAVerified(ctx, f.db, session.ID), ErrSessionRevoked)
}
