package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/common"
	"github.com/khanghh/kadmin/internal/metrics"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
	"gorm.io/gorm"
)

const maxDeviceInfoLength = 512

type PermissionChecker interface {
	HasPermission(ctx context.Context, identityID, tenantID uint, perm model.PermissionID) (bool, error)
}

type Config struct {
	MasterKey   string
	Lifetime    time.Duration
	MaxLifetime time.Duration
}

// Validation is the outcome of checking a session. Reason is set when Valid is false.
type Validation struct {
	Valid      bool   `json:"valid"`
	Reason     string `json:"reason,omitempty"`
	IdentityID uint   `json:"identityId,omitempty"`
	TenantID   uint   `json:"tenantId,omitempty"`

	Session  *model.Session  `json:"-"`
	Identity *model.Identity `json:"-"`
}

// Err returns the error matching a failed validation.
func (v *Validation) Err() error {
	if v.Valid {
		return nil
	}
	if err, ok := reasonErrors[v.Reason]; ok {
		return err
	}
	return apperror.ErrUnauthenticated
}

type SessionService struct {
	db          *gorm.DB
	sessionRepo SessionRepository
	audit       *audit.AuditService
	perms       PermissionChecker
	signer      *TokenSigner
	lifetime    time.Duration
	maxLifetime time.Duration
	now         func() time.Time
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// CreateSession opens a new session for identity inside tx and returns it with its
// signed reference.
func (s *SessionService) CreateSession(ctx context.Context, tx *gorm.DB, identity *model.Identity, deviceInfo, ip string) (*model.Session, string, error) {
	now := s.now().UTC()
	session := &model.Session{
		ID:           uuid.NewString(),
		IdentityID:   identity.ID,
		TenantID:     identity.TenantID,
		DeviceInfo:   truncate(deviceInfo, maxDeviceInfoLength),
		IP:           ip,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.lifetime),
	}
	if err := s.sessionRepo.WithTx(tx).Create(ctx, session); err != nil {
		return nil, "", err
	}
	token, err := s.signer.Sign(session, session.CreatedAt.Add(s.maxLifetime))
	if err != nil {
		return nil, "", err
	}
	return session, token, nil
}

// ValidateSession checks a session and its owner. It never mutates state.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID string) (*Validation, error) {
	return s.validate(ctx, s.db, sessionID)
}

func (s *SessionService) validate(ctx context.Context, db *gorm.DB, sessionID string) (*Validation, error) {
	result, err := s.check(ctx, db, sessionID)
	if err != nil {
		return nil, err
	}
	label := "valid"
	if !result.Valid {
		label = result.Reason
	}
	metrics.SessionValidations.WithLabelValues(label).Inc()
	return result, nil
}

func (s *SessionService) check(ctx context.Context, db *gorm.DB, sessionID string) (*Validation, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return &Validation{Reason: ReasonSessionNotFound}, nil
	}
	session, err := s.sessionRepo.WithTx(db).First(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Validation{Reason: ReasonSessionNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	result := &Validation{IdentityID: session.IdentityID, TenantID: session.TenantID, Session: session}
	switch {
	case session.IsRevoked():
		result.Reason = ReasonSessionRevoked
		return result, nil
	case session.IsExpired(s.now()):
		result.Reason = ReasonSessionExpired
		return result, nil
	}

	var identity model.Identity
	err = db.WithContext(ctx).Where("id = ? AND tenant_id = ?", session.IdentityID, session.TenantID).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.Reason = ReasonIdentityInactive
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if !identity.Active {
		result.Reason = ReasonIdentityInactive
		return result, nil
	}
	result.Valid = true
	result.Identity = &identity
	return result, nil
}

// Authenticate resolves a signed session reference into a valid session and its
// identity, renewing the session on activity.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*model.Session, *model.Identity, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.validate(ctx, s.db, claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if !result.Valid {
		return nil, nil, result.Err()
	}
	if result.IdentityID != claims.IdentityID || result.TenantID != claims.TenantID {
		return nil, nil, ErrTokenInvalid
	}
	if err := s.touch(ctx, result.Session); err != nil {
		return nil, nil, err
	}
	return result.Session, result.Identity, nil
}

// ParseToken returns the session id carried by a signed reference.
func (s *SessionService) ParseToken(token string) (string, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.SessionID, nil
}

// touch slides the expiry forward, at most once per touch interval and never past
// the absolute lifetime.
func (s *SessionService) touch(ctx context.Context, session *model.Session) error {
	now := s.now().UTC()
	if now.Sub(session.LastActiveAt) < params.SessionTouchInterval {
		return nil
	}
	expiresAt := now.Add(s.lifetime)
	if limit := session.CreatedAt.Add(s.maxLifetime); expiresAt.After(limit) {
		expiresAt = limit
	}
	if err := s.sessionRepo.Touch(ctx, session.ID, now, expiresAt); err != nil {
		return err
	}
	session.LastActiveAt = now
	session.ExpiresAt = expiresAt
	return nil
}

// authorize allows the owner, or an identity holding session.manage in the owner's
// tenant. Access across tenants is always refused.
func (s *SessionService) authorize(ctx context.Context, actor audit.Actor, ownerID, ownerTenantID uint) error {
	if ownerTenantID != actor.TenantID {
		return ErrCrossTenant
	}
	if ownerID == actor.IdentityID {
		return nil
	}
	ok, err := s.perms.HasPermission(ctx, actor.IdentityID, actor.TenantID, model.PermSessionManage)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrForbidden
	}
	return nil
}

func (s *SessionService) GetSession(ctx context.Context, actor audit.Actor, sessionID string) (*model.Session, error) {
	session, err := s.sessionRepo.First(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, session.IdentityID, session.TenantID); err != nil {
		return nil, err
	}
	return session, nil
}

// Revoke revokes one session. Revoking an already revoked session succeeds without
// changing it or writing another audit record.
func (s *SessionService) Revoke(ctx context.Context, actor audit.Actor, sessionID string) error {
	if _, err := s.GetSession(ctx, actor, sessionID); err != nil {
		return err
	}

	var record *model.AuditLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.sessionRepo.WithTx(tx)
		session, err := repo.FirstForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.IsRevoked() {
			return nil
		}
		revoked, err := repo.Revoke(ctx, sessionID, s.now().UTC(), actor.IP)
		if err != nil || revoked == 0 {
			return err
		}
		record, err = s.audit.Create(ctx, tx, audit.Entry{
			TenantID:   session.TenantID,
			ActorID:    actor.Ref(),
			TargetID:   &session.IdentityID,
			EntityType: audit.EntitySession,
			EntityID:   session.ID,
			Action:     audit.ActionSessionRevoked,
			Metadata:   map[string]any{"sessionId": session.ID, "deviceInfo": session.DeviceInfo},
			IP:         actor.IP,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Publish(record)
	return nil
}

// RevokeAll revokes every unrevoked session of an identity and returns how many
// were revoked. Nothing is audited when there was nothing to revoke.
func (s *SessionService) RevokeAll(ctx context.Context, actor audit.Actor, identityID uint) (int64, error) {
	var owner model.Identity
	err := s.db.WithContext(ctx).First(&owner, identityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperror.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, actor, owner.ID, owner.TenantID); err != nil {
		return 0, err
	}

	var (
		count  int64
		record *model.AuditLog
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		count, err = s.RevokeAllTx(ctx, tx, owner.ID, actor.IP, "")
		if err != nil || count == 0 {
			return err
		}
		record, err = s.audit.Create(ctx, tx, audit.Entry{
			TenantID:   owner.TenantID,
			ActorID:    actor.Ref(),
			TargetID:   &owner.ID,
			EntityType: audit.EntityIdentity,
			EntityID:   common.FormatID(owner.ID),
			Action:     audit.ActionSessionsRevokedAll,
			Metadata:   map[string]any{"count": count, "reason": "requested"},
			IP:         actor.IP,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	s.audit.Publish(record)
	return count, nil
}

// RevokeAllTx revokes sessions inside a caller transaction without auditing, for
// operations that audit their own outcome. exceptSessionID may be empty.
func (s *SessionService) RevokeAllTx(ctx context.Context, tx *gorm.DB, identityID uint, byIP string, exceptSessionID string) (int64, error) {
	return s.sessionRepo.WithTx(tx).RevokeAll(ctx, identityID, s.now().UTC(), byIP, exceptSessionID)
}

// ListSessions returns the active sessions of identityID.
func (s *SessionService) ListSessions(ctx context.Context, actor audit.Actor, identityID uint) ([]*model.Session, error) {
	var owner model.Identity
	err := s.db.WithContext(ctx).First(&owner, identityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, owner.ID, owner.TenantID); err != nil {
		return nil, err
	}
	return s.sessionRepo.FindByIdentity(ctx, identityID, true, s.now().UTC())
}

// MarkMFAVerified flags a session as having passed step-up verification.
func (s *SessionService) MarkMFAVerified(ctx context.Context, tx *gorm.DB, sessionID string) error {
	updated, err := s.sessionRepo.WithTx(tx).MarkMFAVerified(ctx, sessionID)
	if err != nil {
		return err
	}
	if updated == 0 {
		return ErrSessionRevoked
	}
	return nil
}

func NewSessionService(db *gorm.DB, auditService *audit.AuditService, perms PermissionChecker, cfg Config) *SessionService {
	lifetime := cfg.Lifetime
	if lifetime <= 0 {
		lifetime = params.SessionLifetime
	}
	maxLifetime := cfg.MaxLifetime
	if maxLifetime < lifetime {
		maxLifetime = lifetime
	}
	return &SessionService{
		db:          db,
		sessionRepo: NewSessionRepository(db),
		audit:       auditService,
		perms:       perms,
		signer:      NewTokenSigner(cfg.MasterKey),
		lifetime:    lifetime,
		maxLifetime: maxLifetime,
		now:         time.Now,
	}
}
