package sessions

import (
	"context"
	"time"

	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository interface {
	WithTx(tx *gorm.DB) SessionRepository
	Create(ctx context.Context, session *model.Session) error
	First(ctx context.Context, sessionID string) (*model.Session, error)
	FirstForUpdate(ctx context.Context, sessionID string) (*model.Session, error)
	FindByIdentity(ctx context.Context, identityID uint, activeOnly bool, now time.Time) ([]*model.Session, error)
	Revoke(ctx context.Context, sessionID string, at time.Time, byIP string) (int64, error)
	RevokeAll(ctx context.Context, identityID uint, at time.Time, byIP string, exceptSessionID string) (int64, error)
	Touch(ctx context.Context, sessionID string, lastActiveAt, expiresAt time.Time) error
	MarkMFAVerified(ctx context.Context, sessionID string) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) First(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FirstForUpdate(ctx context.Context, sessionID string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", sessionID).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) FindByIdentity(ctx context.Context, identityID uint, activeOnly bool, now time.Time) ([]*model.Session, error) {
	query := r.db.WithContext(ctx).Where("identity_id = ?", identityID)
	if activeOnly {
		query = query.Where("revoked_at IS NULL AND expires_at > ?", now)
	}
	var sessions []*model.Session
	err := query.Order("last_active_at DESC").Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) Revoke(ctx context.Context, sessionID string, at time.Time, byIP string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Updates(map[string]interface{}{"revoked_at": at, "revoked_by_ip": byIP})
	return result.RowsAffected, result.Error
}

func (r *sessionRepository) RevokeAll(ctx context.Context, identityID uint, at time.Time, byIP string, exceptSessionID string) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("identity_id = ? AND revoked_at IS NULL", identityID)
	if exceptSessionID != "" {
		query = query.Where("id <> ?", exceptSessionID)
	}
	result := query.Updates(map[string]interface{}{"revoked_at": at, "revoked_by_ip": byIP})
	return result.RowsAffected, result.Error
}

func (r *sessionRepository) Touch(ctx context.Context, sessionID string, lastActiveAt, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Updates(map[string]interface{}{"last_active_at": lastActiveAt, "expires_at": expiresAt}).Error
}

func (r *sessionRepository) MarkMFAVerified(ctx context.Context, sessionID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("mfa_verified", true)
	return result.RowsAffected, result.Error
}

func (r *sessionRepository) WithTx(tx *gorm.DB) SessionRepository {
	return NewSessionRepository(tx)
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}
