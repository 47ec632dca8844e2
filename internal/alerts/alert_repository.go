package alerts

import (
	"context"
	"time"

	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
)

type AlertFilter struct {
	TenantID   uint
	IdentityID uint
	UnreadOnly bool
	Limit      int
}

type AlertRepository interface {
	Create(ctx context.Context, alert *model.SecurityAlert) error
	First(ctx context.Context, tenantID, alertID uint) (*model.SecurityAlert, error)
	Find(ctx context.Context, filter AlertFilter) ([]*model.SecurityAlert, error)
	ExistsSince(ctx context.Context, identityID uint, alertType string, since time.Time) (bool, error)
	MarkRead(ctx context.Context, alertID uint) error
	CountEvents(ctx context.Context, tenantID, targetID uint, action string, from, to time.Time) (int64, error)
}

type alertRepository struct {
	db *gorm.DB
}

func (r *alertRepository) Create(ctx context.Context, alert *model.SecurityAlert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *alertRepository) First(ctx context.Context, tenantID, alertID uint) (*model.SecurityAlert, error) {
	var alert model.SecurityAlert
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", alertID, tenantID).First(&alert).Error
	return &alert, err
}

func (r *alertRepository) Find(ctx context.Context, filter AlertFilter) ([]*model.SecurityAlert, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.IdentityID != 0 {
		query = query.Where("identity_id = ?", filter.IdentityID)
	}
	if filter.UnreadOnly {
		query = query.Where(map[string]interface{}{"read": false})
	}
	var alerts []*model.SecurityAlert
	err := query.Order("created_at DESC").Limit(filter.Limit).Find(&alerts).Error
	return alerts, err
}

func (r *alertRepository) ExistsSince(ctx context.Context, identityID uint, alertType string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.SecurityAlert{}).
		Where("identity_id = ? AND type = ? AND created_at >= ?", identityID, alertType, since).
		Count(&count).Error
	return count > 0, err
}

func (r *alertRepository) MarkRead(ctx context.Context, alertID uint) error {
	return r.db.WithContext(ctx).Model(&model.SecurityAlert{}).Where("id = ?", alertID).Update("read", true).Error
}

// CountEvents counts audit records of action targeting targetID in (from, to].
func (r *alertRepository) CountEvents(ctx context.Context, tenantID, targetID uint, action string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.AuditLog{}).
		Where("tenant_id = ? AND target_id = ? AND action = ?", tenantID, targetID, action).
		Where("created_at > ? AND created_at <= ?", from, to).
		Count(&count).Error
	return count, err
}

func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}
