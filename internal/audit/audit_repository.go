package audit

import (
	"context"
	"time"

	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AuditLogRepository interface {
	WithTx(tx *gorm.DB) AuditLogRepository
	LockChainHead(ctx context.Context, tenantID uint) (*model.AuditChainHead, error)
	UpdateChainHead(ctx context.Context, tenantID uint, lastHash string) error
	GetChainHead(ctx context.Context, tenantID uint) (*model.AuditChainHead, error)
	Create(ctx context.Context, record *model.AuditLog) error
	FindInBatches(ctx context.Context, tenantID uint, batchSize int, fn func(batch []*model.AuditLog) error) error
	Find(ctx context.Context, filter Filter) ([]*model.AuditLog, error)
	DeleteOlderThan(ctx context.Context, tenantID uint, before time.Time) (int64, error)
}

type Filter struct {
	TenantID uint
	ActorID  *uint
	TargetID *uint
	Action   string
	Since    time.Time
	Limit    int
	Offset   int
}

type auditLogRepository struct {
	db *gorm.DB
}

// LockChainHead creates the tenant's chain head on first use and locks it for the
// rest of the transaction.
func (r *auditLogRepository) LockChainHead(ctx context.Context, tenantID uint) (*model.AuditChainHead, error) {
	head := model.AuditChainHead{TenantID: tenantID}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&head).Error
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ?", tenantID).
		First(&head).Error
	if err != nil {
		return nil, err
	}
	return &head, nil
}

func (r *auditLogRepository) UpdateChainHead(ctx context.Context, tenantID uint, lastHash string) error {
	return r.db.WithContext(ctx).
		Model(&model.AuditChainHead{}).
		Where("tenant_id = ?", tenantID).
		Update("last_hash", lastHash).Error
}

func (r *auditLogRepository) GetChainHead(ctx context.Context, tenantID uint) (*model.AuditChainHead, error) {
	var head model.AuditChainHead
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&head).Error
	if err != nil {
		return nil, err
	}
	return &head, nil
}

func (r *auditLogRepository) Create(ctx context.Context, record *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *auditLogRepository) FindInBatches(ctx context.Context, tenantID uint, batchSize int, fn func(batch []*model.AuditLog) error) error {
	var batch []*model.AuditLog
	return r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("id ASC").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			return fn(batch)
		}).Error
}

func (r *auditLogRepository) Find(ctx context.Context, filter Filter) ([]*model.AuditLog, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.TargetID != nil {
		query = query.Where("target_id = ?", *filter.TargetID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var records []*model.AuditLog
	err := query.Order("id DESC").Find(&records).Error
	return records, err
}

func (r *auditLogRepository) DeleteOlderThan(ctx context.Context, tenantID uint, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND created_at < ?", tenantID, before).
		Delete(&model.AuditLog{})
	return result.RowsAffected, result.Error
}

func (r *auditLogRepository) WithTx(tx *gorm.DB) AuditLogRepository {
	return NewAuditLogRepository(tx)
}

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}
