package users

import (
	"context"

	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdentityRepository interface {
	WithTx(tx *gorm.DB) IdentityRepository
	First(ctx context.Context, tenantID, identityID uint) (*model.Identity, error)
	FirstForUpdate(ctx context.Context, tenantID, identityID uint) (*model.Identity, error)
	FindByEmail(ctx context.Context, tenantID uint, email string) (*model.Identity, error)
	Create(ctx context.Context, identity *model.Identity) error
	Updates(ctx context.Context, identityID uint, columns map[string]interface{}) error
}

type identityRepository struct {
	db *gorm.DB
}

func (r *identityRepository) First(ctx context.Context, tenantID, identityID uint) (*model.Identity, error) {
	var identity model.Identity
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", identityID, tenantID).First(&identity).Error
	return &identity, err
}

func (r *identityRepository) FirstForUpdate(ctx context.Context, tenantID, identityID uint) (*model.Identity, error) {
	var identity model.Identity
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", identityID, tenantID).
		First(&identity).Error
	return &identity, err
}

func (r *identityRepository) FindByEmail(ctx context.Context, tenantID uint, email string) (*model.Identity, error) {
	var identity model.Identity
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND email = ?", tenantID, email).First(&identity).Error
	return &identity, err
}

func (r *identityRepository) Create(ctx context.Context, identity *model.Identity) error {
	return r.db.WithContext(ctx).Create(identity).Error
}

func (r *identityRepository) Updates(ctx context.Context, identityID uint, columns map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Identity{}).Where("id = ?", identityID).Updates(columns).Error
}

func (r *identityRepository) WithTx(tx *gorm.DB) IdentityRepository {
	return NewIdentityRepository(tx)
}

func NewIdentityRepository(db *gorm.DB) IdentityRepository {
	return &identityRepository{db}
}
