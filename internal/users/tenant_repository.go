package users

import (
	"context"

	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
)

type TenantRepository interface {
	WithTx(tx *gorm.DB) TenantRepository
	FindBySlug(ctx context.Context, slug string) (*model.Tenant, error)
	Create(ctx context.Context, tenant *model.Tenant) error
}

type tenantRepository struct {
	db *gorm.DB
}

func (r *tenantRepository) FindBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&tenant).Error
	return &tenant, err
}

func (r *tenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	return r.db.WithContext(ctx).Create(tenant).Error
}

func (r *tenantRepository) WithTx(tx *gorm.DB) TenantRepository {
	return NewTenantRepository(tx)
}

func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db}
}
