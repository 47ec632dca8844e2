package rbac

import (
	"context"

	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository interface {
	WithTx(tx *gorm.DB) RoleRepository
	First(ctx context.Context, tenantID, roleID uint) (*model.Role, error)
	Find(ctx context.Context, tenantID uint) ([]*model.Role, error)
	Create(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, role *model.Role) error
	Assign(ctx context.Context, assignment *model.IdentityRole) (bool, error)
	Unassign(ctx context.Context, identityID, roleID uint) (bool, error)
	Grant(ctx context.Context, roleID uint, perm model.PermissionID) (bool, error)
	Revoke(ctx context.Context, roleID uint, perm model.PermissionID) (bool, error)
}

type roleRepository struct {
	db *gorm.DB
}

func (r *roleRepository) First(ctx context.Context, tenantID, roleID uint) (*model.Role, error) {
	var role model.Role
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", roleID, tenantID).First(&role).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) Find(ctx context.Context, tenantID uint) ([]*model.Role, error) {
	var roles []*model.Role
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name ASC").Find(&roles).Error
	return roles, err
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *roleRepository) Delete(ctx context.Context, role *model.Role) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("role_id = ?", role.ID).Delete(&model.IdentityRole{}).Error; err != nil {
		return err
	}
	if err := db.Where("role_id = ?", role.ID).Delete(&model.RolePermission{}).Error; err != nil {
		return err
	}
	return db.Delete(role).Error
}

func (r *roleRepository) Assign(ctx context.Context, assignment *model.IdentityRole) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(assignment)
	return result.RowsAffected > 0, result.Error
}

func (r *roleRepository) Unassign(ctx context.Context, identityID, roleID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("identity_id = ? AND role_id = ?", identityID, roleID).
		Delete(&model.IdentityRole{})
	return result.RowsAffected > 0, result.Error
}

func (r *roleRepository) Grant(ctx context.Context, roleID uint, perm model.PermissionID) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.RolePermission{RoleID: roleID, PermissionID: uint(perm)})
	return result.RowsAffected > 0, result.Error
}

func (r *roleRepository) Revoke(ctx context.Context, roleID uint, perm model.PermissionID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("role_id = ? AND permission_id = ?", roleID, uint(perm)).
		Delete(&model.RolePermission{})
	return result.RowsAffected > 0, result.Error
}

func (r *roleRepository) WithTx(tx *gorm.DB) RoleRepository {
	return NewRoleRepository(tx)
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}
