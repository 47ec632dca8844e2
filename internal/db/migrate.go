package db

import (
	"context"

	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate creates or updates every table and seeds the permission catalog.
// Seeding never overwrites an existing permission row.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := model.AutoMigrate(db.WithContext(ctx)); err != nil {
		return err
	}
	return SeedPermissions(ctx, db)
}

func SeedPermissions(ctx context.Context, db *gorm.DB) error {
	perms := make([]model.Permission, len(model.Permissions))
	copy(perms, model.Permissions)
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&perms).Error
}
