package model

import (
	"time"

	"gorm.io/gorm"
)

// Role is a tenant-scoped bundle of permissions. System roles cannot be deleted.
type Role struct {
	ID          uint   `gorm:"primaryKey;autoIncrement:false"`
	TenantID    uint   `gorm:"not null;uniqueIndex:idx_role_tenant_name,priority:1"`
	Name        string `gorm:"size:64;not null;uniqueIndex:idx_role_tenant_name,priority:2"`
	Description string `gorm:"size:256;not null;default:''"`
	System      bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Role) TableName() string {
	return "role"
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == 0 {
		r.ID = GenerateID()
	}
	return nil
}

type IdentityRole struct {
	IdentityID uint `gorm:"primaryKey;autoIncrement:false"`
	RoleID     uint `gorm:"primaryKey;autoIncrement:false;index"`
	TenantID   uint `gorm:"not null;index"`
	CreatedAt  time.Time
}

func (IdentityRole) TableName() string {
	return "identity_role"
}

type RolePermission struct {
	RoleID       uint `gorm:"primaryKey;autoIncrement:false"`
	PermissionID uint `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt    time.Time
}

func (RolePermission) TableName() string {
	return "role_permission"
}
