package model

import (
	"time"

	"gorm.io/gorm"
)

// Identity is a user inside exactly one tenant. Identities are deactivated, never deleted.
type Identity struct {
	ID          uint    `gorm:"primaryKey;autoIncrement:false"`
	TenantID    uint    `gorm:"not null;uniqueIndex:idx_identity_tenant_email,priority:1"`
	Email       string  `gorm:"size:256;not null;uniqueIndex:idx_identity_tenant_email,priority:2"`
	FullName    string  `gorm:"size:128;not null"`
	Password    *string `gorm:"size:72"` // bcrypt hash, nil while pending activation
	Active      bool    `gorm:"not null;default:false"`
	MFAEnabled  bool    `gorm:"not null;default:false"`
	MFASecret   *string `gorm:"size:256"` // secretbox ciphertext
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Identity) TableName() string {
	return "identity"
}

func (i *Identity) BeforeCreate(tx *gorm.DB) error {
	if i.ID == 0 {
		i.ID = GenerateID()
	}
	return nil
}
