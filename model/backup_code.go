package model

import "time"

// BackupCode stores a salted hash of a single-use MFA recovery code.
type BackupCode struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	IdentityID uint   `gorm:"not null;index"`
	CodeHash   string `gorm:"size:72;not null"`
	UsedAt     *time.Time
	CreatedAt  time.Time
}

func (BackupCode) TableName() string {
	return "backup_code"
}
