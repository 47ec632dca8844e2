package model

import "time"

// Session is a refresh credential for one device. Sessions are soft-revoked, never deleted.
type Session struct {
	ID           string     `gorm:"primaryKey;size:36"`
	IdentityID   uint       `gorm:"not null;index"`
	TenantID     uint       `gorm:"not null;index"`
	DeviceInfo   string     `gorm:"size:512;not null;default:''"`
	IP           string     `gorm:"size:45;not null;default:''"`
	MFAVerified  bool       `gorm:"not null;default:false"`
	CreatedAt    time.Time  `gorm:"not null"`
	LastActiveAt time.Time  `gorm:"not null"`
	ExpiresAt    time.Time  `gorm:"not null;index"`
	RevokedAt    *time.Time `gorm:"index"`
	RevokedByIP  *string    `gorm:"size:45"`
}

func (Session) TableName() string {
	return "session"
}

func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
