package model

import (
	"time"

	"gorm.io/gorm"
)

type Tenant struct {
	ID        uint   `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:128;not null"`
	Slug      string `gorm:"size:64;not null;uniqueIndex"`
	Active    bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Tenant) TableName() string {
	return "tenant"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == 0 {
		t.ID = GenerateID()
	}
	return nil
}
