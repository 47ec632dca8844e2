package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is an append-only record. Rows are only removed by retention cleanup.
type AuditLog struct {
	ID         uint64            `gorm:"primaryKey;autoIncrement"`
	EventID    string            `gorm:"size:26;not null;uniqueIndex"`
	TenantID   uint              `gorm:"not null;index:idx_audit_tenant_created,priority:1"`
	ActorID    *uint             `gorm:"index"`
	TargetID   *uint             `gorm:"index"`
	EntityType string            `gorm:"size:32;not null;default:''"`
	EntityID   string            `gorm:"size:64;not null;default:''"`
	Action     string            `gorm:"size:64;not null;index"`
	Details    string            `gorm:"size:1024;not null;default:''"`
	Metadata   datatypes.JSONMap `gorm:"type:json"`
	IP         string            `gorm:"size:45;not null;default:''"`
	PrevHash   string            `gorm:"size:64;not null;default:''"`
	Hash       string            `gorm:"size:64;not null"`
	CreatedAt  time.Time         `gorm:"not null;index:idx_audit_tenant_created,priority:2"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// AuditChainHead holds the last hash of a tenant's audit chain. Its row is locked
// while appending so that chain links are assigned in commit order.
type AuditChainHead struct {
	TenantID  uint   `gorm:"primaryKey;autoIncrement:false"`
	LastHash  string `gorm:"size:64;not null;default:''"`
	UpdatedAt time.Time
}

func (AuditChainHead) TableName() string {
	return "audit_chain_head"
}
