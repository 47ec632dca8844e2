package model

import (
	"database/sql/driver"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type AlertSeverity uint8

const (
	SeverityLow AlertSeverity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[AlertSeverity]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s AlertSeverity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

func (s AlertSeverity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s AlertSeverity) Value() (driver.Value, error) {
	if _, ok := severityNames[s]; !ok {
		return nil, fmt.Errorf("invalid alert severity %d", s)
	}
	return s.String(), nil
}

func (s *AlertSeverity) Scan(value interface{}) error {
	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("unsupported alert severity type %T", value)
	}
	for sev, name := range severityNames {
		if name == str {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown alert severity %q", str)
}

type SecurityAlert struct {
	ID         uint          `gorm:"primaryKey;autoIncrement:false"`
	TenantID   uint          `gorm:"not null;index"`
	IdentityID uint          `gorm:"not null;index:idx_alert_identity_type,priority:1"`
	Type       string        `gorm:"size:64;not null;index:idx_alert_identity_type,priority:2"`
	Severity   AlertSeverity `gorm:"type:varchar(16);not null"`
	Message    string        `gorm:"size:512;not null;default:''"`
	AuditEvent string        `gorm:"size:26;not null;default:''"`
	Read       bool          `gorm:"not null;default:false"`
	CreatedAt  time.Time     `gorm:"not null;index"`
}

func (SecurityAlert) TableName() string {
	return "security_alert"
}

func (a *SecurityAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == 0 {
		a.ID = GenerateID()
	}
	return nil
}
