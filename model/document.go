package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DocumentStatus is the closed set of document lifecycle states.
// StatusExpired is derived from an approved document's expiry and is never persisted.
type DocumentStatus uint8

const (
	StatusUnknown DocumentStatus = iota
	StatusDraft
	StatusSubmitted
	StatusApproved
	StatusRejected
	StatusObsolete
	StatusExpired
)

var ErrNonPersistentStatus = errors.New("status cannot be persisted")

var statusNames = [...]string{
	StatusUnknown:   "UNKNOWN",
	StatusDraft:     "DRAFT",
	StatusSubmitted: "SUBMITTED",
	StatusApproved:  "APPROVED",
	StatusRejected:  "REJECTED",
	StatusObsolete:  "OBSOLETE",
	StatusExpired:   "EXPIRED",
}

func (s DocumentStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return statusNames[StatusUnknown]
}

func ParseDocumentStatus(str string) (DocumentStatus, error) {
	for i, name := range statusNames {
		if i != int(StatusUnknown) && name == str {
			return DocumentStatus(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown document status %q", str)
}

// Persistent reports whether the status may be written to storage.
func (s DocumentStatus) Persistent() bool {
	return s >= StatusDraft && s <= StatusObsolete
}

func (s DocumentStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DocumentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseDocumentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s DocumentStatus) Value() (driver.Value, error) {
	if !s.Persistent() {
		return nil, fmt.Errorf("%w: %s", ErrNonPersistentStatus, s)
	}
	return s.String(), nil
}

func (s *DocumentStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		*s = StatusUnknown
		return nil
	default:
		return fmt.Errorf("unsupported document status type %T", value)
	}
}

type Document struct {
	ID               uint           `gorm:"primaryKey;autoIncrement:false"`
	TenantID         uint           `gorm:"not null;index"`
	Title            string         `gorm:"size:256;not null"`
	Status           DocumentStatus `gorm:"type:varchar(16);not null;index"`
	ExpiresAt        *time.Time
	CurrentVersionID *uint
	CreatedBy        uint `gorm:"not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Document) TableName() string {
	return "document"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == 0 {
		d.ID = GenerateID()
	}
	if d.Status == StatusUnknown {
		d.Status = StatusDraft
	}
	return nil
}
