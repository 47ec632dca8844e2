package model

import (
	"math/rand"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

var snowflakeNode *snowflake.Node

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

var Models = []interface{}{
	&Tenant{}, &Identity{}, &Role{}, &Permission{}, &IdentityRole{}, &RolePermission{},
	&Session{}, &BackupCode{}, &Document{}, &AuditLog{}, &AuditChainHead{}, &SecurityAlert{},
}

func init() {
	var err error
	snowflakeNode, err = snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
}

func GenerateID() uint {
	return uint(snowflakeNode.Generate())
}

// NewEventID returns a lexicographically sortable identifier for audit events.
func NewEventID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models...)
}
