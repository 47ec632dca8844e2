// Package testutil provides gorm fixtures backed by in-memory SQLite.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/khanghh/kadmin/internal/db"
	"github.com/khanghh/kadmin/model"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Int64

// NewDB opens a fresh migrated database. A single connection is used, so queries
// issued inside a transaction must go through the transaction handle.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:kadmin_%d_%s?mode=memory&cache=shared", dbCounter.Add(1), sanitizeName(t.Name()))
	cfg := db.GormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(context.Background(), gdb))
	return gdb
}

func sanitizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func CreateTenant(t *testing.T, db *gorm.DB, slug string) *model.Tenant {
	t.Helper()
	tenant := &model.Tenant{Name: slug, Slug: slug, Active: true}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

// CreateIdentity creates an active identity holding a dedicated role with perms.
func CreateIdentity(t *testing.T, db *gorm.DB, tenantID uint, email, password string, perms ...model.PermissionID) *model.Identity {
	t.Helper()
	identity := &model.Identity{
		TenantID: tenantID,
		Email:    email,
		FullName: email,
		Active:   true,
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hashStr := string(hash)
		identity.Password = &hashStr
	}
	require.NoError(t, db.Create(identity).Error)
	if len(perms) > 0 {
		role := CreateRole(t, db, tenantID, "role-"+email, perms...)
		AssignRole(t, db, identity, role)
	}
	return identity
}

func CreateRole(t *testing.T, db *gorm.DB, tenantID uint, name string, perms ...model.PermissionID) *model.Role {
	t.Helper()
	role := &model.Role{TenantID: tenantID, Name: name}
	require.NoError(t, db.Create(role).Error)
	for _, perm := range perms {
		require.NoError(t, db.Create(&model.RolePermission{RoleID: role.ID, PermissionID: uint(perm)}).Error)
	}
	return role
}

func AssignRole(t *testing.T, db *gorm.DB, identity *model.Identity, role *model.Role) {
	t.Helper()
	require.NoError(t, db.Create(&model.IdentityRole{
		IdentityID: identity.ID,
		RoleID:     role.ID,
		TenantID:   role.TenantID,
	}).Error)
}

// CountAudit returns the number of audit records of action in tenant.
func CountAudit(t *testing.T, db *gorm.DB, tenantID uint, action string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).
		Where("tenant_id = ? AND action = ?", tenantID, action).
		Count(&count).Error)
	return count
}

// FailAuditWrites makes every insert into audit_log fail until the test ends.
func FailAuditWrites(t *testing.T, db *gorm.DB) {
	t.Helper()
	name := "testutil:fail_audit_" + sanitizeName(t.Name())
	err := db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "audit_log" {
			tx.AddError(fmt.Errorf("audit storage unavailable"))
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Callback().Create().Remove(name)
	})
}

// PublishedEvents collects records handed to the alert pipeline.
type PublishedEvents struct {
	ch chan *model.AuditLog
}

func NewPublishedEvents() *PublishedEvents {
	return &PublishedEvents{ch: make(chan *model.AuditLog, 256)}
}

func (p *PublishedEvents) Submit(record *model.AuditLog) {
	select {
	case p.ch <- record:
	default:
	}
}

// Actions drains the collected records and returns their actions in order.
func (p *PublishedEvents) Actions() []string {
	var actions []string
	for {
		select {
		case record := <-p.ch:
			actions = append(actions, record.Action)
		default:
			return actions
		}
	}
}
