package db

import (
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/khanghh/kadmin/internal/config"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKey(fmt.Errorf("create role: %w", &mysqldriver.MySQLError{Number: 1062})))
	assert.False(t, IsDuplicateKey(&mysqldriver.MySQLError{Number: 1213}))
	assert.False(t, IsDuplicateKey(gorm.ErrRecordNotFound))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "oracle", Dsn: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestGormConfigUsesSingularTables(t *testing.T) {
	cfg := GormConfig()
	assert.True(t, cfg.TranslateError)
	assert.Equal(t, "identity_role", cfg.NamingStrategy.TableName("IdentityRole"))
	assert.Equal(t, "UTC", cfg.NowFunc().Location().String())
}
