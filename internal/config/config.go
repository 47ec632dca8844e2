package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/khanghh/kadmin/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr      = ":3000"
	DefaultDatabaseDriver  = "mysql"
	DefaultMaxIdleConns    = 10
	DefaultMaxOpenConns    = 50
	DefaultConnMaxLifetime = 300 // seconds
)

var ErrMissingMasterKey = errors.New("masterKey must be configured")

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver          string   `mapstructure:"driver"`
	Dsn             string   `mapstructure:"dsn"`
	Replicas        []string `mapstructure:"replicas"`
	MaxIdleConns    int      `mapstructure:"maxIdleConns"`
	MaxOpenConns    int      `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int      `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int      `mapstructure:"connMaxLifetime"`
}

type SessionConfig struct {
	Lifetime     time.Duration `mapstructure:"lifetime"`
	MaxLifetime  time.Duration `mapstructure:"maxLifetime"`
	CookieName   string        `mapstructure:"cookieName"`
	CookieSecure bool          `mapstructure:"cookieSecure"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type AlertsConfig struct {
	Workers      int      `mapstructure:"workers"`
	QueueSize    int      `mapstructure:"queueSize"`
	NotifyEmails []string `mapstructure:"notifyEmails"`
}

type AuditConfig struct {
	MinRetention time.Duration `mapstructure:"minRetention"`
}

type Config struct {
	Debug           bool           `mapstructure:"debug"`
	ListenAddr      string         `mapstructure:"listenAddr"`
	HealthCheckAddr string         `mapstructure:"healthCheckAddr"`
	MasterKey       string         `mapstructure:"masterKey"`
	InternalSecret  string         `mapstructure:"internalSecret"`
	AllowOrigins    []string       `mapstructure:"allowOrigins"`
	Log             LogConfig      `mapstructure:"log"`
	Database        DatabaseConfig `mapstructure:"database"`
	Redis           RedisConfig    `mapstructure:"redis"`
	Session         SessionConfig  `mapstructure:"session"`
	Alerts          AlertsConfig   `mapstructure:"alerts"`
	Mail            MailConfig     `mapstructure:"mail"`
	Audit           AuditConfig    `mapstructure:"audit"`
}

func (c *Config) Sanitize() error {
	if c.MasterKey == "" {
		return ErrMissingMasterKey
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.HealthCheckAddr == "" {
		c.HealthCheckAddr = params.HealthCheckServerAddr
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.Session.Lifetime == 0 {
		c.Session.Lifetime = params.SessionLifetime
	}
	if c.Session.MaxLifetime == 0 {
		c.Session.MaxLifetime = params.SessionMaxLifetime
	}
	if c.Session.MaxLifetime < c.Session.Lifetime {
		c.Session.MaxLifetime = c.Session.Lifetime
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = params.SessionCookieName
	}
	if c.Alerts.Workers <= 0 {
		c.Alerts.Workers = params.AlertDefaultWorkers
	}
	if c.Alerts.QueueSize <= 0 {
		c.Alerts.QueueSize = params.AlertDefaultQueueSize
	}
	if c.Audit.MinRetention <= 0 {
		c.Audit.MinRetention = params.AuditDefaultMinRetention
	}
	return nil
}

// LoadConfig reads the yaml config file, after loading variables from a .env file
// next to the working directory when one exists. Environment variables override
// file values, with dots replaced by underscores.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
