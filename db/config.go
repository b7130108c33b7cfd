package db

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config configures the inventory database connection pool and logging
type Config struct {
	Host string `mapstructure:"host"`
	// default: 3306
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	// default: 25
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// default: 10
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// default: 1800 * time.Second
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// default: 600 * time.Second
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// silent, error, warn or info
	// default: "warn"
	LogLevel string `mapstructure:"log_level"`
	// default: 1 * time.Second
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
	// default: "utf8mb4"
	Charset string `mapstructure:"charset"`
	// time zone of DATETIME columns
	// default: "UTC"
	Loc string `mapstructure:"loc"`
	// AutoMigrate creates or alters the inventory table on startup
	// default: false
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the go-sql-driver data source name
func (c *Config) DSN() (string, error) {
	loc, err := time.LoadLocation(c.Loc)
	if err != nil {
		return "", ErrInvalidConfig(fmt.Sprintf("loc %q: %v", c.Loc, err))
	}
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.Loc = loc
	mc.Params = map[string]string{"charset": c.Charset}
	return mc.FormatDSN(), nil
}

// DefaultConfig returns the default configuration for the database
func DefaultConfig() *Config {
	return &Config{
		Port:            3306,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1800 * time.Second,
		ConnMaxIdleTime: 600 * time.Second,
		LogLevel:        "warn",
		SlowThreshold:   1 * time.Second,
		Charset:         "utf8mb4",
		Loc:             "UTC",
	}
}

var validLogLevels = []string{"silent", "error", "warn", "info"}

// Validate validates the configuration for the database
func (c *Config) Validate() error {
	if c.Host == "" {
		return ErrInvalidConfig("host is required")
	}
	if c.Port <= 0 {
		return ErrInvalidConfig("port is required")
	}
	if c.User == "" {
		return ErrInvalidConfig("user is required")
	}
	if c.Database == "" {
		return ErrInvalidConfig("database is required")
	}
	if !slices.ContainsFunc(validLogLevels, func(level string) bool {
		return strings.EqualFold(c.LogLevel, level)
	}) {
		return ErrInvalidConfig(fmt.Sprintf("log_level %q must be one of: %s", c.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	return nil
}

// MergeDefaults fills zero values with defaults and returns c
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = defaults.MaxOpenConns
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = defaults.MaxIdleConns
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = defaults.SlowThreshold
	}
	if c.Charset == "" {
		c.Charset = defaults.Charset
	}
	if c.Loc == "" {
		c.Loc = defaults.Loc
	}
	return c
}
