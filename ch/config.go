package ch

import (
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type Config struct {
	Hosts       []string      `mapstructure:"hosts"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Debug       bool          `mapstructure:"debug"`
	// server settings applied to every query
	Settings clickhouse.Settings `mapstructure:"settings"`
	// nil disables the batch writer
	WriterConfig *WriterConfig `mapstructure:"writer"`
}

type WriterConfig struct {
	// default: 10s
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// a buffer of FlushSize rows is flushed at once
	// default: 5000
	FlushSize int `mapstructure:"flush_size"`
	// MinFlushSize skips interval flushes of smaller buffers, 0 disables
	// default: 500
	MinFlushSize int `mapstructure:"min_flush_size"`
	// MaxWaitTime forces an interval flush once the oldest buffered row is
	// this old, 0 disables
	// default: 60s
	MaxWaitTime time.Duration `mapstructure:"max_wait_time"`
	// MaxBufferedRows makes Write fail with ErrBufferFull, 0 is unbounded
	// default: 100000
	MaxBufferedRows int `mapstructure:"max_buffered_rows"`
	// InsertTimeout bounds one batch insert
	// default: 30s
	InsertTimeout time.Duration `mapstructure:"insert_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Database:    "default",
		DialTimeout: 10 * time.Second,
	}
}

// DefaultWriterConfig returns the default writer config
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		FlushInterval:   10 * time.Second,
		FlushSize:       5000,
		MinFlushSize:    500,
		MaxWaitTime:     60 * time.Second,
		MaxBufferedRows: 100000,
		InsertTimeout:   30 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() {
	d := DefaultConfig()
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriterConfig != nil {
		c.WriterConfig.MergeDefaults()
	}
}

// MergeDefaults fills zero values with defaults. MinFlushSize and
// MaxWaitTime keep their zero value, which disables them.
func (w *WriterConfig) MergeDefaults() {
	d := DefaultWriterConfig()
	if w.FlushInterval == 0 {
		w.FlushInterval = d.FlushInterval
	}
	if w.FlushSize == 0 {
		w.FlushSize = d.FlushSize
	}
	if w.InsertTimeout == 0 {
		w.InsertTimeout = d.InsertTimeout
	}
}

func (c *Config) Validate() error {
	if len(c.Hosts) == 0 {
		return ErrInvalidConfig("hosts are required")
	}
	if c.Username == "" {
		return ErrInvalidConfig("username is required")
	}
	if c.WriterConfig != nil {
		return c.WriterConfig.Validate()
	}
	return nil
}

func (w *WriterConfig) Validate() error {
	if w.FlushInterval <= 0 {
		return ErrInvalidConfig("writer.flush_interval is required")
	}
	if w.FlushSize <= 0 {
		return ErrInvalidConfig("writer.flush_size is required")
	}
	if w.MinFlushSize < 0 {
		return ErrInvalidConfig("writer.min_flush_size cannot be negative")
	}
	if w.MinFlushSize > w.FlushSize {
		return ErrInvalidConfig("writer.min_flush_size cannot be greater than writer.flush_size")
	}
	if w.MaxWaitTime < 0 {
		return ErrInvalidConfig("writer.max_wait_time cannot be negative")
	}
	if w.MaxBufferedRows < 0 {
		return ErrInvalidConfig("writer.max_buffered_rows cannot be negative")
	}
	return nil
}
