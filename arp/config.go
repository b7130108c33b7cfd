package arp

import (
	"slices"
	"time"
)

const (
	SourceNetlink = "netlink"
	SourceProc    = "proc"
)

// Config holds the configuration for the ARP adapter
type Config struct {
	// Expiry of a table snapshot, 0 never expires
	// default: 30 * time.Second
	Expiry time.Duration `mapstructure:"expiry"`
	// OperationTimeout bounds one table read
	// default: 5 * time.Second
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// Source is "netlink" or "proc"
	// default: "netlink" on linux
	Source string `mapstructure:"source"`
	// ProcPath is read when Source is "proc"
	// default: "/proc/net/arp"
	ProcPath string `mapstructure:"proc_path"`
	// Interfaces restricts entries to these interface names, empty keeps all
	Interfaces []string `mapstructure:"interfaces"`
	// IncludeUnresolved keeps incomplete and failed entries
	IncludeUnresolved bool `mapstructure:"include_unresolved"`
	// ServeStale answers from the previous snapshot when a table read fails
	ServeStale bool `mapstructure:"serve_stale"`
	// ProbeSettle is how long Resolve waits after probing before re-reading
	// default: 200 * time.Millisecond
	ProbeSettle time.Duration `mapstructure:"probe_settle"`
}

// DefaultConfig returns the default ARP configuration
func DefaultConfig() *Config {
	return &Config{
		Expiry:           30 * time.Second,
		OperationTimeout: 5 * time.Second,
		Source:           SourceNetlink,
		ProcPath:         "/proc/net/arp",
		ProbeSettle:      200 * time.Millisecond,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() {
	d := DefaultConfig()
	if c.OperationTimeout == 0 {
		c.OperationTimeout = d.OperationTimeout
	}
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.ProcPath == "" {
		c.ProcPath = d.ProcPath
	}
	if c.ProbeSettle == 0 {
		c.ProbeSettle = d.ProbeSettle
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Source != SourceNetlink && c.Source != SourceProc {
		return ErrInvalidSource(c.Source)
	}
	if c.Expiry < 0 || c.OperationTimeout <= 0 || c.ProbeSettle < 0 {
		return ErrInvalidConfig
	}
	return nil
}

func (c *Config) keepInterface(name string) bool {
	return len(c.Interfaces) == 0 || slices.Contains(c.Interfaces, name)
}
