package mdns

import "time"

// Config holds the configuration for the mDNS adapter
type Config struct {
	// Services are the DNS-SD service types to browse, e.g. "_ipp._tcp"
	Services []string `mapstructure:"services"`
	// Domain default: "local"
	Domain string `mapstructure:"domain"`
	// Interface to send queries on, empty uses the default route
	Interface string `mapstructure:"interface"`
	// Window is how long responses are collected per service
	// default: 2 * time.Second
	Window time.Duration `mapstructure:"window"`
	// Concurrency bounds parallel browses
	// default: 4
	Concurrency int `mapstructure:"concurrency"`
	// default: 2 * time.Minute
	Expiry time.Duration `mapstructure:"expiry"`
	// default: 10 * time.Second
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ServeStale       bool          `mapstructure:"serve_stale"`
}

// DefaultConfig returns the default mDNS configuration
func DefaultConfig() *Config {
	return &Config{
		Services:         []string{"_http._tcp", "_ipp._tcp", "_googlecast._tcp", "_airplay._tcp"},
		Domain:           "local",
		Window:           2 * time.Second,
		Concurrency:      4,
		Expiry:           2 * time.Minute,
		OperationTimeout: 10 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() {
	d := DefaultConfig()
	if len(c.Services) == 0 {
		c.Services = d.Services
	}
	if c.Domain == "" {
		c.Domain = d.Domain
	}
	if c.Window == 0 {
		c.Window = d.Window
	}
	if c.Concurrency == 0 {
		c.Concurrency = d.Concurrency
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = d.OperationTimeout
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Window <= 0 || c.Concurrency < 1 || c.Expiry < 0 || c.OperationTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.Window > c.OperationTimeout {
		return ErrInvalidConfig
	}
	return nil
}
