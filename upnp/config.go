package upnp

import "time"

// Config holds the configuration for the UPnP adapter
type Config struct {
	// SearchTargets default: []string{"ssdp:all"}
	SearchTargets []string `mapstructure:"search_targets"`
	// LocalAddr binds the search socket
	LocalAddr string `mapstructure:"local_addr"`
	// Wait is the MX value of each search, rounded down to seconds
	// default: 2 * time.Second
	Wait time.Duration `mapstructure:"wait"`
	// default: 5 * time.Minute
	Expiry time.Duration `mapstructure:"expiry"`
	// default: 10 * time.Second
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// DescriptionTTL is how long fetched descriptions are reused
	// default: 30 * time.Minute
	DescriptionTTL time.Duration `mapstructure:"description_ttl"`
	ServeStale     bool          `mapstructure:"serve_stale"`
}

// DefaultConfig returns the default UPnP configuration
func DefaultConfig() *Config {
	return &Config{
		SearchTargets:    []string{TargetAll},
		Wait:             2 * time.Second,
		Expiry:           5 * time.Minute,
		OperationTimeout: 10 * time.Second,
		DescriptionTTL:   30 * time.Minute,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() {
	d := DefaultConfig()
	if len(c.SearchTargets) == 0 {
		c.SearchTargets = d.SearchTargets
	}
	if c.Wait == 0 {
		c.Wait = d.Wait
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = d.OperationTimeout
	}
	if c.DescriptionTTL == 0 {
		c.DescriptionTTL = d.DescriptionTTL
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Wait <= 0 || c.Expiry < 0 || c.OperationTimeout <= 0 || c.DescriptionTTL < 0 {
		return ErrInvalidConfig
	}
	for _, t := range c.SearchTargets {
		if t == "" {
			return ErrInvalidConfig
		}
	}
	return nil
}
