package taskcache

import "time"

// Config holds construction time settings for a TaskCache
type Config struct {
	// Name identifies the cache in logs and metrics (required)
	Name string `mapstructure:"name"`
	// Expiry is how long a successful refresh stays valid.
	// default: 0, the snapshot never expires
	Expiry time.Duration `mapstructure:"expiry"`
	// OperationTimeout bounds a single refresh when the caller passes no
	// per-call timeout.
	// default: 30 * time.Second
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// DefaultConfig returns the default configuration.
// Name has no default and must be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		Expiry:           0,
		OperationTimeout: 30 * time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() {
	if c.OperationTimeout == 0 {
		c.OperationTimeout = DefaultConfig().OperationTimeout
	}
}

// Validate checks that all fields hold usable values
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrInvalidName(c.Name)
	}
	if c.Expiry < 0 {
		return ErrInvalidExpiry(c.Expiry)
	}
	if c.OperationTimeout <= 0 {
		return ErrInvalidOperationTimeout(c.OperationTimeout)
	}
	return nil
}

// ExpiryPolicy converts Expiry into a policy
func (c *Config) ExpiryPolicy() ExpiryPolicy {
	if c.Expiry == 0 {
		return NeverExpire()
	}
	return ExpireAfter(c.Expiry)
}
