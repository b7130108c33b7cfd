package discovery

import "time"

// Config holds the schedule and retry policy of one Service
type Config struct {
	// Interval between sweeps, ignored when Schedule is set
	// default: 1 * time.Minute
	Interval time.Duration `mapstructure:"interval"`
	// Schedule is a cron spec, e.g. "0 */5 * * * *"
	Schedule string `mapstructure:"schedule"`
	// SweepTimeout bounds one scheduled sweep including retries
	// default: 30 * time.Second
	SweepTimeout time.Duration `mapstructure:"sweep_timeout"`
	// MaxRetries is the number of attempts per sweep
	// default: 3
	MaxRetries int `mapstructure:"max_retries"`
	// RetryBackoff is the first backoff, doubled per attempt
	// default: 1 * time.Second
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// DefaultConfig returns the default service configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:     time.Minute,
		SweepTimeout: 30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}

// MergeDefaults fills zero values with defaults
func (c *Config) MergeDefaults() {
	d := DefaultConfig()
	if c.Interval == 0 {
		c.Interval = d.Interval
	}
	if c.SweepTimeout == 0 {
		c.SweepTimeout = d.SweepTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Schedule == "" && c.Interval <= 0 {
		return ErrInvalidConfig
	}
	if c.SweepTimeout <= 0 || c.MaxRetries < 1 || c.RetryBackoff < 0 {
		return ErrInvalidConfig
	}
	return nil
}
