package check

import (
	"fmt"
	"time"
)

type Config struct {
	// Interval between the start of two collection cycles.
	Interval time.Duration `koanf:"interval"`

	// Timeout of a single collection cycle. It must not exceed the interval.
	Timeout time.Duration `koanf:"timeout"`

	// Tags are attached to every reported metric, e.g. "env:prod".
	Tags []string `koanf:"tags"`
}

func (c *Config) SetDefaults() {
	c.Interval = 15 * time.Second
	c.Timeout = 10 * time.Second
}

func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("check interval must be positive, given: %v", c.Interval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("check timeout must be positive, given: %v", c.Timeout)
	}
	if c.Timeout > c.Interval {
		return fmt.Errorf("check timeout (%v) must not be greater than the check interval (%v)", c.Timeout, c.Interval)
	}

	return nil
}
