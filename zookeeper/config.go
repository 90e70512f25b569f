package zookeeper

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// Servers is the list of ZooKeeper servers in the format host:port.
	Servers []string `koanf:"servers"`

	// Prefix is the chroot path that Kafka uses on the ZooKeeper cluster, without slashes.
	Prefix string `koanf:"prefix"`

	SessionTimeout time.Duration `koanf:"sessionTimeout"`
}

func (c *Config) SetDefaults() {
	c.SessionTimeout = 10 * time.Second
}

func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("no zookeeper servers specified, at least one must be configured")
	}
	if strings.Contains(c.Prefix, "/") {
		return fmt.Errorf("zookeeper prefix '%v' must not contain slashes", c.Prefix)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("zookeeper session timeout must be positive, given: %v", c.SessionTimeout)
	}

	return nil
}
