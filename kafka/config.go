package kafka

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	BackendFranz      = "franz"
	BackendLibrdkafka = "librdkafka"
)

type Config struct {
	// General
	Brokers  []string `koanf:"brokers"`
	ClientID string   `koanf:"clientId"`
	RackID   string   `koanf:"rackId"`

	// Backend selects the client implementation that talks to the cluster. The librdkafka backend uses group
	// scoped consumer sessions to list topics, the franz backend uses a single shared admin client.
	Backend string `koanf:"backend"`

	// ClientAPIVersion pins the highest Kafka protocol version the client negotiates, e.g. "2.3.0". The newest
	// version supported by the broker is used if empty.
	ClientAPIVersion string `koanf:"clientApiVersion"`

	// RequestTimeout is applied to each request against the cluster.
	RequestTimeout time.Duration `koanf:"requestTimeout"`

	TLS  TLSConfig  `koanf:"tls"`
	SASL SASLConfig `koanf:"sasl"`
}

func (c *Config) SetDefaults() {
	c.ClientID = "kconsumer"
	c.Backend = BackendFranz
	c.RequestTimeout = 5 * time.Second

	c.TLS.SetDefaults()
	c.SASL.SetDefaults()
}

func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("no seed brokers specified, at least one must be configured")
	}

	switch c.Backend {
	case BackendFranz, BackendLibrdkafka:
	default:
		return fmt.Errorf("given kafka backend '%v' is invalid, must be one of '%v' or '%v'",
			c.Backend, BackendFranz, BackendLibrdkafka)
	}

	if c.ClientAPIVersion != "" {
		if _, err := maxVersionsFor(c.ClientAPIVersion); err != nil {
			return fmt.Errorf("failed to validate client api version: %w", err)
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, given: %v", c.RequestTimeout)
	}

	err := c.TLS.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate TLS config: %w", err)
	}

	err = c.SASL.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate SASL config: %w", err)
	}
	err = c.SASL.validateForBackend(c.Backend)
	if err != nil {
		return fmt.Errorf("failed to validate SASL config: %w", err)
	}

	return nil
}

// ConnectionString returns the normalized list of seed brokers. It identifies the cluster a handle belongs to.
func (c *Config) ConnectionString() string {
	brokers := make([]string, 0, len(c.Brokers))
	for _, broker := range c.Brokers {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	sort.Strings(brokers)

	return strings.Join(brokers, ",")
}
