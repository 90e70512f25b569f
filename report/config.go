package report

import (
	"fmt"
	"net"
	"strconv"
)

type Config struct {
	StatsD   StatsDConfig   `koanf:"statsd"`
	InfluxDB InfluxDBConfig `koanf:"influxdb"`
	Datadog  DatadogConfig  `koanf:"datadog"`
}

func (c *Config) SetDefaults() {
	c.StatsD.SetDefaults()
	c.InfluxDB.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.StatsD.Validate(); err != nil {
		return fmt.Errorf("failed to validate statsd config: %w", err)
	}
	if err := c.InfluxDB.Validate(); err != nil {
		return fmt.Errorf("failed to validate influxdb config: %w", err)
	}
	if err := c.Datadog.Validate(); err != nil {
		return fmt.Errorf("failed to validate datadog config: %w", err)
	}
	return nil
}

// StatsDConfig configures the DogStatsD reporter.
type StatsDConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Addr      string `koanf:"addr"`
	Namespace string `koanf:"namespace"`
}

func (c *StatsDConfig) SetDefaults() {
	c.Addr = "localhost:8125"
}

func (c *StatsDConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	_, _, err := splitHostPort(c.Addr, 8125)
	return err
}

// InfluxDBConfig configures the InfluxDB reporter.
type InfluxDBConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Addr            string `koanf:"addr"`
	Username        string `koanf:"username"`
	Password        string `koanf:"password"`
	Database        string `koanf:"database"`
	RetentionPolicy string `koanf:"retentionPolicy"`
	Precision       string `koanf:"precision"`
}

func (c *InfluxDBConfig) SetDefaults() {
	c.Addr = "http://localhost:8086"
	c.Database = "kafka"
	c.Precision = "s"
}

func (c *InfluxDBConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("influxdb address must be set")
	}
	if c.Database == "" {
		return fmt.Errorf("influxdb database must be set")
	}
	return nil
}

// DatadogConfig configures the reporter that posts metrics to the Datadog API.
type DatadogConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"apiKey"`
	AppKey  string `koanf:"appKey"`

	// Host is attached to each posted metric. It is omitted if empty.
	Host string `koanf:"host"`
}

func (c *DatadogConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.APIKey == "" {
		return fmt.Errorf("datadog api key must be set")
	}
	return nil
}

// splitHostPort splits an address into host and port, both are optional.
func splitHostPort(addr string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given
		host = addr
		portStr = ""
	}
	if host == "" {
		host = "localhost"
	}
	if portStr == "" {
		return host, defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid host:port addr '%v': %w", addr, err)
	}
	return host, port, nil
}
