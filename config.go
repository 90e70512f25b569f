package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/cloudhut/kconsumer/check"
	"github.com/cloudhut/kconsumer/kafka"
	"github.com/cloudhut/kconsumer/logging"
	"github.com/cloudhut/kconsumer/offsets"
	"github.com/cloudhut/kconsumer/prometheus"
	"github.com/cloudhut/kconsumer/report"
	"github.com/cloudhut/kconsumer/zookeeper"
)

type Config struct {
	Kafka     kafka.Config      `koanf:"kafka"`
	Offsets   offsets.Config    `koanf:"offsets"`
	Check     check.Config      `koanf:"check"`
	Exporter  prometheus.Config `koanf:"exporter"`
	Reporters report.Config     `koanf:"reporters"`
	Zookeeper zookeeper.Config  `koanf:"zookeeper"`
	Logger    logging.Config    `koanf:"logger"`
	Tracing   TracingConfig     `koanf:"tracing"`
}

// TracingConfig configures the Datadog tracer that traces each check cycle.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"serviceName"`
	AgentAddr   string `koanf:"agentAddr"`
}

func (c *TracingConfig) SetDefaults() {
	c.ServiceName = "kconsumer"
	c.AgentAddr = "localhost:8126"
}

func (c *Config) SetDefaults() {
	c.Kafka.SetDefaults()
	c.Offsets.SetDefaults()
	c.Check.SetDefaults()
	c.Exporter.SetDefaults()
	c.Reporters.SetDefaults()
	c.Zookeeper.SetDefaults()
	c.Logger.SetDefaults()
	c.Tracing.SetDefaults()
}

func (c *Config) Validate() error {
	err := c.Kafka.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate kafka config: %w", err)
	}

	err = c.Offsets.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate offsets config: %w", err)
	}

	err = c.Check.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate check config: %w", err)
	}

	err = c.Exporter.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate exporter config: %w", err)
	}

	err = c.Reporters.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate reporters config: %w", err)
	}

	// ZooKeeper is only contacted if it is the configured offset source
	if c.Offsets.Source == offsets.SourceZookeeper {
		err = c.Zookeeper.Validate()
		if err != nil {
			return fmt.Errorf("failed to validate zookeeper config: %w", err)
		}
	}

	err = c.Logger.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate logger config: %w", err)
	}

	return nil
}

// newConfig loads the YAML config from the given path, or from the path in CONFIG_FILEPATH if no path is given,
// and overlays it with environment variables.
func newConfig(logger *zap.Logger, configFilepath string) (Config, error) {
	k := koanf.New(".")
	var cfg Config
	cfg.SetDefaults()

	// 1. Check if a config filepath is set via flags or env. If there is one we'll try to load the file using a YAML Parser
	envKey := "CONFIG_FILEPATH"
	if configFilepath == "" {
		configFilepath = os.Getenv(envKey)
	}
	if configFilepath == "" {
		logger.Info("the env variable '" + envKey + "' is not set, therefore no YAML config will be loaded")
	} else {
		err := k.Load(file.Provider(configFilepath), yaml.Parser())
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	// We could unmarshal the loaded koanf input after loading both providers, however we want to unmarshal the YAML
	// config with `ErrorUnused` set to true, but unmarshal environment variables with `ErrorUnused` set to false (default).
	// Rationale: Orchestrators like Kubernetes inject unrelated environment variables, which we still want to allow.
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag:       "",
		FlatPaths: false,
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc()),
			Metadata:         nil,
			Result:           &cfg,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		},
	})
	if err != nil {
		return Config{}, err
	}

	err = k.Load(env.ProviderWithValue("", ".", func(s string, v string) (string, interface{}) {
		key := strings.ReplaceAll(strings.ToLower(s), "_", ".")
		// Check to exist if we have a configuration option already and see if it's a slice
		// If there is a comma in the value, split the value into a slice by the comma.
		if strings.Contains(v, ",") {
			return key, strings.Split(v, ",")
		}

		// Otherwise return the new key with the unaltered value
		return key, v
	}), nil)
	if err != nil {
		return Config{}, err
	}

	err = k.Unmarshal("", &cfg)
	if err != nil {
		return Config{}, err
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("failed to validate config: %w", err)
	}

	return cfg, nil
}
