package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"market-feed-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration for both daemons.
type AppConfig struct {
	Env         string           `yaml:"env"`
	Feed        FeedConfig       `yaml:"feed"`
	Subscriber  SubscriberConfig `yaml:"subscriber"`
	Latency     LatencyConfig    `yaml:"latency"`
	Monitor     MonitorConfig    `yaml:"monitor"`
	MetricsAddr string           `yaml:"metricsAddr"`
	Log         logger.Config    `yaml:"log"`
}

// FeedConfig parameterizes the publisher's broadcast engine.
type FeedConfig struct {
	Port    int    `yaml:"port"`
	Symbols int    `yaml:"symbols"`
	Rate    uint32 `yaml:"rate"` // target events/sec; 0 emits nothing
}

// SubscriberConfig parameterizes the feed client.
type SubscriberConfig struct {
	Addr               string `yaml:"addr"`
	HeartbeatTimeoutMs int    `yaml:"heartbeatTimeoutMs"`
	ValidateIntegrity  *bool  `yaml:"validateIntegrity"` // nil = enabled
	ValidateSequence   *bool  `yaml:"validateSequence"`  // nil = enabled
	ReadBufferSize     int    `yaml:"readBufferSize"`
}

// LatencyConfig sizes the latency histograms.
type LatencyConfig struct {
	BucketSizeNs uint64 `yaml:"bucketSizeNs"`
	MaxLatencyNs uint64 `yaml:"maxLatencyNs"`
}

// MonitorConfig parameterizes the websocket display surface.
type MonitorConfig struct {
	Addr             string `yaml:"addr"` // empty disables
	TopN             int    `yaml:"topN"`
	UpdateIntervalMs int    `yaml:"updateIntervalMs"`
}

// Default returns the configuration used when no file is given, matching the
// reference deployment: port 9876, 100 symbols, 100k events/sec.
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Feed: FeedConfig{
			Port:    9876,
			Symbols: 100,
			Rate:    100000,
		},
		Subscriber: SubscriberConfig{
			Addr:               "127.0.0.1:9876",
			HeartbeatTimeoutMs: 5000,
			ReadBufferSize:     4096,
		},
		Latency: LatencyConfig{
			BucketSizeNs: 100,
			MaxLatencyNs: 1_000_000,
		},
		Monitor: MonitorConfig{
			TopN:             10,
			UpdateIntervalMs: 1000,
		},
		MetricsAddr: ":9100",
		Log:         logger.DefaultConfig(),
	}
}

// Load reads YAML config from path over the defaults and validates it.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment-specific
// fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("MF_SUBSCRIBER_ADDR"); v != "" {
		cfg.Subscriber.Addr = v
	}
	if v := os.Getenv("MF_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg, Validate(cfg)
}
