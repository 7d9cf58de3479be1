package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
env: test
feed:
  port: 9876
  symbols: 64
  rate: 50000
subscriber:
  addr: "127.0.0.1:9876"
  heartbeatTimeoutMs: 5000
latency:
  bucketSizeNs: 100
  maxLatencyNs: 1000000
monitor:
  addr: ":8081"
  topN: 5
metricsAddr: ":9100"
log:
  level: info
  format: json
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	require.Equal(t, "test", cfg.Env)
	require.Equal(t, 9876, cfg.Feed.Port)
	require.Equal(t, 64, cfg.Feed.Symbols)
	require.Equal(t, uint32(50000), cfg.Feed.Rate)
	require.Equal(t, ":8081", cfg.Monitor.Addr)
	require.Equal(t, 5, cfg.Monitor.TopN)
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\n"))
	require.NoError(t, err)
	require.Equal(t, 9876, cfg.Feed.Port)
	require.Equal(t, 100, cfg.Feed.Symbols)
	require.Equal(t, uint32(100000), cfg.Feed.Rate)
	require.Equal(t, 5000, cfg.Subscriber.HeartbeatTimeoutMs)
	require.Equal(t, uint64(100), cfg.Latency.BucketSizeNs)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "feed: [not a map"))
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty env", func(c *AppConfig) { c.Env = "" }},
		{"zero port", func(c *AppConfig) { c.Feed.Port = 0 }},
		{"port too large", func(c *AppConfig) { c.Feed.Port = 70000 }},
		{"zero symbols", func(c *AppConfig) { c.Feed.Symbols = 0 }},
		{"symbols beyond u16", func(c *AppConfig) { c.Feed.Symbols = 100000 }},
		{"empty subscriber addr", func(c *AppConfig) { c.Subscriber.Addr = "" }},
		{"zero bucket", func(c *AppConfig) { c.Latency.BucketSizeNs = 0 }},
		{"max below bucket", func(c *AppConfig) { c.Latency.MaxLatencyNs = 10; c.Latency.BucketSizeNs = 100 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, Validate(cfg))
		})
	}
}

func TestValidateDefault(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MF_SUBSCRIBER_ADDR", "10.0.0.5:4000")
	t.Setenv("MF_METRICS_ADDR", ":9999")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, validYAML))
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5:4000", cfg.Subscriber.Addr)
	require.Equal(t, ":9999", cfg.MetricsAddr)
}
