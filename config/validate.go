package config

import (
	"errors"
	"fmt"
)

// Validate ensures required fields are present and in range.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Feed.Port <= 0 || cfg.Feed.Port > 65535 {
		return fmt.Errorf("feed.port %d out of range", cfg.Feed.Port)
	}
	if cfg.Feed.Symbols <= 0 {
		return errors.New("feed.symbols must be > 0")
	}
	if cfg.Feed.Symbols > 65536 {
		// symbol_id is a u16 on the wire
		return fmt.Errorf("feed.symbols %d exceeds wire limit", cfg.Feed.Symbols)
	}
	if cfg.Subscriber.Addr == "" {
		return errors.New("subscriber.addr is required")
	}
	if cfg.Subscriber.HeartbeatTimeoutMs < 0 {
		return errors.New("subscriber.heartbeatTimeoutMs must be >= 0")
	}
	if cfg.Subscriber.ReadBufferSize < 0 {
		return errors.New("subscriber.readBufferSize must be >= 0")
	}
	if cfg.Latency.BucketSizeNs == 0 {
		return errors.New("latency.bucketSizeNs must be > 0")
	}
	if cfg.Latency.MaxLatencyNs < cfg.Latency.BucketSizeNs {
		return errors.New("latency.maxLatencyNs must be >= bucketSizeNs")
	}
	if cfg.Monitor.TopN < 0 {
		return errors.New("monitor.topN must be >= 0")
	}
	if cfg.Monitor.UpdateIntervalMs < 0 {
		return errors.New("monitor.updateIntervalMs must be >= 0")
	}
	return nil
}
