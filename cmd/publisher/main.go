//go:build linux || darwin

// The publisher daemon: synthesizes per-symbol price events with GBM and
// broadcasts them over TCP to every connected subscriber.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"market-feed-go/broadcast"
	"market-feed-go/config"
	"market-feed-go/feedgen"
	"market-feed-go/infrastructure/logger"
	"market-feed-go/latency"
	"market-feed-go/metrics"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config path (optional)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	symbols := flag.Int("symbols", 0, "number of symbols (overrides config)")
	rate := flag.Uint("rate", 0, "target events/sec (overrides config)")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus listen addr (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.LoadWithEnvOverrides(*cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Feed.Port = *port
		case "symbols":
			cfg.Feed.Symbols = *symbols
		case "rate":
			cfg.Feed.Rate = uint32(*rate)
		case "metricsAddr":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Close()

	metrics.StartMetricsServer(cfg.MetricsAddr)

	gen := feedgen.New()
	gen.Initialize(cfg.Feed.Symbols)

	encodeLatency := latency.NewTracker(cfg.Latency.BucketSizeNs, cfg.Latency.MaxLatencyNs)
	engine := broadcast.New(broadcast.Config{
		Port:       cfg.Feed.Port,
		NumSymbols: cfg.Feed.Symbols,
		Rate:       cfg.Feed.Rate,
	}, gen, encodeLatency, zlog.Logger)

	if err := engine.Start(); err != nil {
		zlog.Error("start broadcast engine", zap.Error(err))
		os.Exit(1)
	}
	defer engine.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Live rate retargeting when running from a config file.
	if *cfgPath != "" {
		go func() {
			err := config.Watcher{Path: *cfgPath}.Start(ctx, func(next config.AppConfig) {
				if next.Feed.Rate != engine.Rate() {
					zlog.LogFeed("rate_change", map[string]interface{}{
						"old": engine.Rate(),
						"new": next.Feed.Rate,
					})
					engine.SetRate(next.Feed.Rate)
				}
			})
			if err != nil && ctx.Err() == nil {
				zlog.Warn("config watcher stopped", zap.Error(err))
			}
		}()
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	// Periodic stats line like the reference server.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		var lastMsgs uint64
		lastTime := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				msgs := engine.TotalMessagesSent()
				elapsed := now.Sub(lastTime).Seconds()
				rate := float64(msgs-lastMsgs) / elapsed
				zlog.Info("feed stats",
					zap.Int("clients", engine.ConnectedClients()),
					zap.Uint64("messages", msgs),
					zap.Float64("rate", rate),
					zap.Uint64("bytes", engine.TotalBytesSent()))
				metrics.ObserveLatency("encode", encodeLatency.Stats())
				lastMsgs = msgs
				lastTime = now
			}
		}
	}()

	engine.Run(ctx.Done())

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	zlog.Info("shutting down",
		zap.Uint64("total_messages", engine.TotalMessagesSent()),
		zap.Uint64("total_bytes", engine.TotalBytesSent()))
}
