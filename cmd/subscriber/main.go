// The subscriber daemon: consumes the feed over TCP, maintains the symbol
// cache, and exposes prometheus metrics plus an optional websocket monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"market-feed-go/config"
	"market-feed-go/infrastructure/logger"
	"market-feed-go/metrics"
	"market-feed-go/monitor"
	"market-feed-go/subscriber"
)

func main() {
	cfgPath := flag.String("config", "", "YAML config path (optional)")
	addr := flag.String("addr", "", "publisher address (overrides config)")
	symbols := flag.Int("symbols", 0, "number of symbols (overrides config)")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus listen addr (overrides config)")
	monitorAddr := flag.String("monitorAddr", "", "websocket monitor addr (overrides config)")
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
		case "addr":
			cfg.Subscriber.Addr = *addr
		case "symbols":
			cfg.Feed.Symbols = *symbols
		case "metricsAddr":
			cfg.MetricsAddr = *metricsAddr
		case "monitorAddr":
			cfg.Monitor.Addr = *monitorAddr
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

	client := subscriber.New(subscriber.Config{
		Addr:             cfg.Subscriber.Addr,
		NumSymbols:       cfg.Feed.Symbols,
		HeartbeatTimeout: time.Duration(cfg.Subscriber.HeartbeatTimeoutMs) * time.Millisecond,
		ReadBufferSize:   cfg.Subscriber.ReadBufferSize,
	}, zlog.Logger)
	if v := cfg.Subscriber.ValidateIntegrity; v != nil {
		client.SetValidateIntegrity(*v)
	}
	if v := cfg.Subscriber.ValidateSequence; v != nil {
		client.SetValidateSequence(*v)
	}

	if err := client.Connect(); err != nil {
		zlog.Error("connect to feed", zap.Error(err))
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon := monitor.NewServer(monitor.Config{
		Addr:           cfg.Monitor.Addr,
		TopN:           cfg.Monitor.TopN,
		UpdateInterval: time.Duration(cfg.Monitor.UpdateIntervalMs) * time.Millisecond,
	}, client, zlog.Logger)
	mon.Start(ctx)
	defer mon.Stop()

	// Periodic stats line.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := client.Stats()
				apply := client.ApplyLatency().Stats()
				zlog.Info("subscriber stats",
					zap.Uint64("parsed", st.Parsed),
					zap.Uint64("trades", st.Trades),
					zap.Uint64("quotes", st.Quotes),
					zap.Uint64("gaps", st.Gaps),
					zap.Uint64("integrity_errors", st.IntegrityErrors),
					zap.Uint64("malformed", st.Malformed),
					zap.Uint64("cache_updates", client.Cache().TotalUpdates()),
					zap.Uint64("apply_p50_ns", apply.P50Ns),
					zap.Uint64("apply_p99_ns", apply.P99Ns))
				client.FlushMetrics()
			}
		}
	}()

	err = client.Run(ctx)
	switch {
	case err == nil:
		zlog.Info("shutting down", zap.Uint64("parsed", client.Stats().Parsed))
	case errors.Is(err, subscriber.ErrFeedSilent):
		zlog.Error("feed silent beyond heartbeat window, exiting", zap.Error(err))
		os.Exit(1)
	default:
		zlog.Error("feed terminated", zap.Error(err))
		os.Exit(1)
	}
}
