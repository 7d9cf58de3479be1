// Package metrics provides Prometheus metrics for the market data feed
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-feed-go/latency"
)

// Publisher side.
var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_messages_sent_total",
		Help: "Frames emitted by the broadcast engine, one per tick",
	})
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_bytes_sent_total",
		Help: "Frame bytes emitted by the broadcast engine",
	})
	ConnectedPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_connected_peers",
		Help: "Currently connected subscriber sockets",
	})
	PeerDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_peer_disconnects_total",
		Help: "Peers removed after a write error or hangup",
	})
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_frames_dropped_total",
		Help: "Frames dropped for a peer whose send buffer was full",
	})
	TickRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_tick_rate",
		Help: "Configured target events per second",
	})
)

// Subscriber side.
var (
	MessagesParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_messages_parsed_total",
		Help: "Frames accepted by the stream reframer",
	})
	SequenceGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_sequence_gaps_total",
		Help: "Observed sequence discontinuities, one per gap event",
	})
	IntegrityErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_integrity_errors_total",
		Help: "Frames dropped on integrity-word mismatch",
	})
	MalformedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_malformed_total",
		Help: "Resyncs on unknown type bytes plus buffer-overflow resets",
	})
	CacheUpdates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_cache_updates_total",
		Help: "Approximate total symbol cache updates",
	})
)

// LatencyStats exports per-stage histogram summaries in nanoseconds. Stages
// in use: "encode" (publisher), "apply" and "wire" (subscriber).
var LatencyStats = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "feed_latency_ns",
	Help: "Latency summary per pipeline stage in nanoseconds",
}, []string{"stage", "stat"})

// ObserveLatency mirrors a latency.Stats snapshot into the stage's gauges.
func ObserveLatency(stage string, s latency.Stats) {
	LatencyStats.WithLabelValues(stage, "min").Set(float64(s.MinNs))
	LatencyStats.WithLabelValues(stage, "max").Set(float64(s.MaxNs))
	LatencyStats.WithLabelValues(stage, "mean").Set(float64(s.MeanNs))
	LatencyStats.WithLabelValues(stage, "p50").Set(float64(s.P50Ns))
	LatencyStats.WithLabelValues(stage, "p95").Set(float64(s.P95Ns))
	LatencyStats.WithLabelValues(stage, "p99").Set(float64(s.P99Ns))
	LatencyStats.WithLabelValues(stage, "p999").Set(float64(s.P999Ns))
}

// UpdateParserStats mirrors reframer counters into prometheus. The prometheus
// counters are monotonic, so callers pass deltas since the previous call.
func UpdateParserStats(parsed, gaps, integrity, malformed uint64) {
	MessagesParsed.Add(float64(parsed))
	SequenceGaps.Add(float64(gaps))
	IntegrityErrors.Add(float64(integrity))
	MalformedMessages.Add(float64(malformed))
}

// StartMetricsServer serves /metrics on addr; empty addr disables it.
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
