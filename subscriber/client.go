// Package subscriber consumes the feed: it owns the TCP connection, drives
// the stream reframer from a single goroutine, and applies parsed events to
// the symbol cache. Display and analytics threads read the cache through its
// wait-free snapshot protocol; they never touch the connection.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"market-feed-go/cache"
	"market-feed-go/latency"
	"market-feed-go/metrics"
	"market-feed-go/parser"
	"market-feed-go/wire"
)

// ErrFeedSilent reports that no frame arrived within the heartbeat window,
// so the connection is deemed dead. Reconnection policy belongs to the
// caller.
var ErrFeedSilent = errors.New("no frames within heartbeat window")

// quoteEpsilon rebuilds a degenerate quote around its mid.
const quoteEpsilon = 0.01

// Config holds subscriber parameters.
type Config struct {
	Addr             string
	NumSymbols       int
	HeartbeatTimeout time.Duration // default 5s
	ReadBufferSize   int           // default 4096
}

// Client wires connection, reframer, cache, and latency trackers together.
// Exactly one goroutine runs Run; the cache writer discipline depends on it.
type Client struct {
	cfg Config
	log *zap.Logger

	conn   net.Conn
	parser *parser.Parser
	cache  *cache.SymbolCache

	// applyLatency times the parse->apply span; wireLatency measures
	// publisher timestamp to local receipt, meaningful on one host only.
	applyLatency *latency.Tracker
	wireLatency  *latency.Tracker

	lastStats parser.Stats
}

// New builds a Client. The cache is sized at cfg.NumSymbols and owned by the
// client; readers obtain it via Cache.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 5 * time.Second
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 4096
	}
	c := &Client{
		cfg:          cfg,
		log:          log,
		cache:        cache.New(cfg.NumSymbols),
		applyLatency: latency.NewTracker(latency.DefaultBucketSizeNs, latency.DefaultMaxLatencyNs),
		wireLatency:  latency.NewTracker(1000, 100_000_000),
	}
	c.parser = parser.New(c)
	return c
}

// SetValidateIntegrity toggles the reframer's integrity check.
func (c *Client) SetValidateIntegrity(v bool) { c.parser.SetValidateIntegrity(v) }

// SetValidateSequence toggles the reframer's gap accounting.
func (c *Client) SetValidateSequence(v bool) { c.parser.SetValidateSequence(v) }

// Cache exposes the symbol cache for snapshot readers.
func (c *Client) Cache() *cache.SymbolCache { return c.cache }

// Stats returns the reframer counters.
func (c *Client) Stats() parser.Stats { return c.parser.Stats() }

// ApplyLatency returns the parse->apply histogram.
func (c *Client) ApplyLatency() *latency.Tracker { return c.applyLatency }

// WireLatency returns the publisher->subscriber histogram.
func (c *Client) WireLatency() *latency.Tracker { return c.wireLatency }

// Connect dials the publisher.
func (c *Client) Connect() error {
	conn, err := net.Dial("tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	c.conn = conn
	c.log.Info("connected to feed", zap.String("addr", c.cfg.Addr))
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Run reads the stream until ctx is canceled or the feed goes silent for the
// heartbeat window. It must be the only goroutine feeding this client.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("not connected")
	}

	// Unblock the read when the caller cancels.
	watchdog := make(chan struct{})
	defer close(watchdog)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.SetReadDeadline(time.Now())
		case <-watchdog:
		}
	}()

	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		if ctx.Err() != nil {
			return nil
		}
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.parser.Feed(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return ErrFeedSilent
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("feed closed: %w", err)
			}
			return fmt.Errorf("read feed: %w", err)
		}
	}
}

// OnTrade applies a trade print to the cache.
func (c *Client) OnTrade(h wire.Header, p wire.TradePayload) {
	tm := latency.StartTimer(c.applyLatency)
	c.cache.UpdateTrade(h.SymbolID, p.Price, p.Quantity)
	tm.Stop()
	c.recordWireLatency(h.TimestampNs)
}

// OnQuote applies both sides in one cache write cycle. A degenerate quote
// (bid >= ask) is rebuilt around its mid so the cached pair always satisfies
// bid < ask.
func (c *Client) OnQuote(h wire.Header, p wire.QuotePayload) {
	bid, ask := p.BidPrice, p.AskPrice
	if bid >= ask {
		mid := (bid + ask) / 2
		bid = mid - quoteEpsilon
		ask = mid + quoteEpsilon
	}
	tm := latency.StartTimer(c.applyLatency)
	c.cache.UpdateQuote(h.SymbolID, bid, p.BidQuantity, ask, p.AskQuantity)
	tm.Stop()
	c.recordWireLatency(h.TimestampNs)
}

// OnHeartbeat only refreshes liveness, which the read deadline already
// covers; nothing to apply.
func (c *Client) OnHeartbeat(h wire.Header) {
	c.recordWireLatency(h.TimestampNs)
}

// recordWireLatency measures publisher stamp to now, skipping samples where
// clock skew would underflow.
func (c *Client) recordWireLatency(sentNs uint64) {
	now := uint64(time.Now().UnixNano())
	if now > sentNs {
		c.wireLatency.Record(now - sentNs)
	}
}

// FlushMetrics pushes counter deltas and latency summaries to prometheus.
// Call it from the stats ticker, not the read loop.
func (c *Client) FlushMetrics() {
	st := c.parser.Stats()
	metrics.UpdateParserStats(
		st.Parsed-c.lastStats.Parsed,
		st.Gaps-c.lastStats.Gaps,
		st.IntegrityErrors-c.lastStats.IntegrityErrors,
		st.Malformed-c.lastStats.Malformed,
	)
	c.lastStats = st

	metrics.CacheUpdates.Set(float64(c.cache.TotalUpdates()))
	metrics.ObserveLatency("apply", c.applyLatency.Stats())
	metrics.ObserveLatency("wire", c.wireLatency.Stats())
}
