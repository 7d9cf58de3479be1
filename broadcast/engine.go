//go:build linux || darwin

// Package broadcast implements the publisher's fan-out engine: one
// readiness-polling loop, N subscriber sockets, and a pacing scheduler that
// targets a configured events/sec rate. Fan-out is lossy under backpressure:
// a peer whose kernel send buffer is full silently misses the frame, a peer
// that errors is disconnected. The engine is single-threaded; only SetRate,
// Rate, TotalMessagesSent and TotalBytesSent may be called from another
// goroutine.
//
// The readiness primitive is platform-specific: epoll on linux, kqueue on
// darwin (poller_linux.go / poller_darwin.go).
package broadcast

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"market-feed-go/latency"
	"market-feed-go/metrics"
	"market-feed-go/wire"
)

const maxPollEvents = 64

// pollEvent is the normalized readiness report shared by both pollers.
type pollEvent struct {
	fd     int
	hangup bool
}

// Generator is the event source contract the engine consumes.
type Generator interface {
	GenerateTick(symbolID uint16, h *wire.Header) bool
	FillTradePayload(symbolID uint16, p *wire.TradePayload)
	FillQuotePayload(symbolID uint16, p *wire.QuotePayload)
}

// Config holds the engine's static parameters.
type Config struct {
	Port       int
	NumSymbols int
	Rate       uint32 // target events/sec; 0 emits nothing
}

// Peer is per-subscriber connection state.
type Peer struct {
	fd             int
	active         bool
	messagesSent   uint64
	bytesSent      uint64
	lastSendTimeNs uint64
	remote         string
}

// PeerStats is a read-only view of a peer's counters.
type PeerStats struct {
	Remote       string
	MessagesSent uint64
	BytesSent    uint64
}

// Engine owns the listening socket, the readiness poller, and the peer list.
type Engine struct {
	cfg Config
	gen Generator
	log *zap.Logger

	// encodeLatency times the generation->encode span per emission.
	encodeLatency *latency.Tracker

	listenFD int
	poll     *poller
	running  atomic.Bool

	intervalNs atomic.Uint64 // 0 disables emission
	rate       atomic.Uint64
	lastTickNs uint64
	nextSymbol int

	peers  []*Peer
	events [maxPollEvents]pollEvent
	frame  [wire.MaxFrameSize]byte

	totalMessagesSent atomic.Uint64
	totalBytesSent    atomic.Uint64

	nowNs func() uint64
}

// New builds an Engine. encodeLatency may be nil to disable timing.
func New(cfg Config, gen Generator, encodeLatency *latency.Tracker, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:           cfg,
		gen:           gen,
		log:           log,
		encodeLatency: encodeLatency,
		listenFD:      -1,
		nowNs:         func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	e.SetRate(cfg.Rate)
	return e
}

// Start creates the listener (non-blocking, SO_REUSEADDR, TCP_NODELAY),
// binds, listens at the OS backlog maximum, and registers it with a fresh
// readiness poller. Errors here are fatal for the publisher.
func (e *Engine) Start() error {
	fd, err := newListenSocket()
	if err != nil {
		return fmt.Errorf("create listen socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set TCP_NODELAY: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: e.cfg.Port}); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind port %d: %w", e.cfg.Port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen: %w", err)
	}

	poll, err := newPoller()
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("create poller: %w", err)
	}
	if err := poll.addListener(fd); err != nil {
		poll.close()
		unix.Close(fd)
		return fmt.Errorf("register listener: %w", err)
	}

	e.listenFD = fd
	e.poll = poll
	e.lastTickNs = e.nowNs()
	e.running.Store(true)

	metrics.TickRate.Set(float64(e.rate.Load()))
	e.log.Info("broadcast engine started",
		zap.Int("port", e.cfg.Port),
		zap.Int("symbols", e.cfg.NumSymbols),
		zap.Uint64("rate", e.rate.Load()))
	return nil
}

// Port returns the bound listen port. Useful when Config.Port was 0.
func (e *Engine) Port() int {
	if e.listenFD < 0 {
		return e.cfg.Port
	}
	sa, err := unix.Getsockname(e.listenFD)
	if err != nil {
		return e.cfg.Port
	}
	if a, ok := sa.(*unix.SockaddrInet4); ok {
		return a.Port
	}
	return e.cfg.Port
}

// Stop closes every peer, the poller, and the listener, and reports totals.
// Safe to call more than once.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	for _, p := range e.peers {
		if p.active {
			unix.Close(p.fd)
			p.active = false
		}
	}
	e.peers = e.peers[:0]
	metrics.ConnectedPeers.Set(0)

	if e.poll != nil {
		e.poll.close()
		e.poll = nil
	}
	if e.listenFD >= 0 {
		unix.Close(e.listenFD)
		e.listenFD = -1
	}
	e.log.Info("broadcast engine stopped",
		zap.Uint64("messages_sent", e.totalMessagesSent.Load()),
		zap.Uint64("bytes_sent", e.totalBytesSent.Load()))
}

// SetRate retargets the pacing scheduler. Zero emits no frames.
func (e *Engine) SetRate(rate uint32) {
	e.rate.Store(uint64(rate))
	if rate == 0 {
		e.intervalNs.Store(0)
	} else {
		e.intervalNs.Store(uint64(time.Second) / uint64(rate))
	}
	metrics.TickRate.Set(float64(rate))
}

// Rate returns the current target events/sec.
func (e *Engine) Rate() uint32 { return uint32(e.rate.Load()) }

// Running reports whether Start succeeded and Stop has not been called.
func (e *Engine) Running() bool { return e.running.Load() }

// RunOnce performs one iteration of the cooperative loop: a non-suspending
// readiness poll, accept-drain and peer-error handling, then at most one
// paced emission.
func (e *Engine) RunOnce() {
	if !e.running.Load() {
		return
	}

	n, err := e.poll.wait(e.events[:])
	if err != nil {
		if err != unix.EINTR {
			e.log.Error("readiness poll failed", zap.Error(err))
		}
		return
	}

	for i := 0; i < n; i++ {
		ev := e.events[i]

		if ev.hangup {
			if ev.fd == e.listenFD {
				e.log.Error("listen socket error, shutting down")
				e.running.Store(false)
				return
			}
			e.disconnectFD(ev.fd)
			continue
		}
		if ev.fd == e.listenFD {
			e.acceptDrain()
		}
	}

	interval := e.intervalNs.Load()
	now := e.nowNs()
	if interval > 0 && now-e.lastTickNs >= interval {
		e.generateAndBroadcast(uint16(e.nextSymbol))
		e.nextSymbol = (e.nextSymbol + 1) % e.cfg.NumSymbols
		e.lastTickNs = now
	}
}

// Run drives RunOnce until stop is closed, with a short sleep per iteration
// to avoid spinning the poller flat out.
func (e *Engine) Run(stop <-chan struct{}) {
	for e.running.Load() {
		select {
		case <-stop:
			return
		default:
		}
		e.RunOnce()
		time.Sleep(10 * time.Microsecond)
	}
}

// acceptDrain accepts until the listener would block. Each peer socket is
// made non-blocking with Nagle off and watched for hangup only; writability
// is never polled.
func (e *Engine) acceptDrain() {
	for {
		fd, sa, err := acceptConn(e.listenFD)
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			e.log.Warn("accept failed", zap.Error(err))
			break
		}
		if err := setPeerSockOpts(fd); err != nil {
			unix.Close(fd)
			continue
		}
		if err := e.poll.addPeer(fd); err != nil {
			unix.Close(fd)
			continue
		}

		peer := &Peer{fd: fd, active: true, remote: sockaddrString(sa)}
		e.peers = append(e.peers, peer)
		metrics.ConnectedPeers.Set(float64(len(e.peers)))
		e.log.Info("peer connected",
			zap.String("remote", peer.remote),
			zap.Int("peers", len(e.peers)))
	}
}

// generateAndBroadcast produces one event for symbolID, encodes it into the
// engine's frame buffer, and fans it out to every peer.
func (e *Engine) generateAndBroadcast(symbolID uint16) {
	var tm latency.Timer
	if e.encodeLatency != nil {
		tm = latency.StartTimer(e.encodeLatency)
	}

	var h wire.Header
	var n int
	if e.gen.GenerateTick(symbolID, &h) {
		var p wire.TradePayload
		e.gen.FillTradePayload(symbolID, &p)
		n = wire.EncodeTrade(e.frame[:], &h, &p)
	} else {
		var p wire.QuotePayload
		e.gen.FillQuotePayload(symbolID, &p)
		n = wire.EncodeQuote(e.frame[:], &h, &p)
	}

	if e.encodeLatency != nil {
		tm.Stop()
	}
	e.broadcast(e.frame[:n])
}

// broadcast attempts one non-blocking write of frame to each peer, in list
// order. Peers that fail hard are removed in place by swap-with-last, so the
// index only advances on survivors.
func (e *Engine) broadcast(frame []byte) {
	if len(e.peers) == 0 {
		return
	}
	for i := 0; i < len(e.peers); {
		if e.sendToPeer(e.peers[i], frame) {
			i++
		} else {
			e.removePeer(i)
		}
	}

	e.totalMessagesSent.Add(1)
	e.totalBytesSent.Add(uint64(len(frame)))
	metrics.MessagesSent.Inc()
	metrics.BytesSent.Add(float64(len(frame)))
}

// sendToPeer writes the whole frame without blocking. A full send buffer
// drops the frame for this peer and keeps the connection; a partial write or
// any other error reports failure so the caller disconnects the peer.
func (e *Engine) sendToPeer(p *Peer, frame []byte) bool {
	n, err := unix.SendmsgN(p.fd, frame, nil, nil, sendFlags)
	if err != nil {
		if err == unix.EAGAIN {
			metrics.FramesDropped.Inc()
			return true
		}
		return false
	}
	if n != len(frame) {
		// No per-peer pending queue: a short write would desync the
		// peer's stream, so the peer is cut instead.
		return false
	}

	p.messagesSent++
	p.bytesSent += uint64(len(frame))
	p.lastSendTimeNs = e.nowNs()
	return true
}

// removePeer closes and deletes peers[i] via swap-with-last-and-pop.
func (e *Engine) removePeer(i int) {
	p := e.peers[i]
	if p.active {
		e.poll.removePeer(p.fd)
		unix.Close(p.fd)
		p.active = false
	}
	e.log.Info("peer disconnected",
		zap.String("remote", p.remote),
		zap.Uint64("messages_sent", p.messagesSent),
		zap.Uint64("bytes_sent", p.bytesSent))

	last := len(e.peers) - 1
	e.peers[i] = e.peers[last]
	e.peers = e.peers[:last]

	metrics.ConnectedPeers.Set(float64(len(e.peers)))
	metrics.PeerDisconnects.Inc()
}

// disconnectFD removes the peer owning fd, if any.
func (e *Engine) disconnectFD(fd int) {
	for i, p := range e.peers {
		if p.fd == fd {
			e.removePeer(i)
			return
		}
	}
}

// ConnectedClients returns the live peer count.
func (e *Engine) ConnectedClients() int { return len(e.peers) }

// TotalMessagesSent returns the engine-wide emission count.
func (e *Engine) TotalMessagesSent() uint64 { return e.totalMessagesSent.Load() }

// TotalBytesSent returns the engine-wide emitted byte count.
func (e *Engine) TotalBytesSent() uint64 { return e.totalBytesSent.Load() }

// PeerSnapshots copies the per-peer counters for reporting.
func (e *Engine) PeerSnapshots() []PeerStats {
	out := make([]PeerStats, 0, len(e.peers))
	for _, p := range e.peers {
		out = append(out, PeerStats{Remote: p.remote, MessagesSent: p.messagesSent, BytesSent: p.bytesSent})
	}
	return out
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
