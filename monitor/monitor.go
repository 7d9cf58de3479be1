// Package monitor streams live feed state over websockets: top-N symbol
// snapshots, reframer counters, and latency summaries as periodic JSON
// frames. A slow websocket client skips frames; it never blocks the
// pipeline.
package monitor

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-feed-go/cache"
	"market-feed-go/latency"
	"market-feed-go/parser"
	"market-feed-go/subscriber"
)

// SymbolRow is one symbol's state in a stream frame.
type SymbolRow struct {
	SymbolID    uint16  `json:"symbol_id"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
	BidQty      uint32  `json:"bid_qty"`
	AskQty      uint32  `json:"ask_qty"`
	LastPrice   float64 `json:"last_price"`
	LastQty     uint32  `json:"last_qty"`
	UpdateCount uint64  `json:"update_count"`
}

// Frame is one JSON message pushed to every websocket client.
type Frame struct {
	TimestampMs  int64         `json:"ts_ms"`
	Symbols      []SymbolRow   `json:"symbols"`
	Parser       parser.Stats  `json:"parser"`
	ApplyLatency latency.Stats `json:"apply_latency"`
	WireLatency  latency.Stats `json:"wire_latency"`
}

// Config holds the monitor surface parameters.
type Config struct {
	Addr           string        // listen address, empty disables
	TopN           int           // symbols per frame, ranked by update count
	UpdateInterval time.Duration // frame period
}

// Server owns the websocket endpoint and the periodic snapshot loop.
type Server struct {
	cfg    Config
	client *subscriber.Client
	log    *zap.Logger

	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan Frame]struct{}

	httpServer *http.Server
}

// NewServer builds a monitor over client's cache and counters.
func NewServer(cfg Config, client *subscriber.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = time.Second
	}
	return &Server{
		cfg:    cfg,
		client: client,
		log:    log,
		upgrader: websocket.Upgrader{
			// The monitor is an operator surface; origins are not checked.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		subs: make(map[chan Frame]struct{}),
	}
}

// Start serves the /ws endpoint and begins the snapshot loop. No-op when
// Addr is empty.
func (s *Server) Start(ctx context.Context) {
	if s.cfg.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: mux}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn("monitor server stopped", zap.Error(err))
		}
	}()
	go s.run(ctx)
	s.log.Info("monitor serving", zap.String("addr", s.cfg.Addr))
}

// Stop shuts the http server down.
func (s *Server) Stop() {
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
}

func (s *Server) run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish(s.BuildFrame())
		}
	}
}

// BuildFrame snapshots the top-N most-updated symbols plus counters.
func (s *Server) BuildFrame() Frame {
	c := s.client.Cache()
	rows := make([]SymbolRow, 0, c.NumSymbols())
	for id := 0; id < c.NumSymbols(); id++ {
		st := c.Snapshot(uint16(id))
		if st.UpdateCount == 0 {
			continue
		}
		rows = append(rows, toRow(uint16(id), st))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UpdateCount > rows[j].UpdateCount })
	if len(rows) > s.cfg.TopN {
		rows = rows[:s.cfg.TopN]
	}

	return Frame{
		TimestampMs:  time.Now().UnixMilli(),
		Symbols:      rows,
		Parser:       s.client.Stats(),
		ApplyLatency: s.client.ApplyLatency().Stats(),
		WireLatency:  s.client.WireLatency().Stats(),
	}
}

func toRow(id uint16, st cache.MarketState) SymbolRow {
	return SymbolRow{
		SymbolID:    id,
		BestBid:     st.BestBid,
		BestAsk:     st.BestAsk,
		BidQty:      st.BidQuantity,
		AskQty:      st.AskQuantity,
		LastPrice:   st.LastTradedPrice,
		LastQty:     st.LastTradedQuantity,
		UpdateCount: st.UpdateCount,
	}
}

// publish fans the frame out without blocking: a subscriber whose buffer is
// still full simply misses this frame.
func (s *Server) publish(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ch := make(chan Frame, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	s.log.Info("monitor client connected", zap.String("remote", conn.RemoteAddr().String()))

	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		conn.Close()
	}()

	// Drain control/close frames so pings are answered.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for f := range ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(f); err != nil {
			return
		}
	}
}
