// Package cache holds the last-known market state per symbol behind a
// sequence lock: a single writer updates slots in place while any number of
// readers take consistent snapshots without blocking.
//
// The reader copy is intentionally a plain (non-atomic) struct copy bracketed
// by acquire loads of the slot's sequence counter; a copy that raced a write
// is detected via the counter and retried. `go test -race` reports this copy,
// as it does for any seqlock.
package cache

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"
)

// MarketState is the reader-visible snapshot for one symbol.
type MarketState struct {
	BestBid            float64
	BestAsk            float64
	BidQuantity        uint32
	AskQuantity        uint32
	LastTradedPrice    float64
	LastTradedQuantity uint32
	LastUpdateTime     uint64 // ns
	UpdateCount        uint64
}

// slot pairs the seqlock counter with the state it guards. The trailing pad
// keeps adjacent symbols out of each other's cache lines.
type slot struct {
	sequence atomic.Uint64 // odd while a write is in progress
	state    MarketState
	_        cpu.CacheLinePad
}

// SymbolCache is a fixed-size array of per-symbol slots. Slots are created
// once and never resized. Writes to a given slot must come from one
// goroutine; concurrent writers are not detected and not supported.
type SymbolCache struct {
	slots []slot
	nowNs func() uint64
}

// New allocates a cache for numSymbols symbols, all zeroed.
func New(numSymbols int) *SymbolCache {
	return &SymbolCache{
		slots: make([]slot, numSymbols),
		nowNs: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// NumSymbols reports the fixed slot count.
func (c *SymbolCache) NumSymbols() int { return len(c.slots) }

// beginWrite marks the slot in-progress (odd counter) and returns the
// starting value. The store publishes the odd value before any field writes.
func (s *slot) beginWrite() uint64 {
	seq := s.sequence.Load()
	s.sequence.Store(seq + 1)
	return seq
}

// endWrite marks the slot stable again. The store publishes every field
// write made since beginWrite.
func (s *slot) endWrite(seq uint64) {
	s.sequence.Store(seq + 2)
}

// UpdateBid replaces the bid side for symbolID. No-op when out of range.
func (c *SymbolCache) UpdateBid(symbolID uint16, price float64, quantity uint32) {
	if int(symbolID) >= len(c.slots) {
		return
	}
	s := &c.slots[symbolID]
	seq := s.beginWrite()
	s.state.BestBid = price
	s.state.BidQuantity = quantity
	s.state.LastUpdateTime = c.nowNs()
	s.state.UpdateCount++
	s.endWrite(seq)
}

// UpdateAsk replaces the ask side for symbolID. No-op when out of range.
func (c *SymbolCache) UpdateAsk(symbolID uint16, price float64, quantity uint32) {
	if int(symbolID) >= len(c.slots) {
		return
	}
	s := &c.slots[symbolID]
	seq := s.beginWrite()
	s.state.BestAsk = price
	s.state.AskQuantity = quantity
	s.state.LastUpdateTime = c.nowNs()
	s.state.UpdateCount++
	s.endWrite(seq)
}

// UpdateTrade records the last print for symbolID. No-op when out of range.
func (c *SymbolCache) UpdateTrade(symbolID uint16, price float64, quantity uint32) {
	if int(symbolID) >= len(c.slots) {
		return
	}
	s := &c.slots[symbolID]
	seq := s.beginWrite()
	s.state.LastTradedPrice = price
	s.state.LastTradedQuantity = quantity
	s.state.LastUpdateTime = c.nowNs()
	s.state.UpdateCount++
	s.endWrite(seq)
}

// UpdateQuote replaces both sides in one write cycle, so a reader never sees
// a bid from one quote paired with an ask from another.
func (c *SymbolCache) UpdateQuote(symbolID uint16, bidPrice float64, bidQty uint32, askPrice float64, askQty uint32) {
	if int(symbolID) >= len(c.slots) {
		return
	}
	s := &c.slots[symbolID]
	seq := s.beginWrite()
	s.state.BestBid = bidPrice
	s.state.BidQuantity = bidQty
	s.state.BestAsk = askPrice
	s.state.AskQuantity = askQty
	s.state.LastUpdateTime = c.nowNs()
	s.state.UpdateCount++
	s.endWrite(seq)
}

// Snapshot returns a consistent copy of the symbol's state. Out-of-range ids
// yield a zero state. Readers never block; they retry while a write is in
// flight.
func (c *SymbolCache) Snapshot(symbolID uint16) MarketState {
	if int(symbolID) >= len(c.slots) {
		return MarketState{}
	}
	s := &c.slots[symbolID]
	for {
		seq1 := s.sequence.Load()
		if seq1&1 != 0 {
			continue
		}
		snapshot := s.state
		seq2 := s.sequence.Load()
		if seq1 == seq2 {
			return snapshot
		}
	}
}

// SnapshotBatch appends a snapshot per id to out and returns it.
func (c *SymbolCache) SnapshotBatch(symbolIDs []uint16, out []MarketState) []MarketState {
	for _, id := range symbolIDs {
		out = append(out, c.Snapshot(id))
	}
	return out
}

// TotalUpdates sums UpdateCount across all slots. The per-slot reads are not
// synchronized against writers, so the result is approximate.
func (c *SymbolCache) TotalUpdates() uint64 {
	var total uint64
	for i := range c.slots {
		total += c.slots[i].state.UpdateCount
	}
	return total
}
