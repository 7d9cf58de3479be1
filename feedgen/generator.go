// Package feedgen synthesizes per-symbol market events using Geometric
// Brownian Motion. A single Generator instance feeds the broadcast engine;
// it is not safe for concurrent use.
package feedgen

import (
	"math"
	"math/rand/v2"
	"time"

	"market-feed-go/wire"
)

// tradeProbability splits generated events ~30% trades / ~70% quotes.
const tradeProbability = 0.3

// SymbolParams holds the stochastic-process parameters for one symbol.
type SymbolParams struct {
	SymbolID     uint16
	CurrentPrice float64
	Volatility   float64 // sigma, 0.01 to 0.06
	Drift        float64 // mu, 0 for neutral
	Dt           float64 // time step per tick
	SpreadPct    float64 // bid-ask spread as fraction of price
	BaseVolume   uint32
}

// Generator produces the next synthetic event for a symbol and maintains
// per-symbol price state plus a feed-wide monotonic sequence number.
type Generator struct {
	symbols []SymbolParams
	rng     *rand.Rand

	// Box-Muller produces normals in pairs; the spare is cached.
	hasSpare bool
	spare    float64

	sequence uint32

	nowNs func() uint64
}

// New returns a Generator seeded from the wall clock.
func New() *Generator {
	now := uint64(time.Now().UnixNano())
	return NewWithSeed(now, now>>32)
}

// NewWithSeed returns a deterministic Generator for tests and replays.
func NewWithSeed(s1, s2 uint64) *Generator {
	return &Generator{
		rng:   rand.New(rand.NewPCG(s1, s2)),
		nowNs: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// Initialize allocates numSymbols symbol slots with randomized parameters:
// price 100..5000, volatility 0.01..0.06, spread 0.05%..0.2%, base volume
// 1000..9999. Any previous state is discarded.
func (g *Generator) Initialize(numSymbols int) {
	g.symbols = make([]SymbolParams, 0, numSymbols)
	for i := 0; i < numSymbols; i++ {
		g.symbols = append(g.symbols, SymbolParams{
			SymbolID:     uint16(i),
			CurrentPrice: 100.0 + g.rng.Float64()*4900.0,
			Volatility:   0.01 + g.rng.Float64()*0.05,
			Drift:        0.0,
			Dt:           0.001,
			SpreadPct:    0.0005 + g.rng.Float64()*0.0015,
			BaseVolume:   1000 + uint32(g.rng.IntN(9000)),
		})
	}
}

// NumSymbols reports how many symbols were initialized.
func (g *Generator) NumSymbols() int { return len(g.symbols) }

// CurrentPrice returns the live mid price for symbolID, 0 if out of range.
func (g *Generator) CurrentPrice(symbolID uint16) float64 {
	if int(symbolID) >= len(g.symbols) {
		return 0
	}
	return g.symbols[symbolID].CurrentPrice
}

// GenerateTick advances the symbol's price, assigns the next sequence number,
// stamps the header, and classifies the event. Returns true for a trade,
// false for a quote. Out-of-range ids leave the header untouched.
func (g *Generator) GenerateTick(symbolID uint16, h *wire.Header) bool {
	if int(symbolID) >= len(g.symbols) {
		return false
	}

	g.updatePriceGBM(symbolID)

	isTrade := g.rng.Float64() < tradeProbability

	g.sequence++
	h.Type = wire.MsgQuote
	if isTrade {
		h.Type = wire.MsgTrade
	}
	h.Sequence = g.sequence
	h.TimestampNs = g.nowNs()
	h.SymbolID = symbolID
	return isTrade
}

// FillTradePayload populates p consistently with the last generated event:
// the trade prints at the current mid.
func (g *Generator) FillTradePayload(symbolID uint16, p *wire.TradePayload) {
	if int(symbolID) >= len(g.symbols) {
		return
	}
	p.Price = g.symbols[symbolID].CurrentPrice
	p.Quantity = g.volume(symbolID)
}

// FillQuotePayload populates p with a bid/ask straddling the current mid.
// The result always satisfies bid < ask.
func (g *Generator) FillQuotePayload(symbolID uint16, p *wire.QuotePayload) {
	if int(symbolID) >= len(g.symbols) {
		return
	}
	bid, ask := g.bidAsk(symbolID)
	p.BidPrice = bid
	p.BidQuantity = g.volume(symbolID)
	p.AskPrice = ask
	p.AskQuantity = g.volume(symbolID)
}

// updatePriceGBM applies one discrete GBM step:
// dS = mu*S*dt + sigma*S*sqrt(dt)*dW, dW ~ N(0,1).
// The new price is clamped to [0.5*prev, 2*prev] and floored at 1.0.
func (g *Generator) updatePriceGBM(symbolID uint16) {
	s := &g.symbols[symbolID]
	prev := s.CurrentPrice

	dW := g.normal()
	dS := s.Drift*prev*s.Dt + s.Volatility*prev*math.Sqrt(s.Dt)*dW

	next := prev + dS
	if next < prev*0.5 {
		next = prev * 0.5
	} else if next > prev*2.0 {
		next = prev * 2.0
	}
	if next < 1.0 {
		next = 1.0
	}
	s.CurrentPrice = next
}

// normal draws a standard normal via the Box-Muller transform, caching the
// second value of each generated pair.
func (g *Generator) normal() float64 {
	if g.hasSpare {
		g.hasSpare = false
		return g.spare
	}

	var u1 float64
	for u1 <= 0.0 {
		u1 = g.rng.Float64()
	}
	u2 := g.rng.Float64()

	r := math.Sqrt(-2.0 * math.Log(u1))
	theta := 2.0 * math.Pi * u2

	g.spare = r * math.Sin(theta)
	g.hasSpare = true
	return r * math.Cos(theta)
}

// bidAsk derives a quote from the mid and configured spread, falling back to
// mid +/- 0.01 if floating point ever collapses the spread.
func (g *Generator) bidAsk(symbolID uint16) (bid, ask float64) {
	s := &g.symbols[symbolID]
	mid := s.CurrentPrice
	half := mid * s.SpreadPct / 2.0

	bid = mid - half
	ask = mid + half
	if bid >= ask {
		bid = mid - 0.01
		ask = mid + 0.01
	}
	return bid, ask
}

// volume draws base volume +/- 50%, never below 100.
func (g *Generator) volume(symbolID uint16) uint32 {
	s := &g.symbols[symbolID]
	v := uint32(float64(s.BaseVolume) * (0.5 + g.rng.Float64()))
	if v < 100 {
		v = 100
	}
	return v
}
