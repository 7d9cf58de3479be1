package feedgen

import (
	"testing"

	"market-feed-go/wire"

	"github.com/stretchr/testify/require"
)

func newTestGenerator(n int) *Generator {
	g := NewWithSeed(1, 2)
	g.Initialize(n)
	return g
}

func TestInitializeParameters(t *testing.T) {
	g := newTestGenerator(50)
	require.Equal(t, 50, g.NumSymbols())

	for i := 0; i < 50; i++ {
		s := g.symbols[i]
		require.Equal(t, uint16(i), s.SymbolID)
		require.GreaterOrEqual(t, s.CurrentPrice, 100.0)
		require.LessOrEqual(t, s.CurrentPrice, 5000.0)
		require.GreaterOrEqual(t, s.Volatility, 0.01)
		require.LessOrEqual(t, s.Volatility, 0.06)
		require.GreaterOrEqual(t, s.BaseVolume, uint32(1000))
	}
}

func TestSequenceMonotonic(t *testing.T) {
	g := newTestGenerator(4)

	var h wire.Header
	var last uint32
	for i := 0; i < 1000; i++ {
		g.GenerateTick(uint16(i%4), &h)
		require.Equal(t, last+1, h.Sequence)
		last = h.Sequence
	}
}

func TestGenerateTickHeader(t *testing.T) {
	g := newTestGenerator(8)

	var h wire.Header
	isTrade := g.GenerateTick(5, &h)
	require.Equal(t, uint16(5), h.SymbolID)
	require.NotZero(t, h.TimestampNs)
	if isTrade {
		require.Equal(t, wire.MsgTrade, h.Type)
	} else {
		require.Equal(t, wire.MsgQuote, h.Type)
	}
}

func TestPriceStaysBounded(t *testing.T) {
	g := newTestGenerator(3)

	var h wire.Header
	for i := 0; i < 100000; i++ {
		id := uint16(i % 3)
		prev := g.CurrentPrice(id)
		g.GenerateTick(id, &h)
		next := g.CurrentPrice(id)

		require.GreaterOrEqual(t, next, 1.0)
		require.GreaterOrEqual(t, next, prev*0.5-1e-9)
		require.LessOrEqual(t, next, prev*2.0+1e-9)
	}
}

func TestQuoteBidBelowAsk(t *testing.T) {
	g := newTestGenerator(5)

	var h wire.Header
	var q wire.QuotePayload
	for i := 0; i < 10000; i++ {
		id := uint16(i % 5)
		g.GenerateTick(id, &h)
		g.FillQuotePayload(id, &q)
		require.Less(t, q.BidPrice, q.AskPrice)
		require.GreaterOrEqual(t, q.BidQuantity, uint32(100))
		require.GreaterOrEqual(t, q.AskQuantity, uint32(100))
	}
}

func TestTradePayloadAtMid(t *testing.T) {
	g := newTestGenerator(2)

	var h wire.Header
	var p wire.TradePayload
	g.GenerateTick(1, &h)
	g.FillTradePayload(1, &p)
	require.Equal(t, g.CurrentPrice(1), p.Price)
	require.GreaterOrEqual(t, p.Quantity, uint32(100))
}

func TestTradeQuoteMix(t *testing.T) {
	g := newTestGenerator(1)

	var h wire.Header
	trades := 0
	const total = 20000
	for i := 0; i < total; i++ {
		if g.GenerateTick(0, &h) {
			trades++
		}
	}
	ratio := float64(trades) / float64(total)
	require.InDelta(t, 0.3, ratio, 0.03)
}

func TestOutOfRangeSymbol(t *testing.T) {
	g := newTestGenerator(2)

	var h wire.Header
	require.False(t, g.GenerateTick(2, &h))
	require.Zero(t, h.Sequence)
	require.Equal(t, 0.0, g.CurrentPrice(9))

	var p wire.TradePayload
	g.FillTradePayload(7, &p)
	require.Zero(t, p.Price)
}
