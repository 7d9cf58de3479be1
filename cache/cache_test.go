package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotZeroState(t *testing.T) {
	c := New(10)

	st := c.Snapshot(0)
	require.Equal(t, MarketState{}, st)

	// Out of range reads are zero, not panics.
	require.Equal(t, MarketState{}, c.Snapshot(10))
	require.Equal(t, MarketState{}, c.Snapshot(65535))
}

func TestOutOfRangeWriteIsNoop(t *testing.T) {
	c := New(2)
	c.UpdateTrade(2, 100, 10)
	c.UpdateQuote(500, 1, 1, 2, 2)
	require.Zero(t, c.TotalUpdates())
}

func TestUpdateQuoteAndTrade(t *testing.T) {
	c := New(4)

	c.UpdateQuote(1, 99.5, 100, 100.5, 200)
	c.UpdateTrade(1, 100.0, 50)

	st := c.Snapshot(1)
	require.Equal(t, 99.5, st.BestBid)
	require.Equal(t, uint32(100), st.BidQuantity)
	require.Equal(t, 100.5, st.BestAsk)
	require.Equal(t, uint32(200), st.AskQuantity)
	require.Equal(t, 100.0, st.LastTradedPrice)
	require.Equal(t, uint32(50), st.LastTradedQuantity)
	require.Equal(t, uint64(2), st.UpdateCount)
	require.NotZero(t, st.LastUpdateTime)
}

func TestUpdateBidAskSides(t *testing.T) {
	c := New(1)

	c.UpdateBid(0, 10.0, 5)
	st := c.Snapshot(0)
	require.Equal(t, 10.0, st.BestBid)
	require.Zero(t, st.BestAsk)

	c.UpdateAsk(0, 11.0, 7)
	st = c.Snapshot(0)
	require.Equal(t, 10.0, st.BestBid)
	require.Equal(t, 11.0, st.BestAsk)
	require.Equal(t, uint64(2), st.UpdateCount)
}

func TestSequenceCounterParity(t *testing.T) {
	c := New(1)

	require.Zero(t, c.slots[0].sequence.Load())
	c.UpdateTrade(0, 1, 1)
	require.Equal(t, uint64(2), c.slots[0].sequence.Load())
	c.UpdateTrade(0, 2, 2)
	require.Equal(t, uint64(4), c.slots[0].sequence.Load())
}

func TestSnapshotBatch(t *testing.T) {
	c := New(3)
	c.UpdateTrade(0, 1, 1)
	c.UpdateTrade(2, 3, 3)

	out := c.SnapshotBatch([]uint16{0, 1, 2, 9}, nil)
	require.Len(t, out, 4)
	require.Equal(t, 1.0, out[0].LastTradedPrice)
	require.Zero(t, out[1].LastTradedPrice)
	require.Equal(t, 3.0, out[2].LastTradedPrice)
	require.Equal(t, MarketState{}, out[3])
}

func TestTotalUpdates(t *testing.T) {
	c := New(5)
	for i := 0; i < 10; i++ {
		c.UpdateTrade(uint16(i%5), float64(i), uint32(i))
	}
	require.Equal(t, uint64(10), c.TotalUpdates())
}
