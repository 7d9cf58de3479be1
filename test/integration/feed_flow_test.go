//go:build linux || darwin

// End-to-end flow: GBM generator -> broadcast engine -> TCP -> reframer ->
// symbol cache, all in-process over loopback.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"market-feed-go/broadcast"
	"market-feed-go/feedgen"
	"market-feed-go/subscriber"
)

func TestFeedFlow(t *testing.T) {
	gen := feedgen.NewWithSeed(5, 9)
	const symbols = 16
	gen.Initialize(symbols)

	engine := broadcast.New(broadcast.Config{Port: 0, NumSymbols: symbols, Rate: 50000}, gen, nil, zap.NewNop())
	require.NoError(t, engine.Start())
	defer engine.Stop()

	client := subscriber.New(subscriber.Config{
		Addr:             fmt.Sprintf("127.0.0.1:%d", engine.Port()),
		NumSymbols:       symbols,
		HeartbeatTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, client.Connect())
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- client.Run(ctx) }()

	// Drive the engine until the subscriber has applied a healthy stream.
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) && client.Stats().Parsed < 5000 {
		engine.RunOnce()
	}
	require.GreaterOrEqual(t, engine.TotalMessagesSent(), uint64(5000))
	require.Equal(t, 1, engine.ConnectedClients())

	// Let the subscriber drain in-flight bytes, then freeze it before
	// comparing counters.
	time.Sleep(200 * time.Millisecond)
	cancel()
	require.NoError(t, <-runDone)

	st := client.Stats()
	require.GreaterOrEqual(t, st.Parsed, uint64(5000))
	require.Zero(t, st.IntegrityErrors)
	require.Zero(t, st.Malformed)
	require.Zero(t, st.Gaps, "loopback with a draining reader must not drop frames")
	require.Equal(t, st.Parsed, st.Trades+st.Quotes)

	// Every applied event landed in the cache with a coherent quote side.
	c := client.Cache()
	require.Equal(t, st.Parsed, c.TotalUpdates())
	populated := 0
	for id := 0; id < symbols; id++ {
		s := c.Snapshot(uint16(id))
		if s.UpdateCount == 0 {
			continue
		}
		populated++
		if s.BestBid != 0 || s.BestAsk != 0 {
			require.Less(t, s.BestBid, s.BestAsk, "symbol %d", id)
		}
	}
	require.Equal(t, symbols, populated, "round-robin must touch every symbol")

	require.NotZero(t, client.ApplyLatency().Stats().SampleCount)
	require.NotZero(t, client.WireLatency().Stats().SampleCount)
}
