package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"market-feed-go/latency"
)

func TestObserveLatency(t *testing.T) {
	ObserveLatency("encode", latency.Stats{
		MinNs: 100, MaxNs: 900, MeanNs: 400,
		P50Ns: 300, P95Ns: 800, P99Ns: 850, P999Ns: 900,
		SampleCount: 10,
	})

	if got := testutil.ToFloat64(LatencyStats.WithLabelValues("encode", "p50")); got != 300 {
		t.Errorf("Expected encode p50 to be 300, got %f", got)
	}
	if got := testutil.ToFloat64(LatencyStats.WithLabelValues("encode", "max")); got != 900 {
		t.Errorf("Expected encode max to be 900, got %f", got)
	}
}

func TestUpdateParserStats(t *testing.T) {
	before := testutil.ToFloat64(SequenceGaps)
	UpdateParserStats(5, 2, 1, 0)
	after := testutil.ToFloat64(SequenceGaps)

	if after-before != 2 {
		t.Errorf("Expected SequenceGaps delta 2, got %f", after-before)
	}
	if testutil.ToFloat64(MessagesParsed) < 5 {
		t.Errorf("Expected MessagesParsed >= 5, got %f", testutil.ToFloat64(MessagesParsed))
	}
}

func TestGauges(t *testing.T) {
	ConnectedPeers.Set(3)
	if got := testutil.ToFloat64(ConnectedPeers); got != 3 {
		t.Errorf("Expected ConnectedPeers to be 3, got %f", got)
	}

	TickRate.Set(100000)
	if got := testutil.ToFloat64(TickRate); got != 100000 {
		t.Errorf("Expected TickRate to be 100000, got %f", got)
	}
}
