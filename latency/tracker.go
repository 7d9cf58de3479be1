// Package latency provides a lock-free fixed-bucket histogram for
// nanosecond-scale latency samples, with approximate percentile extraction.
package latency

import (
	"math"
	"sync/atomic"
	"time"
)

// Defaults match the feed's target resolution: 100ns buckets up to 1ms.
const (
	DefaultBucketSizeNs = 100
	DefaultMaxLatencyNs = 1_000_000
)

// Stats is a point-in-time summary. Percentiles report the lower bound of
// the first bucket whose cumulative count reaches the target rank.
type Stats struct {
	MinNs       uint64
	MaxNs       uint64
	MeanNs      uint64
	P50Ns       uint64
	P95Ns       uint64
	P99Ns       uint64
	P999Ns      uint64
	SampleCount uint64
}

// Tracker is safe for concurrent Record from any goroutine. Stats and
// ExportHistogram are best-effort snapshots: counters may advance during the
// scan, which is acceptable for percentile reporting.
type Tracker struct {
	bucketSizeNs uint64
	maxLatencyNs uint64

	buckets []atomic.Uint64

	min     atomic.Uint64
	max     atomic.Uint64
	samples atomic.Uint64
	sum     atomic.Uint64
}

// NewTracker builds a histogram with bucketSizeNs-wide buckets covering
// [0, maxLatencyNs]; samples beyond the range saturate into the last bucket.
// Non-positive arguments fall back to the defaults.
func NewTracker(bucketSizeNs, maxLatencyNs uint64) *Tracker {
	if bucketSizeNs == 0 {
		bucketSizeNs = DefaultBucketSizeNs
	}
	if maxLatencyNs == 0 {
		maxLatencyNs = DefaultMaxLatencyNs
	}
	t := &Tracker{
		bucketSizeNs: bucketSizeNs,
		maxLatencyNs: maxLatencyNs,
		buckets:      make([]atomic.Uint64, maxLatencyNs/bucketSizeNs+1),
	}
	t.min.Store(math.MaxUint64)
	return t
}

// BucketSize returns the configured bucket width in nanoseconds.
func (t *Tracker) BucketSize() uint64 { return t.bucketSizeNs }

// NumBuckets returns the bucket count including the saturating tail.
func (t *Tracker) NumBuckets() int { return len(t.buckets) }

// Record adds one sample.
func (t *Tracker) Record(latencyNs uint64) {
	for {
		cur := t.min.Load()
		if latencyNs >= cur || t.min.CompareAndSwap(cur, latencyNs) {
			break
		}
	}
	for {
		cur := t.max.Load()
		if latencyNs <= cur || t.max.CompareAndSwap(cur, latencyNs) {
			break
		}
	}

	idx := latencyNs / t.bucketSizeNs
	if idx >= uint64(len(t.buckets)) {
		idx = uint64(len(t.buckets)) - 1
	}
	t.buckets[idx].Add(1)

	t.samples.Add(1)
	t.sum.Add(latencyNs)
}

// Stats computes min/max/mean and p50/p95/p99/p999 in one forward scan.
// All fields are zero when no samples have been recorded.
func (t *Tracker) Stats() Stats {
	var s Stats
	count := t.samples.Load()
	if count == 0 {
		return s
	}

	s.SampleCount = count
	s.MinNs = t.min.Load()
	s.MaxNs = t.max.Load()
	s.MeanNs = t.sum.Load() / count

	p50 := count * 50 / 100
	p95 := count * 95 / 100
	p99 := count * 99 / 100
	p999 := count * 999 / 1000

	var cumulative uint64
	var found50, found95, found99, found999 bool
	for i := range t.buckets {
		cumulative += t.buckets[i].Load()
		lower := uint64(i) * t.bucketSizeNs
		if !found50 && cumulative >= p50 {
			s.P50Ns = lower
			found50 = true
		}
		if !found95 && cumulative >= p95 {
			s.P95Ns = lower
			found95 = true
		}
		if !found99 && cumulative >= p99 {
			s.P99Ns = lower
			found99 = true
		}
		if !found999 && cumulative >= p999 {
			s.P999Ns = lower
			found999 = true
			break
		}
	}
	return s
}

// Reset clears every counter. Records racing a Reset may land in either the
// old or the new window; callers that need a clean cut must quiesce first.
func (t *Tracker) Reset() {
	for i := range t.buckets {
		t.buckets[i].Store(0)
	}
	t.min.Store(math.MaxUint64)
	t.max.Store(0)
	t.samples.Store(0)
	t.sum.Store(0)
}

// ExportHistogram appends every bucket count to out and returns it.
func (t *Tracker) ExportHistogram(out []uint64) []uint64 {
	for i := range t.buckets {
		out = append(out, t.buckets[i].Load())
	}
	return out
}

// Timer measures one span and records it on Stop. The zero value is unusable;
// obtain one from StartTimer.
type Timer struct {
	tracker *Tracker
	start   time.Time
}

// StartTimer captures a monotonic start timestamp for tr.
func StartTimer(tr *Tracker) Timer {
	return Timer{tracker: tr, start: time.Now()}
}

// Stop records the elapsed nanoseconds since StartTimer.
func (tm Timer) Stop() {
	tm.tracker.Record(uint64(time.Since(tm.start).Nanoseconds()))
}
