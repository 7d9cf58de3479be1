package cache

import "testing"

func BenchmarkSnapshot(b *testing.B) {
	c := New(128)
	c.UpdateQuote(7, 99.5, 100, 100.5, 200)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Snapshot(7)
	}
}

func BenchmarkUpdateQuote(b *testing.B) {
	c := New(128)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.UpdateQuote(7, 99.5, 100, 100.5, 200)
	}
}

func BenchmarkSnapshotContended(b *testing.B) {
	c := New(128)
	stop := make(chan struct{})
	go func() {
		k := 0.0
		for {
			select {
			case <-stop:
				return
			default:
				c.UpdateQuote(7, k, 1, k+1, 1)
				k++
			}
		}
	}()
	defer close(stop)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Snapshot(7)
	}
}
