package parser

import (
	"testing"

	"market-feed-go/wire"
)

type nullSink struct{}

func (nullSink) OnTrade(wire.Header, wire.TradePayload) {}
func (nullSink) OnQuote(wire.Header, wire.QuotePayload) {}
func (nullSink) OnHeartbeat(wire.Header)                {}

func benchStream(frames int) []byte {
	out := make([]byte, 0, frames*wire.QuoteFrameSize)
	var buf [wire.MaxFrameSize]byte
	for seq := uint32(1); seq <= uint32(frames); seq++ {
		var n int
		if seq%3 == 0 {
			h := wire.Header{Type: wire.MsgTrade, Sequence: seq, TimestampNs: uint64(seq), SymbolID: uint16(seq % 64)}
			p := wire.TradePayload{Price: 100.5, Quantity: 1000}
			n = wire.EncodeTrade(buf[:], &h, &p)
		} else {
			h := wire.Header{Type: wire.MsgQuote, Sequence: seq, TimestampNs: uint64(seq), SymbolID: uint16(seq % 64)}
			p := wire.QuotePayload{BidPrice: 100.4, BidQuantity: 10, AskPrice: 100.6, AskQuantity: 20}
			n = wire.EncodeQuote(buf[:], &h, &p)
		}
		out = append(out, buf[:n]...)
	}
	return out
}

func BenchmarkFeedWholeFrames(b *testing.B) {
	stream := benchStream(100)
	p := New(nullSink{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Feed(stream)
	}
}

func BenchmarkFeedFragmented(b *testing.B) {
	stream := benchStream(100)
	p := New(nullSink{})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for off := 0; off < len(stream); off += 17 {
			end := off + 17
			if end > len(stream) {
				end = len(stream)
			}
			p.Feed(stream[off:end])
		}
	}
}
