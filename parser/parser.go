// Package parser reassembles discrete frames out of a TCP byte stream. Bytes
// arrive in arbitrary chunks; the parser buffers partial frames, verifies the
// integrity word, accounts for sequence gaps, and dispatches each complete
// frame to a typed sink without allocating.
package parser

import "market-feed-go/wire"

// BufferSize bounds the reassembly buffer. It is far above twice the largest
// frame, so overflow only happens when the caller feeds garbage in bulk.
const BufferSize = 8192

// Stats counts parser outcomes. Counters survive Reset.
type Stats struct {
	Parsed          uint64
	Trades          uint64
	Quotes          uint64
	Heartbeats      uint64
	Gaps            uint64
	IntegrityErrors uint64
	Malformed       uint64
}

// Sink receives parsed frames. Handlers run synchronously on the Feed caller;
// payloads are decoded on the stack from a borrowed view of the buffer.
type Sink interface {
	OnTrade(h wire.Header, p wire.TradePayload)
	OnQuote(h wire.Header, p wire.QuotePayload)
	OnHeartbeat(h wire.Header)
}

// Parser is per-connection state. Not safe for concurrent use; exactly one
// goroutine feeds it.
type Parser struct {
	buf  [BufferSize]byte
	used int

	lastSequence uint32
	firstMessage bool

	validateIntegrity bool
	validateSequence  bool

	sink  Sink
	stats Stats
}

// New returns a Parser dispatching to sink, with integrity and sequence
// validation enabled.
func New(sink Sink) *Parser {
	return &Parser{
		firstMessage:      true,
		validateIntegrity: true,
		validateSequence:  true,
		sink:              sink,
	}
}

// SetValidateIntegrity toggles the per-frame XOR-fold check.
func (p *Parser) SetValidateIntegrity(v bool) { p.validateIntegrity = v }

// SetValidateSequence toggles gap accounting.
func (p *Parser) SetValidateSequence(v bool) { p.validateSequence = v }

// Stats returns a copy of the counters.
func (p *Parser) Stats() Stats { return p.stats }

// LastSequence reports the sequence of the last accepted frame.
func (p *Parser) LastSequence() uint32 { return p.lastSequence }

// Feed appends data and drains every complete frame it can, so frames that
// arrive together are all delivered in this call. Returns bytes consumed:
// len(data) normally, 0 when the buffer would overflow (the parser resets and
// the input is discarded; Malformed is incremented).
func (p *Parser) Feed(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	if p.used+len(data) > BufferSize {
		// Backstop only: capacity is well above twice the peak frame size.
		p.Reset()
		p.stats.Malformed++
		return 0
	}

	copy(p.buf[p.used:], data)
	p.used += len(data)

	for p.parseOne() {
	}
	return len(data)
}

// parseOne consumes at most one frame (or one resync skip) from the buffer.
// Returns false when more bytes are needed.
func (p *Parser) parseOne() bool {
	if p.used < wire.HeaderSize {
		return false
	}

	frameSize := wire.FrameSize(wire.PeekType(p.buf[:]))
	if frameSize == 0 {
		// Unrecognized type: drop one header's worth and re-parse. Best
		// effort; a corrupted type byte mid-frame can cascade.
		p.stats.Malformed++
		p.compact(wire.HeaderSize)
		return true
	}

	if p.used < frameSize {
		return false
	}
	frame := p.buf[:frameSize]

	if p.validateIntegrity && !wire.Verify(frame) {
		// Drop exactly this frame. lastSequence is untouched, so the next
		// valid frame is judged against the last accepted one.
		p.stats.IntegrityErrors++
		p.compact(frameSize)
		return true
	}

	h := wire.DecodeHeader(frame)
	if p.validateSequence && !p.firstMessage && h.Sequence != p.lastSequence+1 {
		// One gap event per discontinuity, regardless of its size.
		p.stats.Gaps++
	}
	p.lastSequence = h.Sequence
	p.firstMessage = false

	p.stats.Parsed++
	switch h.Type {
	case wire.MsgTrade:
		p.stats.Trades++
		if p.sink != nil {
			p.sink.OnTrade(h, wire.DecodeTrade(frame))
		}
	case wire.MsgQuote:
		p.stats.Quotes++
		if p.sink != nil {
			p.sink.OnQuote(h, wire.DecodeQuote(frame))
		}
	case wire.MsgHeartbeat:
		p.stats.Heartbeats++
		if p.sink != nil {
			p.sink.OnHeartbeat(h)
		}
	}

	p.compact(frameSize)
	return true
}

// compact shifts the unconsumed tail down to the front of the buffer.
func (p *Parser) compact(n int) {
	copy(p.buf[:], p.buf[n:p.used])
	p.used -= n
}

// Reset clears the buffer and sequence state, as on reconnect. Statistics
// are preserved.
func (p *Parser) Reset() {
	p.used = 0
	p.lastSequence = 0
	p.firstMessage = true
}
