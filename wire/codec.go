// Package wire implements the fixed-layout binary frame format shared by the
// feed publisher and its subscribers. All multi-byte fields are little-endian
// with no padding; every frame ends in a 4-byte XOR-fold integrity word.
package wire

import (
	"encoding/binary"
	"math"
)

// MsgType identifies the payload carried by a frame.
type MsgType uint16

const (
	MsgTrade     MsgType = 0x01
	MsgQuote     MsgType = 0x02
	MsgHeartbeat MsgType = 0x03
)

// Frame geometry. Header is 16 bytes, the integrity word is 4, and payload
// size is fixed per type, so total frame length is a pure function of MsgType.
const (
	HeaderSize   = 16
	ChecksumSize = 4

	TradeFrameSize     = HeaderSize + 12 + ChecksumSize // 32
	QuoteFrameSize     = HeaderSize + 24 + ChecksumSize // 44
	HeartbeatFrameSize = HeaderSize + ChecksumSize      // 20

	// MaxFrameSize is the largest frame the protocol can produce.
	MaxFrameSize = QuoteFrameSize
)

// Header is the 16-byte frame header.
type Header struct {
	Type        MsgType
	Sequence    uint32
	TimestampNs uint64
	SymbolID    uint16
}

// TradePayload is the 12-byte TRADE body.
type TradePayload struct {
	Price    float64
	Quantity uint32
}

// QuotePayload is the 24-byte QUOTE body.
type QuotePayload struct {
	BidPrice    float64
	BidQuantity uint32
	AskPrice    float64
	AskQuantity uint32
}

// FrameSize returns the total on-wire length for t, or 0 for an unknown type.
func FrameSize(t MsgType) int {
	switch t {
	case MsgTrade:
		return TradeFrameSize
	case MsgQuote:
		return QuoteFrameSize
	case MsgHeartbeat:
		return HeartbeatFrameSize
	default:
		return 0
	}
}

// Checksum computes the bytewise XOR fold over b, zero-extended to 32 bits.
// Detects corruption only; this is not a cryptographic integrity check.
func Checksum(b []byte) uint32 {
	var sum uint8
	for _, c := range b {
		sum ^= c
	}
	return uint32(sum)
}

// Verify recomputes the XOR fold over buf[:len-4] and compares it against the
// trailing integrity word. Returns false for buffers shorter than the word.
func Verify(buf []byte) bool {
	if len(buf) < ChecksumSize {
		return false
	}
	body := buf[:len(buf)-ChecksumSize]
	want := binary.LittleEndian.Uint32(buf[len(buf)-ChecksumSize:])
	return Checksum(body) == want
}

func putHeader(buf []byte, h *Header) {
	binary.LittleEndian.PutUint16(buf[0:2], uint16(h.Type))
	binary.LittleEndian.PutUint32(buf[2:6], h.Sequence)
	binary.LittleEndian.PutUint64(buf[6:14], h.TimestampNs)
	binary.LittleEndian.PutUint16(buf[14:16], h.SymbolID)
}

func putChecksum(buf []byte, n int) {
	binary.LittleEndian.PutUint32(buf[n:n+ChecksumSize], Checksum(buf[:n]))
}

// EncodeTrade writes a complete TRADE frame into buf and returns its length.
// buf must hold at least TradeFrameSize bytes.
func EncodeTrade(buf []byte, h *Header, p *TradePayload) int {
	putHeader(buf, h)
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(p.Price))
	binary.LittleEndian.PutUint32(buf[24:28], p.Quantity)
	putChecksum(buf, TradeFrameSize-ChecksumSize)
	return TradeFrameSize
}

// EncodeQuote writes a complete QUOTE frame into buf and returns its length.
// buf must hold at least QuoteFrameSize bytes.
func EncodeQuote(buf []byte, h *Header, p *QuotePayload) int {
	putHeader(buf, h)
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(p.BidPrice))
	binary.LittleEndian.PutUint32(buf[24:28], p.BidQuantity)
	binary.LittleEndian.PutUint64(buf[28:36], math.Float64bits(p.AskPrice))
	binary.LittleEndian.PutUint32(buf[36:40], p.AskQuantity)
	putChecksum(buf, QuoteFrameSize-ChecksumSize)
	return QuoteFrameSize
}

// EncodeHeartbeat writes a complete HEARTBEAT frame into buf and returns its
// length. buf must hold at least HeartbeatFrameSize bytes.
func EncodeHeartbeat(buf []byte, h *Header) int {
	putHeader(buf, h)
	putChecksum(buf, HeartbeatFrameSize-ChecksumSize)
	return HeartbeatFrameSize
}

// PeekType reads the message type from the first two bytes of a header.
func PeekType(buf []byte) MsgType {
	return MsgType(binary.LittleEndian.Uint16(buf[0:2]))
}

// DecodeHeader reads the 16-byte header at the start of buf.
func DecodeHeader(buf []byte) Header {
	return Header{
		Type:        MsgType(binary.LittleEndian.Uint16(buf[0:2])),
		Sequence:    binary.LittleEndian.Uint32(buf[2:6]),
		TimestampNs: binary.LittleEndian.Uint64(buf[6:14]),
		SymbolID:    binary.LittleEndian.Uint16(buf[14:16]),
	}
}

// DecodeTrade reads the TRADE payload of a frame starting at buf[0].
func DecodeTrade(buf []byte) TradePayload {
	return TradePayload{
		Price:    math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24])),
		Quantity: binary.LittleEndian.Uint32(buf[24:28]),
	}
}

// DecodeQuote reads the QUOTE payload of a frame starting at buf[0].
func DecodeQuote(buf []byte) QuotePayload {
	return QuotePayload{
		BidPrice:    math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24])),
		BidQuantity: binary.LittleEndian.Uint32(buf[24:28]),
		AskPrice:    math.Float64frombits(binary.LittleEndian.Uint64(buf[28:36])),
		AskQuantity: binary.LittleEndian.Uint32(buf[36:40]),
	}
}
