// Package tsheader reads and writes the fixed 4-byte MPEG-TS packet header
// and locates the payload behind the adaptation field.
package tsheader

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

const (
	PacketSize = 188
	HeaderLen  = 4
	SyncByte   = 0x47
)

// Scrambling control values (bits 7-6 of byte 3).
const (
	ScramblingClear    uint8 = 0
	ScramblingReserved uint8 = 1
	ScramblingEven     uint8 = 2
	ScramblingOdd      uint8 = 3
)

var (
	ErrShortPacket       = errors.New("tsheader: short packet")
	ErrSync              = errors.New("tsheader: lost sync")
	ErrAdaptationLength  = errors.New("tsheader: adaptation field past end of packet")
	ErrPayloadSize       = errors.New("tsheader: payload does not fill the packet")
	ErrAdaptationPayload = errors.New("tsheader: adaptation field without flag")
)

type Header struct {
	TEI        bool
	PUSI       bool
	Priority   bool
	PID        uint16 // 13 bits
	Scrambling uint8  // 2 bits
	Adaptation bool
	Payload    bool
	Continuity uint8 // 4 bits
}

// Parse decodes the header of pkt.
func Parse(pkt []byte) (Header, error) {
	var (
		h     Header
		sync  uint8
		word  uint16
		flags uint8
	)
	s := cryptobyte.String(pkt)
	if !s.ReadUint8(&sync) || !s.ReadUint16(&word) || !s.ReadUint8(&flags) {
		return h, ErrShortPacket
	}
	if sync != SyncByte {
		return h, fmt.Errorf("%w: %#02x", ErrSync, sync)
	}
	h.TEI = word&0x8000 != 0
	h.PUSI = word&0x4000 != 0
	h.Priority = word&0x2000 != 0
	h.PID = word & 0x1fff
	h.Scrambling = flags >> 6
	h.Adaptation = flags&0x20 != 0
	h.Payload = flags&0x10 != 0
	h.Continuity = flags & 0x0f
	return h, nil
}

func (h Header) marshal(b *cryptobyte.Builder) {
	word := h.PID & 0x1fff
	if h.TEI {
		word |= 0x8000
	}
	if h.PUSI {
		word |= 0x4000
	}
	if h.Priority {
		word |= 0x2000
	}
	flags := h.Scrambling<<6 | h.Continuity&0x0f
	if h.Adaptation {
		flags |= 0x20
	}
	if h.Payload {
		flags |= 0x10
	}
	b.AddUint8(SyncByte)
	b.AddUint16(word)
	b.AddUint8(flags)
}

// Append appends the encoded header to dst.
func (h Header) Append(dst []byte) ([]byte, error) {
	b := cryptobyte.NewBuilder(dst)
	h.marshal(b)
	return b.Bytes()
}

// Build assembles a full packet. af is the adaptation field body without its
// length byte and is only written when h.Adaptation is set; payload must fill
// the rest of the packet exactly.
func Build(h Header, af, payload []byte) ([]byte, error) {
	if !h.Adaptation && len(af) > 0 {
		return nil, ErrAdaptationPayload
	}
	used := HeaderLen + len(payload)
	if h.Adaptation {
		used += 1 + len(af)
	}
	if used != PacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadSize, used)
	}
	b := cryptobyte.NewFixedBuilder(make([]byte, 0, PacketSize))
	h.marshal(b)
	if h.Adaptation {
		b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(af)
		})
	}
	b.AddBytes(payload)
	return b.Bytes()
}

// PayloadSpan returns the offset and length of the payload of pkt. A packet
// whose adaptation field runs past the end yields ErrAdaptationLength.
func PayloadSpan(pkt []byte) (offset, length int, err error) {
	if len(pkt) < PacketSize {
		return 0, 0, ErrShortPacket
	}
	s := cryptobyte.String(pkt[:PacketSize])
	var flags uint8
	s.Skip(3)
	s.ReadUint8(&flags)
	if flags&0x20 != 0 {
		var af cryptobyte.String
		if !s.ReadUint8LengthPrefixed(&af) {
			return 0, 0, ErrAdaptationLength
		}
	}
	return PacketSize - len(s), len(s), nil
}

// Scrambling returns the scrambling control bits of pkt.
func Scrambling(pkt []byte) uint8 { return pkt[3] >> 6 }

// SetScrambling replaces the scrambling control bits of pkt.
func SetScrambling(pkt []byte, sc uint8) { pkt[3] = pkt[3]&0x3f | sc<<6 }

// PID returns the packet identifier of pkt.
func PID(pkt []byte) uint16 { return uint16(pkt[1]&0x1f)<<8 | uint16(pkt[2]) }
