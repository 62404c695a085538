package tsfec

import (
	"encoding/binary"
)

const Version uint8 = 1

// Header precedes every symbol datagram.
type Header struct {
	Version    uint8  // 1
	Flags      uint8  // reserved
	BlockID    uint16 // per-block counter, wraps
	SymbolID   uint32 // < K source, >= K repair
	DataLen    uint32 // TS bytes protected by the block
	SymbolSize uint16 // symbol length L
}

const HeaderLen = 1 + 1 + 2 + 4 + 4 + 2

func (h *Header) MarshalBinary(b []byte) []byte {
	if len(b) < HeaderLen {
		b = make([]byte, HeaderLen)
	}
	b[0] = h.Version
	b[1] = h.Flags
	binary.LittleEndian.PutUint16(b[2:4], h.BlockID)
	binary.LittleEndian.PutUint32(b[4:8], h.SymbolID)
	binary.LittleEndian.PutUint32(b[8:12], h.DataLen)
	binary.LittleEndian.PutUint16(b[12:14], h.SymbolSize)
	return b[:HeaderLen]
}

func (h *Header) UnmarshalBinary(b []byte) bool {
	if len(b) < HeaderLen {
		return false
	}
	h.Version = b[0]
	h.Flags = b[1]
	h.BlockID = binary.LittleEndian.Uint16(b[2:4])
	h.SymbolID = binary.LittleEndian.Uint32(b[4:8])
	h.DataLen = binary.LittleEndian.Uint32(b[8:12])
	h.SymbolSize = binary.LittleEndian.Uint16(b[12:14])
	return true
}
