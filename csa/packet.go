package csa

// PacketSize is the size of one MPEG transport stream packet.
const PacketSize = 188

// Parity selects the even or odd control word.
type Parity uint8

const (
	Even Parity = 0
	Odd  Parity = 1
)

func (p Parity) String() string {
	if p == Odd {
		return "odd"
	}
	return "even"
}

// Scramble control values from bits 7-6 of header byte 3.
const (
	scClear    = 0x00
	scReserved = 0x40
	scEven     = 0x80
	scOdd      = 0xc0
)

// payloadSpan returns the offset and length of the scrambled payload. ok is
// false when the adaptation field claims more bytes than the packet holds.
func payloadSpan(pkt []byte) (offset, length int, ok bool) {
	if pkt[3]&0x20 == 0 {
		return 4, PacketSize - 4, true
	}
	offset = 4 + int(pkt[4]) + 1
	if offset > PacketSize {
		return offset, 0, false
	}
	return offset, PacketSize - offset, true
}

// ScramblePacket encrypts the payload of a clear packet with s and marks it
// with parity p. Packets already marked scrambled are left alone.
func ScramblePacket(pkt []byte, p Parity, s *Schedule) bool {
	if len(pkt) < PacketSize || pkt[3]&0xc0 != scClear {
		return false
	}
	off, n, ok := payloadSpan(pkt)
	if !ok {
		return false
	}
	s.Encrypt(pkt[off : off+n])
	pkt[3] |= scEven | byte(p)<<6
	return true
}

// DescramblePacket is the single-packet scalar counterpart of
// Engine.DecryptPackets, choosing the schedule by the packet's parity.
func DescramblePacket(pkt []byte, even, odd *Schedule) bool {
	if len(pkt) < PacketSize || pkt[3]&0x80 == 0 {
		return false
	}
	s := even
	if pkt[3]&0x40 != 0 {
		s = odd
	}
	pkt[3] &= 0x3f
	off, n, ok := payloadSpan(pkt)
	if ok {
		s.Decrypt(pkt[off : off+n])
	}
	return true
}
