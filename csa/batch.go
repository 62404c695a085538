package csa

import "crypto/subtle"

// Result reports the outcome of one DecryptPackets call.
type Result struct {
	// Advanced is the number of leading packets, across ranges, that are now
	// clear and may be handed downstream.
	Advanced int
	// Remaining holds the unconsumed tail of every range that still has
	// data, in order. Pass it to the next call to resume.
	Remaining [][]byte
}

// lane is one packet of a batch.
type lane struct {
	payload []byte
	pos     int // offset of the block being deciphered
	n       int // full 8-byte blocks
	residue int
}

// engine is the batch scheduler and both ciphers instantiated for one group
// backend.
type engine[G Group[G]] struct {
	width  int
	keys   [2]groupKeys[G]
	stream *streamState[G]
	block  *blockState

	lanes     []lane
	ib        [][8]byte
	blockOut  [][8]byte
	streamOut [][8]byte
	seed, ks  [64]G
}

func newEngine[G Group[G]]() *engine[G] {
	var z G
	n := z.Lanes()
	return &engine[G]{
		width:     n,
		stream:    newStreamState[G](),
		block:     newBlockState(n),
		lanes:     make([]lane, 0, n),
		ib:        make([][8]byte, n),
		blockOut:  make([][8]byte, n),
		streamOut: make([][8]byte, n),
	}
}

func (e *engine[G]) lanesCount() int { return e.width }

func (e *engine[G]) setKey(p Parity, s *Schedule) { e.keys[p].load(s) }

func (e *engine[G]) decrypt(ranges [][]byte, st *counters) Result {
	lanes, parity, res := e.collect(ranges, st)
	if len(lanes) == 0 {
		return res
	}
	t23 := sortLanes(lanes)
	alive := aliveCounts(lanes, t23)
	st.batches.Add(1)
	e.run(lanes, &alive, &e.keys[parity], st)
	return res
}

// collect scans ranges for up to width packets of a single parity, clearing
// their scramble bits. Packets of the other parity stay untouched, and from
// the first of them on no range start moves forward, so that the next call
// sees them again. Clear and reserved packets are counted only once the
// range start passes them.
func (e *engine[G]) collect(ranges [][]byte, st *counters) ([]lane, Parity, Result) {
	lanes := e.lanes[:0]
	starts := make([]int, len(ranges))
	parity := Even
	advanced := 0
	canAdvance := true

scan:
	for r, rng := range ranges {
		for pos := 0; pos+PacketSize <= len(rng); pos += PacketSize {
			if len(lanes) == e.width {
				break scan
			}
			pkt := rng[pos : pos+PacketSize]
			switch sc := pkt[3] & 0xc0; sc {
			case scClear:
				if canAdvance {
					st.clear.Add(1)
				}
			case scReserved:
				if canAdvance {
					st.reserved.Add(1)
				}
			default:
				p := Parity(sc>>6) & 1
				if len(lanes) == 0 {
					parity = p
				}
				if p != parity {
					canAdvance = false
					continue
				}
				pkt[3] &= 0x3f
				off, size, ok := payloadSpan(pkt)
				switch {
				case !ok:
					st.malformed.Add(1)
				case size < 8:
					st.short.Add(1)
				default:
					lanes = append(lanes, lane{payload: pkt[off:], n: size / 8, residue: size % 8})
					st.decrypted[p].Add(1)
				}
			}
			if canAdvance {
				advanced++
				starts[r] = pos + PacketSize
			}
		}
	}

	res := Result{Advanced: advanced}
	for r, rng := range ranges {
		if rest := rng[starts[r]:]; len(rest) > 0 {
			res.Remaining = append(res.Remaining, rest)
		}
	}
	return lanes, parity, res
}

// sortLanes moves every full-length packet to the front, then orders the
// rest by decreasing block count. It returns the number of full-length ones.
func sortLanes(lanes []lane) int {
	t23, small := 0, len(lanes)-1
	for {
		for t23 < len(lanes) && lanes[t23].n == 23 {
			t23++
		}
		for small >= 0 && lanes[small].n != 23 {
			small--
		}
		if small-t23 < 1 {
			break
		}
		lanes[t23], lanes[small] = lanes[small], lanes[t23]
		t23++
		small--
	}
	for i := t23; i < len(lanes); i++ {
		for j := i + 1; j < len(lanes); j++ {
			if lanes[j].n > lanes[i].n {
				lanes[i], lanes[j] = lanes[j], lanes[i]
			}
		}
	}
	return t23
}

// aliveCounts returns, for each i, how many packets have more than i blocks,
// i.e. still take part in block round i+1.
func aliveCounts(lanes []lane, t23 int) [24]int {
	var alive [24]int
	alive[22] = t23
	for _, l := range lanes[t23:] {
		alive[l.n-1]++
	}
	for i := 22; i >= 0; i-- {
		alive[i] += alive[i+1]
	}
	return alive
}

func (e *engine[G]) run(lanes []lane, alive *[24]int, k *groupKeys[G], st *counters) {
	ib := e.ib[:len(lanes)]
	for g := range lanes {
		copy(ib[g][:], lanes[g].payload[:8])
	}
	planesFromBlocks(&e.seed, ib)
	e.stream.init(k, &e.seed)

	for iter := 1; iter < 23 && alive[iter-1] > 0; iter++ {
		e.block.decrypt(&k.kk, ib, e.blockOut, alive[iter-1])
		e.stream.generate(&e.ks)
		blocksFromPlanes(e.streamOut[:alive[iter-1]], &e.ks)
		st.rounds.Add(1)

		for g := 0; g < alive[iter]; g++ {
			l := &lanes[g]
			subtle.XORBytes(ib[g][:], e.streamOut[g][:], l.payload[l.pos+8:l.pos+16])
			subtle.XORBytes(l.payload[l.pos:l.pos+8], ib[g][:], e.blockOut[g][:])
		}
		for g := alive[iter]; g < alive[iter-1]; g++ {
			l := &lanes[g]
			copy(l.payload[l.pos:l.pos+8], e.blockOut[g][:])
			if l.residue > 0 {
				tail := l.payload[l.pos+8 : l.pos+8+l.residue]
				subtle.XORBytes(tail, tail, e.streamOut[g][:l.residue])
			}
		}
		for g := 0; g < alive[iter]; g++ {
			lanes[g].pos += 8
		}
	}

	// last round is block only: a full payload has no residue
	if alive[22] > 0 {
		e.block.decrypt(&k.kk, ib, e.blockOut, alive[22])
		st.rounds.Add(1)
		for g := alive[23]; g < alive[22]; g++ {
			l := &lanes[g]
			copy(l.payload[l.pos:l.pos+8], e.blockOut[g][:])
		}
	}
}
