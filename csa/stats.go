package csa

import "sync/atomic"

// Stats is a snapshot of engine counters.
type Stats struct {
	Clear     uint64    // packets without scrambling
	Reserved  uint64    // scramble control 01
	Decrypted [2]uint64 // per parity, batched through the cipher
	Short     uint64    // payload shorter than one block, left as is
	// MalformedAdaptation counts packets whose adaptation field runs past
	// the end of the packet. They are passed on unmodified.
	MalformedAdaptation uint64
	Batches             uint64
	Rounds              uint64 // block cipher passes over all batches
}

type counters struct {
	clear     atomic.Uint64
	reserved  atomic.Uint64
	decrypted [2]atomic.Uint64
	short     atomic.Uint64
	malformed atomic.Uint64
	batches   atomic.Uint64
	rounds    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Clear:               c.clear.Load(),
		Reserved:            c.reserved.Load(),
		Decrypted:           [2]uint64{c.decrypted[0].Load(), c.decrypted[1].Load()},
		Short:               c.short.Load(),
		MalformedAdaptation: c.malformed.Load(),
		Batches:             c.batches.Load(),
		Rounds:              c.rounds.Load(),
	}
}
