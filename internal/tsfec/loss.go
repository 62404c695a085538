package tsfec

import (
	"math/rand"
)

// Loss drops datagrams independently with probability p, standing in for
// a lossy link.
type Loss struct {
	p       float64
	rng     *rand.Rand
	Dropped int
}

func NewLoss(p float64, rng *rand.Rand) *Loss { return &Loss{p: p, rng: rng} }

func (l *Loss) drop() bool {
	switch {
	case l.p <= 0:
		return false
	case l.p >= 1:
		return true
	}
	return l.rng.Float64() < l.p
}

// Keep returns the datagrams that survive, reusing dgs.
func (l *Loss) Keep(dgs [][]byte) [][]byte {
	out := dgs[:0]
	for _, dg := range dgs {
		if l.drop() {
			l.Dropped++
			continue
		}
		out = append(out, dg)
	}
	return out
}
