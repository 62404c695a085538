package csa

import "crypto/subtle"

const (
	blockRegSize = 8 + 56
	blockRegLive = 8
)

// blockState runs the block cipher over many lanes at once. Register row j
// holds byte j of every lane's block; the S-box lookup is the only step done
// lane by lane.
type blockState struct {
	reg        *shiftReg[[]byte]
	sOut, pOut []byte
}

func newBlockState(lanes int) *blockState {
	reg := newShiftReg[[]byte](blockRegSize, blockRegLive)
	for i := range reg.slots {
		reg.slots[i] = make([]byte, lanes)
	}
	return &blockState{
		reg:  reg,
		sOut: make([]byte, lanes),
		pOut: make([]byte, lanes),
	}
}

// decrypt deciphers the first m lanes of in into out.
func (s *blockState) decrypt(kk *[56]byte, in, out [][8]byte, m int) {
	if m <= 0 {
		return
	}
	s.reg.reset()
	for j := 0; j < 8; j++ {
		row := *s.reg.at(j)
		for g := 0; g < m; g++ {
			row[g] = in[g][j]
		}
	}
	sOut, pOut := s.sOut[:m], s.pOut[:m]
	for i := 55; i >= 0; i-- {
		k := kk[i]
		w6, w7 := *s.reg.at(6), *s.reg.at(7)
		for g, v := range w6[:m] {
			o := blockSbox[k^v]
			sOut[g] = o
			pOut[g] = blockPerm[o]
		}
		l := *s.reg.push()
		subtle.XORBytes(l[:m], w7[:m], sOut)
		for _, j := range [...]int{2, 3, 4} {
			row := *s.reg.at(j)
			subtle.XORBytes(row[:m], row[:m], l[:m])
		}
		row := *s.reg.at(6)
		subtle.XORBytes(row[:m], row[:m], pOut)
	}
	for j := 0; j < 8; j++ {
		row := *s.reg.at(j)
		for g := 0; g < m; g++ {
			out[g][j] = row[g]
		}
	}
}
