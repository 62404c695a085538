package csa

import (
	"errors"
)

// ControlWordSize is the length of a CSA control word.
const ControlWordSize = 8

var ErrControlWordSize = errors.New("csa: control word must be 8 bytes")

// Schedule is the key schedule derived from one control word.
type Schedule struct {
	CW [ControlWordSize]byte
	// A and B are the stream cipher initial register nibbles.
	A, B [8]byte
	// KK holds the 56 block cipher round keys, round i using KK[i].
	KK [56]byte
}

// NewSchedule expands cw into both cipher schedules.
func NewSchedule(cw []byte) (*Schedule, error) {
	if len(cw) != ControlWordSize {
		return nil, ErrControlWordSize
	}
	s := &Schedule{}
	copy(s.CW[:], cw)
	for i := 0; i < 4; i++ {
		s.A[2*i] = cw[i] >> 4
		s.A[2*i+1] = cw[i] & 0x0f
		s.B[2*i] = cw[4+i] >> 4
		s.B[2*i+1] = cw[4+i] & 0x0f
	}
	scheduleBlock(&s.KK, s.CW)
	return s, nil
}

func scheduleBlock(kk *[56]byte, cw [8]byte) {
	var kb [7][8]byte
	kb[6] = cw
	for i := 5; i >= 0; i-- {
		var bit, perm [64]byte
		for j := 0; j < 8; j++ {
			for k := 0; k < 8; k++ {
				bit[j*8+k] = (kb[i+1][j] >> (7 - k)) & 1
			}
		}
		for idx, b := range bit {
			perm[keyPerm[idx]-1] = b
		}
		for j := 0; j < 8; j++ {
			var v byte
			for k := 0; k < 8; k++ {
				v |= perm[j*8+k] << (7 - k)
			}
			kb[i][j] = v
		}
	}
	for i := 0; i < 7; i++ {
		for j := 0; j < 8; j++ {
			kk[i*8+j] = kb[i][j] ^ byte(i)
		}
	}
}

// groupKeys is a schedule broadcast into every lane of G.
type groupKeys[G Group[G]] struct {
	iA, iB [8][4]G
	kk     [56]byte
}

func (k *groupKeys[G]) load(s *Schedule) {
	for i := 0; i < 8; i++ {
		for b := 0; b < 4; b++ {
			k.iA[i][b] = broadcast[G](s.A[i]>>b&1 == 1)
			k.iB[i][b] = broadcast[G](s.B[i]>>b&1 == 1)
		}
	}
	k.kk = s.KK
}
