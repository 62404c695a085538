package csa

import (
	"errors"
	"testing"
)

func TestScheduleStreamNibbles(t *testing.T) {
	s, err := NewSchedule([]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0})
	if err != nil {
		t.Fatal(err)
	}
	if s.A != [8]byte{1, 2, 3, 4, 5, 6, 7, 8} {
		t.Fatalf("A=%v", s.A)
	}
	if s.B != [8]byte{9, 10, 11, 12, 13, 14, 15, 0} {
		t.Fatalf("B=%v", s.B)
	}
}

func TestScheduleBlockLastRoundsUseKey(t *testing.T) {
	cw := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	s, err := NewSchedule(cw)
	if err != nil {
		t.Fatal(err)
	}
	for j := 0; j < 8; j++ {
		if s.KK[48+j] != cw[j]^6 {
			t.Fatalf("kk[%d]=%#x want %#x", 48+j, s.KK[48+j], cw[j]^6)
		}
	}
	// the permutation preserves the number of set bits in every round key
	ones := func(b []byte) int {
		n := 0
		for _, v := range b {
			for ; v != 0; v &= v - 1 {
				n++
			}
		}
		return n
	}
	for i := 0; i < 7; i++ {
		var kb [8]byte
		for j := range kb {
			kb[j] = s.KK[i*8+j] ^ byte(i)
		}
		if ones(kb[:]) != ones(cw) {
			t.Fatalf("round key %d has %d bits, cw has %d", i, ones(kb[:]), ones(cw))
		}
	}
}

func TestKeyPermIsPermutation(t *testing.T) {
	var seen [64]bool
	for _, p := range keyPerm {
		if p < 1 || p > 64 || seen[p-1] {
			t.Fatalf("bad entry %#x", p)
		}
		seen[p-1] = true
	}
}

func TestScheduleRejectsBadLength(t *testing.T) {
	for _, n := range []int{0, 7, 9, 16} {
		if _, err := NewSchedule(make([]byte, n)); !errors.Is(err, ErrControlWordSize) {
			t.Fatalf("len %d: err=%v", n, err)
		}
	}
}
