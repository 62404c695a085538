package csa

import "testing"

func testWordsRoundtrip[G Group[G]](t *testing.T) {
	var z G
	w := [2]uint64{0x0123456789abcdef, 0xfedcba9876543210}
	g := z.FromWords(w)
	back := g.Words()
	switch z.Lanes() {
	case 32:
		if back[0] != w[0]&0xffffffff || back[1] != 0 {
			t.Fatalf("32: %x", back)
		}
	case 64:
		if back[0] != w[0] || back[1] != 0 {
			t.Fatalf("64: %x", back)
		}
	default:
		if back != w {
			t.Fatalf("128: %x", back)
		}
	}
	if got := g.Xor(g); got != z {
		t.Fatalf("x^x != 0")
	}
	if got := g.AndNot(g); got != z {
		t.Fatalf("x&^x != 0")
	}
	if got := g.Or(g.Not()); got != z.Not() {
		t.Fatalf("x|^x != ones")
	}
	if got := broadcast[G](true); got != z.Not() {
		t.Fatalf("broadcast(true) != ones")
	}
}

func TestGroupBackends(t *testing.T) {
	t.Run("32", testWordsRoundtrip[Lane32])
	t.Run("64", testWordsRoundtrip[Lane64])
	t.Run("128", testWordsRoundtrip[Lane128])
}

func TestDetectWidthIsValid(t *testing.T) {
	if w := DetectWidth(); !w.valid() {
		t.Fatalf("detected width %v", w)
	}
}
