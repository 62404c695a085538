package csa

import (
	"math/rand"
	"testing"
)

// Lane g of the inputs carries S-box index g, so one evaluation covers the
// whole 32-entry table.
func TestStreamSboxCircuitsMatchTables(t *testing.T) {
	var in [5]Lane32
	for g := 0; g < 32; g++ {
		for k := 0; k < 5; k++ {
			if g>>(4-k)&1 == 1 {
				in[k] |= 1 << g
			}
		}
	}
	circuits := []func(fe, fa, fb, fc, fd Lane32) (Lane32, Lane32){
		sbox1[Lane32], sbox2[Lane32], sbox3[Lane32], sbox4[Lane32],
		sbox5[Lane32], sbox6[Lane32], sbox7[Lane32],
	}
	for n, f := range circuits {
		a, b := f(in[0], in[1], in[2], in[3], in[4])
		for g := 0; g < 32; g++ {
			got := byte(a>>g&1)<<1 | byte(b>>g&1)
			if got != streamSbox[n][g] {
				t.Fatalf("sbox%d[%d]=%d want %d", n+1, g, got, streamSbox[n][g])
			}
		}
	}
}

func testStreamMatchesScalar[G Group[G]](t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var z G
	lanes := z.Lanes()
	cw := make([]byte, 8)
	rng.Read(cw)
	s, err := NewSchedule(cw)
	if err != nil {
		t.Fatal(err)
	}
	var k groupKeys[G]
	k.load(s)

	ivs := make([][8]byte, lanes)
	for g := range ivs {
		rng.Read(ivs[g][:])
	}
	var seed, out [64]G
	planesFromBlocks(&seed, ivs)
	st := newStreamState[G]()
	st.init(&k, &seed)

	ref := make([]scalarStream, lanes)
	for g := range ref {
		ref[g].init(s, ivs[g][:])
	}
	got := make([][8]byte, lanes)
	for call := 0; call < 5; call++ {
		st.generate(&out)
		blocksFromPlanes(got, &out)
		for g := range ref {
			var want [8]byte
			ref[g].next(&want)
			if got[g] != want {
				t.Fatalf("call %d lane %d: %x want %x", call, g, got[g], want)
			}
		}
	}
}

func TestStreamMatchesScalar(t *testing.T) {
	t.Run("32", testStreamMatchesScalar[Lane32])
	t.Run("64", testStreamMatchesScalar[Lane64])
	t.Run("128", testStreamMatchesScalar[Lane128])
}

func TestTransposeRoundtrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	in := make([][8]byte, 100)
	for g := range in {
		rng.Read(in[g][:])
	}
	var planes [64]Lane128
	planesFromBlocks(&planes, in)
	out := make([][8]byte, len(in))
	blocksFromPlanes(out, &planes)
	for g := range in {
		if in[g] != out[g] {
			t.Fatalf("lane %d: %x != %x", g, out[g], in[g])
		}
	}
	// plane 8*i+b of lane g is bit b of byte i
	if got := planes[8*2+5].Words()[1]>>(70-64)&1; got != uint64(in[70][2]>>5&1) {
		t.Fatalf("plane layout mismatch")
	}
}
