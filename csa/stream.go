package csa

type streamMode int

const (
	// streamInit absorbs the IV and the key, producing no output.
	streamInit streamMode = iota
	// streamGenerate produces 8 keystream bytes per lane.
	streamGenerate
)

const (
	streamRegSize = 42
	streamRegLive = 10
)

// streamState is the bit-sliced stream cipher. A and B hold one nibble per
// slot as four bit planes; the other registers are single nibbles or bits.
type streamState[G Group[G]] struct {
	a, b             *shiftReg[[4]G]
	x, y, z, d, e, f [4]G
	p, q, r          G
}

func newStreamState[G Group[G]]() *streamState[G] {
	return &streamState[G]{
		a: newShiftReg[[4]G](streamRegSize, streamRegLive),
		b: newShiftReg[[4]G](streamRegSize, streamRegLive),
	}
}

// init loads the key and runs the 32 initialisation steps over iv, whose
// plane 8*i+bit carries bit `bit` of IV byte i of every lane.
func (s *streamState[G]) init(k *groupKeys[G], iv *[64]G) {
	var zero [4]G
	s.a.reset()
	s.b.reset()
	for i := 0; i < 8; i++ {
		*s.a.at(i) = k.iA[i]
		*s.b.at(i) = k.iB[i]
	}
	for i := 8; i < streamRegLive; i++ {
		*s.a.at(i) = zero
		*s.b.at(i) = zero
	}
	s.x, s.y, s.z, s.d, s.e, s.f = zero, zero, zero, zero, zero, zero
	var z G
	s.p, s.q, s.r = z, z, z
	s.run(streamInit, iv, nil)
}

// generate writes the next 8 keystream bytes of every lane into out, in the
// same plane layout init consumes.
func (s *streamState[G]) generate(out *[64]G) {
	s.run(streamGenerate, nil, out)
}

func (s *streamState[G]) run(mode streamMode, in, out *[64]G) {
	var in1, in2 [4]G
	for i := 0; i < 8; i++ {
		if mode == streamInit {
			for b := 0; b < 4; b++ {
				in1[b] = in[8*i+4+b]
				in2[b] = in[8*i+b]
			}
		}
		for j := 0; j < 4; j++ {
			s.step(mode, j, &in1, &in2)
			if mode == streamGenerate {
				out[8*i+7-2*j] = s.d[2].Xor(s.d[3])
				out[8*i+6-2*j] = s.d[0].Xor(s.d[1])
			}
		}
	}
	s.a.rewind()
	s.b.rewind()
}

func (s *streamState[G]) abit(t tap) G { return s.a.at(t.slot)[t.bit] }
func (s *streamState[G]) bbit(t tap) G { return s.b.at(t.slot)[t.bit] }

func (s *streamState[G]) sboxIn(n int) (fe, fa, fb, fc, fd G) {
	t := &streamTaps[n]
	return s.abit(t[0]), s.abit(t[1]), s.abit(t[2]), s.abit(t[3]), s.abit(t[4])
}

func (s *streamState[G]) step(mode streamMode, j int, in1, in2 *[4]G) {
	s1a, s1b := sbox1[G](s.sboxIn(0))
	s2a, s2b := sbox2[G](s.sboxIn(1))
	s3a, s3b := sbox3[G](s.sboxIn(2))
	s4a, s4b := sbox4[G](s.sboxIn(3))
	s5a, s5b := sbox5[G](s.sboxIn(4))
	s6a, s6b := sbox6[G](s.sboxIn(5))
	s7a, s7b := sbox7[G](s.sboxIn(6))

	var extra [4]G
	for b := 0; b < 4; b++ {
		t := &extraTaps[b]
		extra[b] = s.bbit(t[0]).Xor(s.bbit(t[1])).Xor(s.bbit(t[2])).Xor(s.bbit(t[3]))
	}

	var nextA, nextB [4]G
	a9, b6, b9 := s.a.at(9), s.b.at(6), s.b.at(9)
	for b := 0; b < 4; b++ {
		nextA[b] = a9[b].Xor(s.x[b])
		nextB[b] = b6[b].Xor(b9[b]).Xor(s.y[b])
	}
	if mode == streamInit {
		ina, inb := in1, in2
		if j%2 == 1 {
			ina, inb = in2, in1
		}
		for b := 0; b < 4; b++ {
			nextA[b] = nextA[b].Xor(s.d[b]).Xor(ina[b])
			nextB[b] = nextB[b].Xor(inb[b])
		}
	}

	// rotate next B left by one bit in the lanes where p is set
	hi := nextB[3]
	nextB[3] = nextB[3].Xor(nextB[3].Xor(nextB[2]).And(s.p))
	nextB[2] = nextB[2].Xor(nextB[2].Xor(nextB[1]).And(s.p))
	nextB[1] = nextB[1].Xor(nextB[1].Xor(nextB[0]).And(s.p))
	nextB[0] = nextB[0].Xor(nextB[0].Xor(hi).And(s.p))

	for b := 0; b < 4; b++ {
		s.d[b] = s.e[b].Xor(s.z[b]).Xor(extra[b])
	}

	// F = Z + E + r where q is set, F = E elsewhere; E takes the old F
	nextE := s.f
	carry := s.r
	for b := 0; b < 4; b++ {
		ze := s.z[b].Xor(s.e[b])
		s.f[b] = s.e[b].Xor(s.q.And(s.z[b].Xor(carry)))
		carry = s.z[b].And(s.e[b]).Or(ze.And(carry))
	}
	s.r = s.r.Xor(s.q.And(carry.Xor(s.r)))
	s.e = nextE

	*s.a.push() = nextA
	*s.b.push() = nextB

	s.x = [4]G{s1a, s2a, s3b, s4b}
	s.y = [4]G{s3a, s4a, s5b, s6b}
	s.z = [4]G{s5a, s6a, s1b, s2b}
	s.p = s7a
	s.q = s7b
}

// The seven stream S-boxes as Boolean circuits over sliced bits. Each agrees
// with the matching streamSbox table for all 32 inputs.

func sbox1[G Group[G]](fe, fa, fb, fc, fd G) (G, G) {
	t0 := fa.Xor(fb.Xor(fa.Or(fb).Xor(fc).Or(fc.Xor(fd)).Not()))
	t1 := fa.Or(fb).Xor(fc.And(fa.Or(fb.Xor(fd))).Not())
	t2 := fa.Xor(fb.And(fd).Xor(fa.And(fd).Or(fc)))
	t3 := fa.And(fc).Xor(fa.Xor(fa.And(fb).Or(fd)))
	return t0.Xor(fe.And(t1)), t2.Xor(fe.And(t3))
}

func sbox2[G Group[G]](fe, fa, fb, fc, fd G) (G, G) {
	t0 := fa.Xor(fb.And(fc.Or(fd)).Xor(fc.Xor(fd.Not())))
	t1 := fa.And(fb.Xor(fd)).Or(fa.Or(fb).And(fc))
	t2 := fb.And(fd).Xor(fa.And(fd).Or(fb.Xor(fc.Not())))
	t3 := fa.And(fd).Or(fa.Xor(fb.Xor(fc.And(fd))))
	return t0.Xor(fe.And(t1)), t2.Xor(fe.And(t3))
}

func sbox3[G Group[G]](fe, fa, fb, fc, fd G) (G, G) {
	t0 := fa.Xor(fb.Xor(fc.And(fa.Or(fd)).Xor(fd)))
	t1 := fa.And(fc).Xor(fa.Xor(fd).Or(fb.Or(fc).Xor(fd.Not())))
	t2 := fa.Xor(fb.Xor(fc).And(fd).Xor(fc))
	return t0.Xor(t1.AndNot(fe)), t2.Xor(fe)
}

func sbox4[G Group[G]](fe, fa, fb, fc, fd G) (G, G) {
	t0 := fa.Xor(fc.And(fa.Xor(fd)).Or(fb.Xor(fc.Or(fd.Not()))))
	t1 := fa.And(fb).Xor(fb.Xor(fa.Or(fc).And(fd).Xor(fc)))
	t2 := fa.Xor(fb.And(fc).Or(fa.And(fb.Xor(fd)).Or(fc).Xor(fd)))
	a := t0.Xor(fe.And(t1.Xor(t0)))
	return a, a.Xor(t2).Xor(fe)
}

func sbox5[G Group[G]](fe, fa, fb, fc, fd G) (G, G) {
	t0 := fa.And(fb.Or(fc)).Xor(fb).Or(fa.Xor(fc).Or(fd).Not())
	t1 := fb.Xor(fc.Xor(fd).And(fc.Xor(fb.Or(fa.Xor(fd)))))
	t2 := fa.And(fc).Xor(fb.Xor(fb.Or(fa.Xor(fc)).And(fd)))
	t3 := fa.Xor(fb).AndNot(fc).Or(fd)
	return t0.Xor(fe.And(t1)), t2.Xor(fe.And(t3))
}

func sbox6[G Group[G]](fe, fa, fb, fc, fd G) (G, G) {
	t0 := fa.And(fc).And(fd).Xor(fb.And(fa.Or(fd)).Xor(fc))
	t1 := fa.Xor(fc).And(fd).Not()
	t2 := fa.And(fb.Or(fc)).Xor(fb.Xor(fb.And(fc).Or(fd)))
	t3 := fc.And(fa.And(fb.Xor(fd)).Xor(fb.Or(fd)))
	return t0.Xor(fe.And(t1)), t2.Xor(fe.And(t3))
}

func sbox7[G Group[G]](fe, fa, fb, fc, fd G) (G, G) {
	t0 := fb.Xor(fc.And(fd).Or(fa.Xor(fc.Xor(fd))))
	t1 := fb.Or(fd).And(fa.And(fc).Or(fb.Xor(fc.Xor(fd))))
	t2 := fa.Or(fb).Xor(fc.And(fb.Or(fd)).Xor(fd))
	t3 := fd.Or(fa.And(fc).Not())
	return t0.Xor(fe.And(t1)), t2.Xor(fe.And(t3))
}
