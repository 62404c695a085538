package csa

// Scalar, table driven CSA. It handles one payload at a time and serves as
// the reference the sliced engine is checked against, and as the encryptor
// for generating scrambled streams.

type scalarStream struct {
	a, b             [10]byte
	x, y, z, d, e, f byte
	p, q, r          byte
}

func (c *scalarStream) init(s *Schedule, iv []byte) {
	*c = scalarStream{}
	copy(c.a[:8], s.A[:])
	copy(c.b[:8], s.B[:])
	for i := 0; i < 8; i++ {
		in1, in2 := iv[i]>>4, iv[i]&0x0f
		for j := 0; j < 4; j++ {
			c.step(true, j, in1, in2)
		}
	}
}

// next fills out with the next 8 keystream bytes.
func (c *scalarStream) next(out *[8]byte) {
	for i := range out {
		var v byte
		for j := 0; j < 4; j++ {
			v = v<<2 | c.step(false, j, 0, 0)
		}
		out[i] = v
	}
}

func (c *scalarStream) step(init bool, j int, in1, in2 byte) byte {
	var sv [7]byte
	for n := range streamTaps {
		var idx byte
		for k, t := range streamTaps[n] {
			idx |= (c.a[t.slot] >> t.bit & 1) << (4 - k)
		}
		sv[n] = streamSbox[n][idx]
	}
	var extra byte
	for b := range extraTaps {
		var v byte
		for _, t := range extraTaps[b] {
			v ^= c.b[t.slot] >> t.bit & 1
		}
		extra |= v << b
	}

	nextA := c.a[9] ^ c.x
	nextB := c.b[6] ^ c.b[9] ^ c.y
	if init {
		ina, inb := in1, in2
		if j%2 == 1 {
			ina, inb = in2, in1
		}
		nextA ^= c.d ^ ina
		nextB ^= inb
	}
	if c.p != 0 {
		nextB = (nextB<<1 | nextB>>3) & 0x0f
	}

	c.d = c.e ^ c.z ^ extra
	nextE := c.f
	if c.q != 0 {
		sum := c.z + c.e + c.r
		c.r = (sum >> 4) & 1
		c.f = sum & 0x0f
	} else {
		c.f = c.e
	}
	c.e = nextE

	copy(c.a[1:], c.a[:9])
	c.a[0] = nextA
	copy(c.b[1:], c.b[:9])
	c.b[0] = nextB

	c.x = (sv[3]&1)<<3 | (sv[2]&1)<<2 | sv[1]&2 | (sv[0]&2)>>1
	c.y = (sv[5]&1)<<3 | (sv[4]&1)<<2 | sv[3]&2 | (sv[2]&2)>>1
	c.z = (sv[1]&1)<<3 | (sv[0]&1)<<2 | sv[5]&2 | (sv[4]&2)>>1
	c.p = sv[6] >> 1
	c.q = sv[6] & 1

	return ((c.d>>2^c.d>>3)&1)<<1 | (c.d^c.d>>1)&1
}

func (s *Schedule) blockDecrypt(w *[8]byte) {
	for i := 55; i >= 0; i-- {
		o := blockSbox[s.KK[i]^w[6]]
		l := w[7] ^ o
		*w = [8]byte{l, w[0], w[1] ^ l, w[2] ^ l, w[3] ^ l, w[4], w[5] ^ blockPerm[o], w[6]}
	}
}

func (s *Schedule) blockEncrypt(w *[8]byte) {
	for i := 0; i < 56; i++ {
		l := w[0]
		o := blockSbox[s.KK[i]^w[7]]
		*w = [8]byte{w[1], w[2] ^ l, w[3] ^ l, w[4] ^ l, w[5], w[6] ^ blockPerm[o], w[7], l ^ o}
	}
}

// Decrypt descrambles one packet payload in place. Payloads shorter than a
// block are left unchanged.
func (s *Schedule) Decrypt(data []byte) {
	n := len(data) / 8
	if n == 0 {
		return
	}
	var st scalarStream
	st.init(s, data[:8])
	var ib, ks, blk [8]byte
	copy(ib[:], data[:8])
	for k := 1; k < n; k++ {
		st.next(&ks)
		blk = ib
		s.blockDecrypt(&blk)
		for x := 0; x < 8; x++ {
			ib[x] = ks[x] ^ data[8*k+x]
			data[8*(k-1)+x] = ib[x] ^ blk[x]
		}
	}
	blk = ib
	s.blockDecrypt(&blk)
	copy(data[8*(n-1):], blk[:])
	if r := len(data) - 8*n; r > 0 {
		st.next(&ks)
		for x := 0; x < r; x++ {
			data[8*n+x] ^= ks[x]
		}
	}
}

// Encrypt scrambles one packet payload in place; Decrypt undoes it.
func (s *Schedule) Encrypt(data []byte) {
	n := len(data) / 8
	if n == 0 {
		return
	}
	var blk [8]byte
	copy(blk[:], data[8*(n-1):8*n])
	s.blockEncrypt(&blk)
	copy(data[8*(n-1):], blk[:])
	for k := n - 2; k >= 0; k-- {
		for x := 0; x < 8; x++ {
			blk[x] = data[8*k+x] ^ data[8*(k+1)+x]
		}
		s.blockEncrypt(&blk)
		copy(data[8*k:], blk[:])
	}

	var st scalarStream
	var ks [8]byte
	st.init(s, data[:8])
	for k := 1; k < n; k++ {
		st.next(&ks)
		for x := 0; x < 8; x++ {
			data[8*k+x] ^= ks[x]
		}
	}
	if r := len(data) - 8*n; r > 0 {
		st.next(&ks)
		for x := 0; x < r; x++ {
			data[8*n+x] ^= ks[x]
		}
	}
}
