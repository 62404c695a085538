package csa

// planesFromBlocks slices one 8-byte block per lane into bit planes: plane
// 8*i+b holds bit b of byte i of every lane. Lanes past len(blocks) are zero.
func planesFromBlocks[G Group[G]](planes *[64]G, blocks [][8]byte) {
	var w [64][2]uint64
	for g := range blocks {
		word, bit := g>>6, uint(g&63)
		for i, v := range blocks[g] {
			for b := 0; b < 8; b++ {
				w[8*i+b][word] |= uint64(v>>b&1) << bit
			}
		}
	}
	var z G
	for k := range planes {
		planes[k] = z.FromWords(w[k])
	}
}

// blocksFromPlanes is the inverse of planesFromBlocks for the first
// len(blocks) lanes.
func blocksFromPlanes[G Group[G]](blocks [][8]byte, planes *[64]G) {
	var w [64][2]uint64
	for k := range planes {
		w[k] = planes[k].Words()
	}
	for g := range blocks {
		word, bit := g>>6, uint(g&63)
		for i := 0; i < 8; i++ {
			var v byte
			for b := 0; b < 8; b++ {
				v |= byte(w[8*i+b][word]>>bit&1) << b
			}
			blocks[g][i] = v
		}
	}
}
