package descrambler

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"fmt"

	"github.com/observe-l/tvcsa/csa"
	"github.com/observe-l/tvcsa/internal/tsheader"
)

// blockKeys holds one block cipher per parity. A packet payload is processed
// as independent blocks; a trailing partial block stays clear.
type blockKeys struct {
	keys [2]cipher.Block
}

func (b *blockKeys) set(p csa.Parity, blk cipher.Block) { b.keys[p] = blk }

// decrypt deciphers every whole block of the payload of a scrambled packet
// and clears its scrambling bits. Packets without scrambling are left alone;
// malformed reports an adaptation field running past the packet end.
func (b *blockKeys) decrypt(pkt []byte) (malformed bool) {
	sc := tsheader.Scrambling(pkt)
	if sc&tsheader.ScramblingEven == 0 {
		return false
	}
	blk := b.keys[csa.Parity(sc&1)]
	tsheader.SetScrambling(pkt, tsheader.ScramblingClear)
	off, n, err := tsheader.PayloadSpan(pkt)
	if err != nil {
		return true
	}
	if blk == nil {
		return false
	}
	bs := blk.BlockSize()
	for i := off; i+bs <= off+n; i += bs {
		blk.Decrypt(pkt[i:i+bs], pkt[i:i+bs])
	}
	return false
}

func (b *blockKeys) encrypt(pkt []byte, p csa.Parity) bool {
	if tsheader.Scrambling(pkt) != tsheader.ScramblingClear {
		return false
	}
	blk := b.keys[p]
	off, n, err := tsheader.PayloadSpan(pkt)
	if err != nil || blk == nil {
		return false
	}
	bs := blk.BlockSize()
	for i := off; i+bs <= off+n; i += bs {
		blk.Encrypt(pkt[i:i+bs], pkt[i:i+bs])
	}
	tsheader.SetScrambling(pkt, tsheader.ScramblingEven|uint8(p))
	return true
}

// desNCB is single DES applied block by block.
type desNCB struct{ blockKeys }

func (*desNCB) Kind() Kind { return KindDESNCB }

func (d *desNCB) setKey(p csa.Parity, cw []byte) error {
	blk, err := des.NewCipher(cw)
	if err != nil {
		return err
	}
	d.set(p, blk)
	return nil
}

// aesECB covers both AES kinds. The 8-byte variant zero extends its control
// word to a 128-bit key.
type aesECB struct {
	blockKeys
	kind Kind
}

func (a *aesECB) Kind() Kind { return a.kind }

func (a *aesECB) setKey(p csa.Parity, cw []byte) error {
	key := make([]byte, aes.BlockSize)
	copy(key, cw)
	blk, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	a.set(p, blk)
	return nil
}

// EncryptPacket scrambles a clear packet in place with kind k and control
// word cw, marking it with parity p. CSA payloads go through the scalar
// cipher. It is the counterpart of Context.Descramble and exists for test
// stream generation.
func EncryptPacket(k Kind, pkt []byte, p csa.Parity, cw []byte) (bool, error) {
	if len(pkt) < tsheader.PacketSize {
		return false, ErrPacketSize
	}
	if len(cw) != k.KeySize() {
		return false, fmt.Errorf("%w: %d bytes for %s", ErrKeySize, len(cw), k)
	}
	switch k {
	case KindCSA:
		s, err := csa.NewSchedule(cw)
		if err != nil {
			return false, err
		}
		return csa.ScramblePacket(pkt, p, s), nil
	case KindDESNCB, KindAESECB, KindAES128ECB:
		c, err := newCipher(k, csa.WidthAuto, nil)
		if err != nil {
			return false, err
		}
		if err := c.setKey(p, cw); err != nil {
			return false, err
		}
		return c.(blockCipher).encrypt(pkt, p), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
}
