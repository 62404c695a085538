package descrambler

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/observe-l/tvcsa/csa"
)

var (
	ErrUnknownKind = errors.New("descrambler: unknown cipher kind")
	ErrKindBusy    = errors.New("descrambler: cipher kind already installed")
	ErrNoKind      = errors.New("descrambler: no cipher kind set")
	ErrKeySize     = errors.New("descrambler: bad control word length")
	ErrPacketSize  = errors.New("descrambler: input is not a whole number of packets")
)

// Cipher is the per-kind decryption state of a Context. The set of
// implementations is closed: *csaCipher, *desNCB and *aesECB.
type Cipher interface {
	Kind() Kind
	setKey(p csa.Parity, cw []byte) error
}

// blockCipher is a Cipher that works packet by packet without batching.
type blockCipher interface {
	Cipher
	decrypt(pkt []byte) (malformed bool)
	encrypt(pkt []byte, p csa.Parity) bool
}

// csaCipher batches packets through the bit-sliced engine.
type csaCipher struct {
	eng *csa.Engine
}

func (*csaCipher) Kind() Kind { return KindCSA }

func (c *csaCipher) setKey(p csa.Parity, cw []byte) error {
	if p == csa.Odd {
		return c.eng.SetOddControlWord(cw)
	}
	return c.eng.SetEvenControlWord(cw)
}

func newCipher(k Kind, width csa.Width, log *logrus.Entry) (Cipher, error) {
	switch k {
	case KindCSA:
		eng, err := csa.New(csa.Options{Width: width, Logger: log})
		if err != nil {
			return nil, err
		}
		return &csaCipher{eng: eng}, nil
	case KindDESNCB:
		return withZeroKeys(&desNCB{})
	case KindAESECB, KindAES128ECB:
		return withZeroKeys(&aesECB{kind: k})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
}

// withZeroKeys installs all-zero control words, matching the CSA engine's
// initial state.
func withZeroKeys(c Cipher) (Cipher, error) {
	zero := make([]byte, c.Kind().KeySize())
	for _, p := range []csa.Parity{csa.Even, csa.Odd} {
		if err := c.setKey(p, zero); err != nil {
			return nil, err
		}
	}
	return c, nil
}
