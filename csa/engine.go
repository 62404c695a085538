package csa

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Options configures an Engine.
type Options struct {
	Width  Width         // lane count, WidthAuto picks one for the host
	Logger *logrus.Entry // defaults to the standard logger
}

func (o *Options) setDefaults() {
	if o.Width == WidthAuto {
		o.Width = DetectWidth()
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// batcher is the width-independent view of engine[G].
type batcher interface {
	lanesCount() int
	setKey(p Parity, s *Schedule)
	decrypt(ranges [][]byte, st *counters) Result
}

// Engine descrambles batches of CSA packets with a bit-sliced cipher. Both
// control words start out all zero. An Engine is not safe for concurrent use.
type Engine struct {
	width Width
	impl  batcher
	keys  [2]*Schedule
	stats counters
	log   *logrus.Entry
}

// New builds an engine for the requested lane width.
func New(opts Options) (*Engine, error) {
	opts.setDefaults()
	if !opts.Width.valid() {
		return nil, fmt.Errorf("csa: unsupported width %d", int(opts.Width))
	}
	e := &Engine{width: opts.Width, log: opts.Logger.WithField("subsystem", "csa")}
	switch opts.Width {
	case Width32:
		e.impl = newEngine[Lane32]()
	case Width64:
		e.impl = newEngine[Lane64]()
	case Width128:
		e.impl = newEngine[Lane128]()
	}
	zero := make([]byte, ControlWordSize)
	if err := e.SetControlWords(zero, zero); err != nil {
		return nil, err
	}
	e.log.Infof("Using %dbit parallel descrambling", int(opts.Width))
	return e, nil
}

// Width returns the lane width in use.
func (e *Engine) Width() Width { return e.width }

// Parallelism is the number of packets deciphered together.
func (e *Engine) Parallelism() int { return e.impl.lanesCount() }

// SuggestedClusterSize is the number of packets a caller should gather
// before calling DecryptPackets. The slack over Parallelism leaves room for
// clear packets and parity switches.
func (e *Engine) SuggestedClusterSize() int {
	n := e.Parallelism()
	return max(n+n/10, n+5)
}

// SetEvenControlWord replaces the even key from the next batch on.
func (e *Engine) SetEvenControlWord(cw []byte) error { return e.setKey(Even, cw) }

// SetOddControlWord replaces the odd key from the next batch on.
func (e *Engine) SetOddControlWord(cw []byte) error { return e.setKey(Odd, cw) }

// SetControlWords replaces both keys.
func (e *Engine) SetControlWords(even, odd []byte) error {
	if err := e.setKey(Even, even); err != nil {
		return err
	}
	return e.setKey(Odd, odd)
}

func (e *Engine) setKey(p Parity, cw []byte) error {
	s, err := NewSchedule(cw)
	if err != nil {
		return fmt.Errorf("%s key: %w", p, err)
	}
	e.keys[p] = s
	e.impl.setKey(p, s)
	return nil
}

// ControlWord returns the key currently installed for p.
func (e *Engine) ControlWord(p Parity) [ControlWordSize]byte {
	return e.keys[p&1].CW
}

// DecryptPackets deciphers, in place, up to Parallelism scrambled packets of
// one parity found in ranges. Each range is a run of whole 188-byte packets.
// The caller's slice is not modified; resume with Result.Remaining.
func (e *Engine) DecryptPackets(ranges [][]byte) Result {
	return e.impl.decrypt(ranges, &e.stats)
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats { return e.stats.snapshot() }
