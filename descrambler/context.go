// Package descrambler selects the cipher for a service and drives packets
// through it: CSA traffic is gathered into clusters for the bit-sliced
// engine, the block cipher kinds are decrypted packet by packet.
package descrambler

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/observe-l/tvcsa/csa"
	"github.com/observe-l/tvcsa/internal/tsheader"
)

// Options configures a Context.
type Options struct {
	Service uint16    // passed to the sink with every delivery
	Sink    Sink      // defaults to discarding output
	Width   csa.Width // CSA lane width, WidthAuto picks one for the host
	// ClusterMultiple scales the CSA cluster beyond the engine's suggested
	// size (default 1).
	ClusterMultiple int
	Metrics         *Metrics
	Tracer          *Tracer
	Logger          *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.Sink == nil {
		o.Sink = discard
	}
	if o.ClusterMultiple <= 0 {
		o.ClusterMultiple = 1
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// Context is the cipher state of one service. It is not safe for concurrent
// use.
type Context struct {
	opts   Options
	log    *logrus.Entry
	cipher Cipher

	// CSA only
	cluster   []byte
	size      int // cluster capacity in packets
	fill      int
	malformed uint64 // engine counter already reported
}

func NewContext(opts Options) *Context {
	opts.setDefaults()
	return &Context{
		opts: opts,
		log:  opts.Logger.WithFields(logrus.Fields{"subsystem": "descrambler", "service": opts.Service}),
	}
}

// Kind returns the installed cipher kind, KindNone before SetKind.
func (c *Context) Kind() Kind {
	if c.cipher == nil {
		return KindNone
	}
	return c.cipher.Kind()
}

// KeySize is the control word length expected by SetEvenKey and SetOddKey.
func (c *Context) KeySize() int {
	if c.cipher == nil {
		return 0
	}
	return c.Kind().KeySize()
}

// SetKind installs the cipher for k. Setting the current kind again is a
// no-op; any other kind is refused with ErrKindBusy until Close.
func (c *Context) SetKind(k Kind) error {
	if k == c.Kind() {
		return nil
	}
	if !k.valid() {
		return fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}
	if c.cipher != nil {
		return fmt.Errorf("%w: %s, want %s", ErrKindBusy, c.Kind(), k)
	}
	ciph, err := newCipher(k, c.opts.Width, c.opts.Logger)
	if err != nil {
		return err
	}
	if cc, ok := ciph.(*csaCipher); ok {
		c.size = c.opts.ClusterMultiple * cc.eng.SuggestedClusterSize()
		c.cluster = make([]byte, c.size*tsheader.PacketSize)
		c.fill = 0
		c.malformed = 0
	}
	c.cipher = ciph
	c.log.WithField("kind", k).Debugf("cipher installed, cluster %d packets", c.size)
	return nil
}

// SetEvenKey installs the even control word; it applies from the next batch.
func (c *Context) SetEvenKey(cw []byte) error { return c.setKey(csa.Even, cw) }

// SetOddKey installs the odd control word; it applies from the next batch.
func (c *Context) SetOddKey(cw []byte) error { return c.setKey(csa.Odd, cw) }

func (c *Context) setKey(p csa.Parity, cw []byte) error {
	if c.cipher == nil {
		return ErrNoKind
	}
	if len(cw) != c.KeySize() {
		return fmt.Errorf("%w: %d bytes for %s", ErrKeySize, len(cw), c.Kind())
	}
	if err := c.cipher.setKey(p, cw); err != nil {
		return err
	}
	c.opts.Metrics.keyUpdated(c.Kind(), p)
	return nil
}

// Descramble takes a run of whole packets. CSA packets are copied into the
// cluster, which is flushed each time it fills; the block cipher kinds decrypt
// tsb in place and deliver it at once.
func (c *Context) Descramble(tsb []byte) error {
	if len(tsb)%tsheader.PacketSize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrPacketSize, len(tsb))
	}
	switch ciph := c.cipher.(type) {
	case nil:
		return ErrNoKind
	case *csaCipher:
		for off := 0; off < len(tsb); off += tsheader.PacketSize {
			copy(c.cluster[c.fill*tsheader.PacketSize:], tsb[off:off+tsheader.PacketSize])
			c.fill++
			if c.fill == c.size {
				c.Flush()
			}
		}
	case blockCipher:
		var malformed uint64
		for off := 0; off < len(tsb); off += tsheader.PacketSize {
			if ciph.decrypt(tsb[off : off+tsheader.PacketSize]) {
				malformed++
			}
		}
		c.opts.Metrics.malformedAdaptation(malformed)
		if len(tsb) > 0 {
			c.deliver(tsb)
		}
	}
	return nil
}

// Flush decrypts every packet in the cluster, running as many engine
// batches as parity changes and lane limits require, and delivers them in
// one call. It is a no-op for the block cipher kinds.
func (c *Context) Flush() {
	cc, ok := c.cipher.(*csaCipher)
	if !ok || c.fill == 0 {
		return
	}
	fill := c.fill
	ranges := [][]byte{c.cluster[:fill*tsheader.PacketSize]}
	advanced, passes := 0, 0
	for len(ranges) > 0 {
		res := cc.eng.DecryptPackets(ranges)
		passes++
		if res.Advanced == 0 {
			c.log.Debugf("flush stalled after %d of %d packets", advanced, fill)
			break
		}
		advanced += res.Advanced
		ranges = res.Remaining
	}
	c.deliver(c.cluster[:fill*tsheader.PacketSize])
	c.fill = 0

	st := cc.eng.Stats()
	c.opts.Metrics.malformedAdaptation(st.MalformedAdaptation - c.malformed)
	c.malformed = st.MalformedAdaptation
	c.opts.Metrics.flushed(KindCSA, fill)
	c.opts.Tracer.record(&FlushEvent{
		Time:     time.Now().UnixNano(),
		Service:  c.opts.Service,
		Kind:     KindCSA,
		Fill:     fill,
		Advanced: advanced,
		Passes:   passes,
	})
}

// Drain flushes whatever is left in the cluster.
func (c *Context) Drain() { c.Flush() }

// Pending is the number of packets waiting in the cluster.
func (c *Context) Pending() int { return c.fill }

// ClusterSize is the cluster capacity in packets, 0 for the block cipher
// kinds.
func (c *Context) ClusterSize() int { return c.size }

// Stats returns the CSA engine counters; ok is false for other kinds.
func (c *Context) Stats() (st csa.Stats, ok bool) {
	if cc, isCSA := c.cipher.(*csaCipher); isCSA {
		return cc.eng.Stats(), true
	}
	return st, false
}

// Close drops the cipher and any queued packets. The context can be reused
// with a new SetKind.
func (c *Context) Close() {
	if c.fill > 0 {
		c.log.Debugf("closing with %d queued packets", c.fill)
	}
	*c = Context{opts: c.opts, log: c.log}
}

func (c *Context) deliver(pkts []byte) {
	c.opts.Sink.Deliver(c.opts.Service, pkts)
	c.opts.Metrics.delivered(c.Kind(), len(pkts)/tsheader.PacketSize)
}
