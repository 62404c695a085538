package descrambler

import (
	"bufio"
	"bytes"
	"io"

	"github.com/francoispqt/gojay"
	"github.com/sasha-s/go-deadlock"
)

// FlushEvent describes one flush of a cluster through the CSA engine.
type FlushEvent struct {
	Time     int64 // unix nanoseconds
	Service  uint16
	Kind     Kind
	Fill     int // packets in the cluster
	Advanced int // packets the engine decrypted or passed as clear
	Passes   int // engine batches run
}

func (e *FlushEvent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.AddInt64Key("ts", e.Time)
	enc.AddIntKey("service", int(e.Service))
	enc.AddStringKey("kind", e.Kind.String())
	enc.AddIntKey("fill", e.Fill)
	enc.AddIntKey("advanced", e.Advanced)
	enc.AddIntKey("passes", e.Passes)
}

func (e *FlushEvent) IsNil() bool { return e == nil }

func (e *FlushEvent) UnmarshalJSONObject(dec *gojay.Decoder, key string) error {
	switch key {
	case "ts":
		return dec.Int64(&e.Time)
	case "service":
		var v int
		if err := dec.Int(&v); err != nil {
			return err
		}
		e.Service = uint16(v)
	case "kind":
		var s string
		if err := dec.String(&s); err != nil {
			return err
		}
		k, err := ParseKind(s)
		if err != nil {
			return err
		}
		e.Kind = k
	case "fill":
		return dec.Int(&e.Fill)
	case "advanced":
		return dec.Int(&e.Advanced)
	case "passes":
		return dec.Int(&e.Passes)
	}
	return nil
}

func (e *FlushEvent) NKeys() int { return 6 }

// Tracer writes flush events as JSON lines. It is safe for concurrent use;
// the first write error stops further output and is kept for Err.
type Tracer struct {
	mu  deadlock.Mutex
	w   io.Writer
	err error
}

func NewTracer(w io.Writer) *Tracer { return &Tracer{w: w} }

func (t *Tracer) record(ev *FlushEvent) {
	if t == nil {
		return
	}
	b, err := gojay.MarshalJSONObject(ev)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	if err != nil {
		t.err = err
		return
	}
	b = append(b, '\n')
	_, t.err = t.w.Write(b)
}

// Err returns the first error met while writing.
func (t *Tracer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// ReadTrace calls fn for every event in a trace written by Tracer.
func ReadTrace(r io.Reader, fn func(*FlushEvent) error) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev FlushEvent
		if err := gojay.UnmarshalJSONObject(line, &ev); err != nil {
			return err
		}
		if err := fn(&ev); err != nil {
			return err
		}
	}
	return sc.Err()
}
