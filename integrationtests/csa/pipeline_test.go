package csa_test

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/observe-l/tvcsa/csa"
	"github.com/observe-l/tvcsa/descrambler"
	"github.com/observe-l/tvcsa/internal/tsfec"
	"github.com/observe-l/tvcsa/internal/tsheader"
)

const (
	evenHex = "11 22 33 66 44 55 66 ff"
	oddHex  = "a1 b2 c3 16 d4 e5 f6 cf"
)

// buildStream returns n clear packets on pid with payload sizes spread over
// full, short and empty, switching parity every period packets when
// scrambled.
func buildStream(t testing.TB, rng *rand.Rand, pid uint16, n int) []byte {
	t.Helper()
	out := make([]byte, 0, n*tsheader.PacketSize)
	for i := 0; i < n; i++ {
		h := tsheader.Header{PID: pid, Payload: true, Continuity: uint8(i)}
		var af []byte
		room := tsheader.PacketSize - tsheader.HeaderLen
		switch i % 7 {
		case 3:
			h.Adaptation = true
			af = make([]byte, rng.Intn(room-1))
		case 5:
			h.Adaptation = true
			af = make([]byte, room-1-rng.Intn(8)) // payload shorter than a block
		}
		if h.Adaptation {
			room -= 1 + len(af)
		}
		payload := make([]byte, room)
		rng.Read(payload)
		pkt, err := tsheader.Build(h, af, payload)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		out = append(out, pkt...)
	}
	return out
}

func scrambleStream(t testing.TB, k descrambler.Kind, plain []byte, period int) []byte {
	t.Helper()
	keys := [2][]byte{descrambler.ParseKey(evenHex, k.KeySize()), descrambler.ParseKey(oddHex, k.KeySize())}
	enc := bytes.Clone(plain)
	for i := 0; i*tsheader.PacketSize < len(enc); i++ {
		p := csa.Parity((i / period) % 2)
		if _, err := descrambler.EncryptPacket(k, enc[i*tsheader.PacketSize:(i+1)*tsheader.PacketSize], p, keys[p]); err != nil {
			t.Fatalf("encrypt: %v", err)
		}
	}
	return enc
}

// TestPipelineOverLossyLink scrambles a service, carries it over a RaptorQ
// protected link that drops datagrams, and descrambles it with keys served
// by a constant-CW client.
func TestPipelineOverLossyLink(t *testing.T) {
	for _, k := range []descrambler.Kind{descrambler.KindCSA, descrambler.KindDESNCB, descrambler.KindAESECB} {
		t.Run(k.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			plain := buildStream(t, rng, 0x100, 640)
			scrambled := scrambleStream(t, k, plain, 100)

			params := tsfec.Params{Packets: 28, SymbolSize: 7 * tsheader.PacketSize, Repair: 6}
			enc, err := tsfec.NewEncoder(params)
			if err != nil {
				t.Fatalf("encoder: %v", err)
			}
			dec := tsfec.NewDecoder(4)
			loss := tsfec.NewLoss(0.1, rand.New(rand.NewSource(11)))

			cw, err := descrambler.NewConstCW("test", k, 0x0b00, 0, 1, 9, evenHex, oddHex)
			if err != nil {
				t.Fatalf("constcw: %v", err)
			}
			var got []byte
			reg := descrambler.NewRegistry(descrambler.Options{
				Width: csa.Width64,
				Sink:  descrambler.SinkFunc(func(_ uint16, b []byte) { got = append(got, b...) }),
			}, cw)
			reg.Start(descrambler.ServiceInfo{SID: 9, TSID: 1, ForceCAID: 0x0b00})

			for off := 0; off < len(scrambled); off += params.BlockBytes() {
				end := min(off+params.BlockBytes(), len(scrambled))
				dgs, err := enc.Encode(scrambled[off:end])
				if err != nil {
					t.Fatalf("encode: %v", err)
				}
				for _, dg := range loss.Keep(dgs) {
					data, ok, err := dec.Add(dg)
					if err != nil {
						t.Fatalf("fec: %v", err)
					}
					if !ok {
						continue
					}
					outcome, err := reg.Descramble(9, data)
					if err != nil || outcome != descrambler.OutcomeResolved {
						t.Fatalf("descramble: %v outcome=%d", err, outcome)
					}
				}
			}
			reg.DrainAll()
			if dec.Lost != 0 {
				t.Skipf("%d blocks lost at this loss rate", dec.Lost)
			}
			if !bytes.Equal(got, plain) {
				t.Fatalf("output differs from the clear stream (%d vs %d bytes)", len(got), len(plain))
			}
			t.Logf("%s: dropped %d datagrams, recovered %d blocks", k, loss.Dropped, dec.Recovered)
		})
	}
}

// TestWidthsAgreeOnLongStream descrambles the same stream at every lane width.
func TestWidthsAgreeOnLongStream(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	plain := buildStream(t, rng, 0x200, 2000)
	scrambled := scrambleStream(t, descrambler.KindCSA, plain, 333)

	for _, w := range []csa.Width{csa.Width32, csa.Width64, csa.Width128} {
		var got []byte
		ctx := descrambler.NewContext(descrambler.Options{
			Width:           w,
			ClusterMultiple: 2,
			Sink:            descrambler.SinkFunc(func(_ uint16, b []byte) { got = append(got, b...) }),
		})
		if err := ctx.SetKind(descrambler.KindCSA); err != nil {
			t.Fatal(err)
		}
		_ = ctx.SetEvenKey(descrambler.ParseKey(evenHex, 8))
		_ = ctx.SetOddKey(descrambler.ParseKey(oddHex, 8))
		// odd-sized writes
		for off := 0; off < len(scrambled); {
			n := (1 + rng.Intn(50)) * tsheader.PacketSize
			end := min(off+n, len(scrambled))
			if err := ctx.Descramble(scrambled[off:end]); err != nil {
				t.Fatal(err)
			}
			off = end
		}
		ctx.Drain()
		if !bytes.Equal(got, plain) {
			t.Fatalf("width %d: output differs", w)
		}
	}
}

func BenchmarkDescramble(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	for _, w := range []csa.Width{csa.Width32, csa.Width64, csa.Width128} {
		b.Run(fmt.Sprintf("csa%d", w), func(b *testing.B) {
			e, err := csa.New(csa.Options{Width: w})
			if err != nil {
				b.Fatal(err)
			}
			_ = e.SetControlWords(descrambler.ParseKey(evenHex, 8), descrambler.ParseKey(oddHex, 8))
			n := e.SuggestedClusterSize()
			plain := make([]byte, 0, n*tsheader.PacketSize)
			for i := 0; i < n; i++ {
				pkt, _ := tsheader.Build(tsheader.Header{PID: 0x100, Payload: true}, nil, make([]byte, 184))
				rng.Read(pkt[4:])
				plain = append(plain, pkt...)
			}
			scrambled := scrambleStream(b, descrambler.KindCSA, plain, n)
			buf := make([]byte, len(scrambled))
			b.SetBytes(int64(len(buf)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				copy(buf, scrambled)
				ranges := [][]byte{buf}
				for len(ranges) > 0 {
					ranges = e.DecryptPackets(ranges).Remaining
				}
			}
		})
	}
}

func BenchmarkBlockKinds(b *testing.B) {
	rng := rand.New(rand.NewSource(2))
	for _, k := range []descrambler.Kind{descrambler.KindDESNCB, descrambler.KindAESECB, descrambler.KindAES128ECB} {
		b.Run(k.String(), func(b *testing.B) {
			plain := buildStream(b, rng, 0x100, 256)
			scrambled := scrambleStream(b, k, plain, 256)
			ctx := descrambler.NewContext(descrambler.Options{})
			_ = ctx.SetKind(k)
			_ = ctx.SetEvenKey(descrambler.ParseKey(evenHex, k.KeySize()))
			buf := make([]byte, len(scrambled))
			b.SetBytes(int64(len(buf)))
			start := time.Now()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				copy(buf, scrambled)
				_ = ctx.Descramble(buf)
			}
			b.ReportMetric(float64(b.N*256)/time.Since(start).Seconds(), "pkts/s")
		})
	}
}
