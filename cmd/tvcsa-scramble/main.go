// tvcsa-scramble produces scrambled transport streams for exercising the
// descrambler: it encrypts selected PIDs with fixed control words,
// switching parity every crypto period, and writes the result to a file or
// sends it over UDP, optionally protected by RaptorQ.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/observe-l/tvcsa/csa"
	"github.com/observe-l/tvcsa/descrambler"
	"github.com/observe-l/tvcsa/internal/tsfec"
	"github.com/observe-l/tvcsa/internal/tsheader"
	"github.com/observe-l/tvcsa/internal/tsio"
)

func main() {
	var (
		in      = flag.String("in", "-", "input TS file, - for stdin")
		out     = flag.String("out", "-", "output TS file, - for stdout")
		udp     = flag.String("udp", "", "send to host:port instead of writing a file")
		ttl     = flag.Int("ttl", 1, "multicast TTL")
		kind    = flag.String("kind", "csa", "cipher: csa|des-ncb|aes-ecb|aes128-ecb")
		even    = flag.String("even", "11 22 33 66 44 55 66 ff", "even control word (hex)")
		odd     = flag.String("odd", "01 02 03 06 04 05 06 0f", "odd control word (hex)")
		pids    = flag.String("pids", "", "comma separated PIDs to scramble, empty for all but PAT")
		period  = flag.Int("period", 1000, "packets per crypto period")
		fec     = flag.Bool("fec", false, "protect UDP output with RaptorQ")
		packets = flag.Int("fec-packets", 64, "TS packets per FEC block")
		symbol  = flag.Int("symbol", 1316, "FEC symbol bytes")
		repair  = flag.Int("repair", 8, "repair symbols per block")
		loss    = flag.Float64("loss", 0, "sender drop probability (simulate)")
		pace    = flag.Duration("pace", 0, "sleep between datagrams")
	)
	flag.Parse()

	k, err := descrambler.ParseKind(*kind)
	if err != nil {
		fail(err)
	}
	s := &scrambler{
		kind:   k,
		keys:   [2][]byte{descrambler.ParseKey(*even, k.KeySize()), descrambler.ParseKey(*odd, k.KeySize())},
		period: *period,
	}
	if s.pids, err = parsePIDs(*pids); err != nil {
		fail(err)
	}

	src := os.Stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		src = f
	}

	chunk := 7
	var emit func([]byte) error
	switch {
	case *udp != "":
		sink, err := tsio.DialUDP(*udp, *ttl)
		if err != nil {
			fail(err)
		}
		defer sink.Close()
		u := &udpSender{sink: sink, pace: *pace, loss: tsfec.NewLoss(*loss, rand.New(rand.NewSource(time.Now().UnixNano())))}
		if *fec {
			chunk = *packets
			if u.enc, err = tsfec.NewEncoder(tsfec.Params{Packets: *packets, SymbolSize: *symbol, Repair: *repair}); err != nil {
				fail(err)
			}
		}
		emit = u.send
		defer func() { fmt.Fprintf(os.Stderr, "sent %d datagrams, dropped %d\n", u.sent, u.loss.Dropped) }()
	default:
		dst := os.Stdout
		if *out != "-" {
			f, err := os.Create(*out)
			if err != nil {
				fail(err)
			}
			defer f.Close()
			dst = f
		}
		w := tsio.NewWriter(dst)
		defer func() {
			if err := w.Flush(); err != nil {
				fail(err)
			}
		}()
		emit = func(b []byte) error { _, err := w.Write(b); return err }
	}

	if err := s.run(tsio.NewReader(src), chunk, emit); err != nil {
		fail(err)
	}
	fmt.Fprintf(os.Stderr, "scrambled %d of %d packets\n", s.scrambled, s.total)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func parsePIDs(s string) (map[uint16]bool, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	set := make(map[uint16]bool)
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 0, 13)
		if err != nil {
			return nil, fmt.Errorf("pid %q: %w", f, err)
		}
		set[uint16(v)] = true
	}
	return set, nil
}

type scrambler struct {
	kind   descrambler.Kind
	keys   [2][]byte
	pids   map[uint16]bool // nil selects every PID but 0
	period int

	total, scrambled int
}

// run reads whole packets from r, scrambles the selected ones and hands
// them to emit chunk packets at a time.
func (s *scrambler) run(r io.Reader, chunk int, emit func([]byte) error) error {
	buf := make([]byte, chunk*tsheader.PacketSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			n -= n % tsheader.PacketSize
			if serr := s.scramble(buf[:n]); serr != nil {
				return serr
			}
			if eerr := emit(buf[:n]); eerr != nil {
				return eerr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *scrambler) scramble(pkts []byte) error {
	for off := 0; off < len(pkts); off += tsheader.PacketSize {
		pkt := pkts[off : off+tsheader.PacketSize]
		pid := tsheader.PID(pkt)
		if (s.pids == nil && pid == 0) || (s.pids != nil && !s.pids[pid]) {
			continue
		}
		p := csa.Even
		if s.period > 0 && (s.total/s.period)%2 == 1 {
			p = csa.Odd
		}
		s.total++
		ok, err := descrambler.EncryptPacket(s.kind, pkt, p, s.keys[p])
		if err != nil {
			return err
		}
		if ok {
			s.scrambled++
		}
	}
	return nil
}

type udpSender struct {
	sink *tsio.UDPSink
	enc  *tsfec.Encoder
	loss *tsfec.Loss
	pace time.Duration
	sent int
}

func (u *udpSender) send(b []byte) error {
	dgs := [][]byte{b}
	if u.enc != nil {
		var err error
		if dgs, err = u.enc.Encode(b); err != nil {
			return err
		}
	}
	for _, dg := range u.loss.Keep(dgs) {
		if err := u.sink.Send(dg); err != nil {
			return err
		}
		u.sent++
		if u.pace > 0 {
			time.Sleep(u.pace)
		}
	}
	return nil
}
