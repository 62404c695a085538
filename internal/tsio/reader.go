// Package tsio moves MPEG-TS packets between files, sockets and the
// descrambler.
package tsio

import (
	"bufio"
	"errors"
	"io"

	"github.com/observe-l/tvcsa/internal/tsheader"
)

// Reader yields whole, sync-aligned packets from a byte stream. Bytes
// before a sync byte are skipped.
type Reader struct {
	r       *bufio.Reader
	skipped int64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*tsheader.PacketSize)}
}

// Skipped is the number of bytes dropped while searching for sync.
func (r *Reader) Skipped() int64 { return r.skipped }

// Read fills buf with as many whole packets as fit and are available, and
// returns the number of bytes used. It stops early rather than wait for
// more input once at least one packet is read. At end of stream a trailing
// partial packet is dropped and io.EOF returned, possibly along with n > 0.
func (r *Reader) Read(buf []byte) (int, error) {
	n := 0
	for n+tsheader.PacketSize <= len(buf) {
		if err := r.sync(); err != nil {
			return n, err
		}
		pkt := buf[n : n+tsheader.PacketSize]
		if _, err := io.ReadFull(r.r, pkt); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			return n, err
		}
		n += tsheader.PacketSize
		if r.r.Buffered() < tsheader.PacketSize {
			break
		}
	}
	return n, nil
}

func (r *Reader) sync() error {
	for {
		b, err := r.r.Peek(1)
		if err != nil {
			return err
		}
		if b[0] == tsheader.SyncByte {
			return nil
		}
		if _, err := r.r.Discard(1); err != nil {
			return err
		}
		r.skipped++
	}
}

// Writer buffers packets for an io.Writer.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 64*tsheader.PacketSize)}
}

func (w *Writer) Write(pkts []byte) (int, error) { return w.w.Write(pkts) }

func (w *Writer) Flush() error { return w.w.Flush() }
