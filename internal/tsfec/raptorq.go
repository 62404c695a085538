// Package tsfec protects blocks of TS packets sent over UDP with
// systematic RaptorQ: the first K symbols of a block carry the packets
// themselves, any further ones are repair.
package tsfec

import (
	"errors"
	"fmt"

	rqq "github.com/xssnick/raptorq"

	"github.com/observe-l/tvcsa/internal/tsheader"
)

var (
	ErrParams  = errors.New("tsfec: bad parameters")
	ErrHeader  = errors.New("tsfec: bad symbol header")
	ErrVersion = errors.New("tsfec: unsupported version")
)

// Params fixes the block geometry shared by sender and receiver.
type Params struct {
	Packets    int // TS packets per block
	SymbolSize int // bytes per symbol
	Repair     int // repair symbols per block
}

func (p Params) validate() error {
	if p.Packets <= 0 || p.SymbolSize <= 0 || p.SymbolSize > 0xffff || p.Repair < 0 {
		return fmt.Errorf("%w: %+v", ErrParams, p)
	}
	return nil
}

// BlockBytes is the TS payload of a full block.
func (p Params) BlockBytes() int { return p.Packets * tsheader.PacketSize }

// Encoder turns TS data into symbol datagrams.
type Encoder struct {
	p       Params
	rq      *rqq.RaptorQ
	blockID uint16
}

func NewEncoder(p Params) (*Encoder, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Encoder{p: p, rq: rqq.NewRaptorQ(uint32(p.SymbolSize))}, nil
}

// Encode returns the datagrams for one block of at most BlockBytes of TS
// data: K source symbols followed by Repair repair symbols.
func (e *Encoder) Encode(data []byte) ([][]byte, error) {
	if len(data) == 0 || len(data) > e.p.BlockBytes() {
		return nil, fmt.Errorf("%w: block of %d bytes", ErrParams, len(data))
	}
	enc, err := e.rq.CreateEncoder(data)
	if err != nil {
		return nil, err
	}
	k := enc.BaseSymbolsNum()
	h := Header{Version: Version, BlockID: e.blockID, DataLen: uint32(len(data)), SymbolSize: uint16(e.p.SymbolSize)}
	e.blockID++

	out := make([][]byte, 0, int(k)+e.p.Repair)
	for id := uint32(0); id < k+uint32(e.p.Repair); id++ {
		h.SymbolID = id
		sym := enc.GenSymbol(id)
		dg := make([]byte, HeaderLen+len(sym))
		h.MarshalBinary(dg)
		copy(dg[HeaderLen:], sym)
		out = append(out, dg)
	}
	return out, nil
}

type rxBlock struct {
	dec    *rqq.Decoder
	k      uint32
	source uint32 // source symbols received
	done   bool
}

// Decoder reassembles blocks from symbol datagrams in any order. It keeps
// a window of recent block ids and forgets older ones.
type Decoder struct {
	window int
	blocks map[uint16]*rxBlock
	newest uint16
	seen   bool

	Recovered int // blocks that needed repair symbols
	Lost      int // blocks evicted before decoding
}

func NewDecoder(window int) *Decoder {
	if window <= 0 {
		window = 8
	}
	return &Decoder{window: window, blocks: make(map[uint16]*rxBlock)}
}

// Add feeds one datagram. When it completes a block, the block's TS data is
// returned; later symbols of that block are ignored.
func (d *Decoder) Add(dg []byte) ([]byte, bool, error) {
	var h Header
	if !h.UnmarshalBinary(dg) {
		return nil, false, ErrHeader
	}
	if h.Version != Version {
		return nil, false, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	sym := dg[HeaderLen:]
	if len(sym) == 0 || len(sym) > int(h.SymbolSize) {
		return nil, false, fmt.Errorf("%w: symbol of %d bytes, header says %d", ErrHeader, len(sym), h.SymbolSize)
	}
	d.advance(h.BlockID)
	b, ok := d.blocks[h.BlockID]
	if !ok {
		if d.stale(h.BlockID) {
			return nil, false, nil
		}
		dec, err := rqq.NewRaptorQ(uint32(h.SymbolSize)).CreateDecoder(h.DataLen)
		if err != nil {
			return nil, false, err
		}
		b = &rxBlock{dec: dec, k: (h.DataLen + uint32(h.SymbolSize) - 1) / uint32(h.SymbolSize)}
		d.blocks[h.BlockID] = b
	}
	if b.done {
		return nil, false, nil
	}
	if h.SymbolID < b.k {
		b.source++
	}
	canTry, err := b.dec.AddSymbol(h.SymbolID, sym)
	if err != nil || !canTry {
		return nil, false, err
	}
	ok, data, err := b.dec.Decode()
	if err != nil || !ok {
		return nil, false, err
	}
	b.done = true
	if b.source < b.k {
		d.Recovered++
	}
	return data, true, nil
}

// advance moves the window to include id and evicts blocks that fell out.
func (d *Decoder) advance(id uint16) {
	if !d.seen {
		d.newest, d.seen = id, true
		return
	}
	if int16(id-d.newest) <= 0 {
		return
	}
	d.newest = id
	for bid, b := range d.blocks {
		if d.stale(bid) {
			if !b.done {
				d.Lost++
			}
			delete(d.blocks, bid)
		}
	}
}

func (d *Decoder) stale(id uint16) bool {
	return int(uint16(d.newest-id)) >= d.window
}
