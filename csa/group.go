package csa

import (
	"fmt"
	"math/bits"

	"golang.org/x/sys/cpu"
)

// Group is one bit-plane word of the sliced representation: bit g carries the
// corresponding bit of lane (packet) g. The engine is written once against
// this constraint and instantiated per backend.
type Group[G any] interface {
	Lane32 | Lane64 | Lane128

	And(G) G
	Or(G) G
	Xor(G) G
	// AndNot returns the receiver with the bits of the argument cleared.
	AndNot(G) G
	Not() G
	Lanes() int
	// Words exposes the lanes as little-endian 64-bit words, lane g at
	// word g/64 bit g%64.
	Words() [2]uint64
	FromWords(w [2]uint64) G
}

// Lane32 is the 32-lane backend.
type Lane32 uint32

func (a Lane32) And(b Lane32) Lane32 { return a & b }
func (a Lane32) Or(b Lane32) Lane32 { return a | b }
func (a Lane32) Xor(b Lane32) Lane32 { return a ^ b }
func (a Lane32) AndNot(b Lane32) Lane32 { return a &^ b }
func (a Lane32) Not() Lane32 { return ^a }
func (Lane32) Lanes() int { return 32 }
func (a Lane32) Words() [2]uint64 { return [2]uint64{uint64(a)} }
func (Lane32) FromWords(w [2]uint64) Lane32 {
	return Lane32(uint32(w[0]))
}

// Lane64 is the 64-lane backend.
type Lane64 uint64

func (a Lane64) And(b Lane64) Lane64 { return a & b }
func (a Lane64) Or(b Lane64) Lane64 { return a | b }
func (a Lane64) Xor(b Lane64) Lane64 { return a ^ b }
func (a Lane64) AndNot(b Lane64) Lane64 { return a &^ b }
func (a Lane64) Not() Lane64 { return ^a }
func (Lane64) Lanes() int { return 64 }
func (a Lane64) Words() [2]uint64 { return [2]uint64{uint64(a)} }
func (Lane64) FromWords(w [2]uint64) Lane64 { return Lane64(w[0]) }

// Lane128 is the 128-lane backend, two machine words wide.
type Lane128 struct {
	Lo, Hi uint64
}

func (a Lane128) And(b Lane128) Lane128 { return Lane128{a.Lo & b.Lo, a.Hi & b.Hi} }
func (a Lane128) Or(b Lane128) Lane128 { return Lane128{a.Lo | b.Lo, a.Hi | b.Hi} }
func (a Lane128) Xor(b Lane128) Lane128 { return Lane128{a.Lo ^ b.Lo, a.Hi ^ b.Hi} }
func (a Lane128) AndNot(b Lane128) Lane128 { return Lane128{a.Lo &^ b.Lo, a.Hi &^ b.Hi} }
func (a Lane128) Not() Lane128 { return Lane128{^a.Lo, ^a.Hi} }
func (Lane128) Lanes() int { return 128 }
func (a Lane128) Words() [2]uint64 { return [2]uint64{a.Lo, a.Hi} }
func (Lane128) FromWords(w [2]uint64) Lane128 {
	return Lane128{w[0], w[1]}
}

// broadcast returns all-ones when on is set, zero otherwise.
func broadcast[G Group[G]](on bool) G {
	var z G
	if on {
		return z.Not()
	}
	return z
}

// Width selects the group backend.
type Width int

const (
	WidthAuto Width = 0
	Width32   Width = 32
	Width64   Width = 64
	Width128  Width = 128
)

func (w Width) String() string {
	if w == WidthAuto {
		return "auto"
	}
	return fmt.Sprintf("%dbit", int(w))
}

func (w Width) valid() bool {
	return w == Width32 || w == Width64 || w == Width128
}

// DetectWidth picks the widest backend that the host executes cheaply.
func DetectWidth() Width {
	switch {
	case cpu.X86.HasSSE2, cpu.ARM64.HasASIMD:
		return Width128
	case bits.UintSize == 64:
		return Width64
	}
	return Width32
}
