package csa

import "fmt"

// shiftReg is a virtual shift register: a window of `keep` live slots at the
// top of a larger backing array. Shifting moves the window down by one slot
// instead of copying every live value; rewind copies the window back to the
// top once the space below it is used up.
type shiftReg[T any] struct {
	slots []T
	off   int
	keep  int
}

func newShiftReg[T any](size, keep int) *shiftReg[T] {
	if keep <= 0 || size <= keep {
		panic(fmt.Sprintf("csa: bad shift register geometry %d/%d", size, keep))
	}
	return &shiftReg[T]{slots: make([]T, size), off: size - keep, keep: keep}
}

// at returns slot k of the live window, k=0 being the most recently pushed.
func (r *shiftReg[T]) at(k int) *T {
	if k < 0 || r.off+k >= len(r.slots) {
		panic(fmt.Sprintf("csa: shift register index %d out of window", k))
	}
	return &r.slots[r.off+k]
}

// push shifts every live slot up by one and returns the new slot 0.
func (r *shiftReg[T]) push() *T {
	if r.off == 0 {
		panic("csa: shift register exhausted, rewind required")
	}
	r.off--
	return &r.slots[r.off]
}

// rewind moves the live window back to the top of the backing array.
// Slot values are copied, so T must not alias shared storage.
func (r *shiftReg[T]) rewind() {
	top := len(r.slots) - r.keep
	if r.off == top {
		return
	}
	copy(r.slots[top:], r.slots[r.off:r.off+r.keep])
	r.off = top
}

// reset drops the window position without touching slot contents.
func (r *shiftReg[T]) reset() {
	r.off = len(r.slots) - r.keep
}
