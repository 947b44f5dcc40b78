// Package markable implements the Tagged Pointer Cell primitive shared by
// every container in this module: a single machine-word atomic cell whose
// two low bits are stolen to carry a "mark" flag and an "array node" flag
// alongside the pointer payload.
//
// The technique is the same one the Go runtime itself uses in
// sync.poolDequeue to pack a head and tail index into one atomic word, and
// the one the original rustcurrent implementation used via
// AtomicUsize-backed AtomicMarkablePtr<K, V>: steal low bits from an
// allocation that the host allocator guarantees is aligned to more than the
// number of bits stolen. Go's allocator aligns every heap allocation to at
// least 8 bytes, so bits 0 and 1 are always free.
package markable

import (
	"sync/atomic"
	"unsafe"
)

const (
	markBit  = uintptr(1) << 0
	arrayBit = uintptr(1) << 1
	flagMask = markBit | arrayBit
)

// Mark sets the mark bit on p.
func Mark(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) | markBit) //nolint:govet // intentional pointer tagging
}

// Unmark clears the mark bit on p.
func Unmark(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) &^ markBit)
}

// MarkArray sets the array-node bit on p.
func MarkArray(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) | arrayBit)
}

// UnmarkArray clears the array-node bit on p.
func UnmarkArray(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) &^ arrayBit)
}

// IsMarked reports whether the mark bit is set on p.
func IsMarked(p unsafe.Pointer) bool {
	return uintptr(p)&markBit != 0
}

// IsArray reports whether the array-node bit is set on p.
func IsArray(p unsafe.Pointer) bool {
	return uintptr(p)&arrayBit != 0
}

// Clean strips both flag bits, returning the raw aligned pointer.
func Clean(p unsafe.Pointer) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) &^ flagMask)
}

// Ptr is a single word-sized atomic cell holding a pointer whose two low
// bits encode {mark, is-array-node}. The all-zero value denotes the empty
// cell. Ptr has no destructor or reclaim hook of its own: its payload is
// freed by the garbage collector once unreachable, and callers that retire
// payloads do so through internal/hazard.
type Ptr struct {
	v atomic.Uintptr
}

// Load is a plain sequentially consistent load of the tagged word.
func (c *Ptr) Load() unsafe.Pointer {
	return unsafe.Pointer(c.v.Load())
}

// RawPtr loads the cell and returns (nil, false) if it is empty, else the
// raw tagged word as a pointer (flags still set; callers call Clean/IsArray
// themselves before dereferencing).
func (c *Ptr) RawPtr() (unsafe.Pointer, bool) {
	v := c.v.Load()
	if v == 0 {
		return nil, false
	}
	return unsafe.Pointer(v), true
}

// MarkBit0 atomically fetch-ORs bit 0, announcing that this slot is being
// expanded/removed away from. sync/atomic has no native fetch-or for
// uintptr, so this is a CAS retry loop; any lost race just means another
// goroutine got there first, which is benign because the bit only ever
// moves 0 -> 1.
func (c *Ptr) MarkBit0() {
	for {
		old := c.v.Load()
		if old&markBit != 0 {
			return
		}
		if c.v.CompareAndSwap(old, old|markBit) {
			return
		}
	}
}

// CAS performs a sequentially consistent compare-and-swap of the whole
// tagged word. On success it returns (old, true). On failure it returns the
// observed current value and false.
func (c *Ptr) CAS(old, new unsafe.Pointer) (unsafe.Pointer, bool) {
	if c.v.CompareAndSwap(uintptr(old), uintptr(new)) {
		return old, true
	}
	return unsafe.Pointer(c.v.Load()), false
}

// CASAndMark CASes the cell from old to mark(old) atomically, announcing a
// logical deletion before a physical unlink. HashMap does not call it: its
// Remove and Update CAS the observed leaf directly.
func (c *Ptr) CASAndMark(old unsafe.Pointer) (unsafe.Pointer, bool) {
	return c.CAS(old, Mark(old))
}

// StoreRelease publishes p into the cell with release semantics. Used only
// where no CAS is required because no other goroutine can yet observe the
// cell (e.g. pre-populating a freshly allocated array node's slot before it
// is linked into the trie).
func (c *Ptr) StoreRelease(p unsafe.Pointer) {
	c.v.Store(uintptr(p))
}
