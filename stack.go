// stack.go - the textbook Treiber stack. Simple by design rather than a
// novel-engineering centerpiece, but still part of the public surface, and,
// per the original rustcurrent's module doc comment, it shares the same
// hazard-pointer reclamation manager as every other container in this
// package rather than trusting the garbage collector alone to make
// concurrent Pop safe.
package lockfree

import (
	"sync/atomic"

	"github.com/JoshMarron/lockfree/internal/cacheline"
	"github.com/JoshMarron/lockfree/internal/hazard"
)

type stackNode[T any] struct {
	value T
	next  *stackNode[T]
}

// Stack is a lock-free LIFO stack.
type Stack[T any] struct {
	_    [cacheline.Size]byte
	head atomic.Pointer[stackNode[T]]
	_    [cacheline.PadAfterUint64]byte

	hz *hazard.Manager[stackNode[T]]
}

// NewStack constructs an empty Stack.
func NewStack[T any](opts ...Option) *Stack[T] {
	c := resolve(opts)
	return &Stack[T]{
		hz: hazard.New[stackNode[T]](c.scanThreshold, c.hazardsPerThread,
			hazard.WithRecorder[stackNode[T]](c.recorder)),
	}
}

// Push adds value to the top of the stack.
func (s *Stack[T]) Push(value T) {
	n := &stackNode[T]{value: value}
	for {
		old := s.head.Load()
		n.next = old
		if s.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// Pop removes and returns the value at the top of the stack, or (zero,
// false) if the stack is empty.
func (s *Stack[T]) Pop() (T, bool) {
	h := s.hz.Acquire()
	defer h.Release()

	for {
		old := s.head.Load()
		if old == nil {
			var zero T
			return zero, false
		}

		h.Protect(0, old)
		if s.head.Load() != old {
			// old may already be retired by a racing Pop; re-check before
			// trusting the protection, per the classical hazard re-check.
			continue
		}

		next := old.next
		if s.head.CompareAndSwap(old, next) {
			v := old.value
			h.Unprotect(0)
			h.Retire(old)
			return v, true
		}
	}
}

// Close drains the stack's hazard manager. Callers must ensure no
// operations are in flight.
func (s *Stack[T]) Close() {
	s.hz.Close()
}
