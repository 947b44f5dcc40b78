// queue.go - the textbook Michael-Scott lock-free MPMC queue. Simple by
// design rather than a novel-engineering centerpiece, but still part of the
// public surface, and, like Stack, shares the hazard-pointer reclamation
// manager rather than relying on GC alone.
package lockfree

import (
	"sync/atomic"

	"github.com/JoshMarron/lockfree/internal/cacheline"
	"github.com/JoshMarron/lockfree/internal/hazard"
)

type msNode[T any] struct {
	value T
	next  atomic.Pointer[msNode[T]]
}

// Queue is a lock-free FIFO queue (Michael-Scott algorithm).
type Queue[T any] struct {
	_    [cacheline.Size]byte
	head atomic.Pointer[msNode[T]]
	_    [cacheline.PadAfterUint64]byte
	tail atomic.Pointer[msNode[T]]

	hz *hazard.Manager[msNode[T]]
}

// NewQueue constructs an empty Queue.
func NewQueue[T any](opts ...Option) *Queue[T] {
	c := resolve(opts)
	sentinel := &msNode[T]{}
	q := &Queue[T]{
		hz: hazard.New[msNode[T]](c.scanThreshold, c.hazardsPerThread,
			hazard.WithRecorder[msNode[T]](c.recorder)),
	}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Enqueue adds value to the back of the queue.
func (q *Queue[T]) Enqueue(value T) {
	n := &msNode[T]{value: value}
	h := q.hz.Acquire()
	defer h.Release()

	for {
		tail := q.tail.Load()
		h.Protect(0, tail)
		if q.tail.Load() != tail {
			continue
		}

		next := tail.next.Load()
		if next != nil {
			// Tail is lagging behind a link another enqueuer already made;
			// help it along before retrying.
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			return
		}
	}
}

// Dequeue removes and returns the value at the front of the queue, or
// (zero, false) if the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	h := q.hz.Acquire()
	defer h.Release()

	for {
		head := q.head.Load()
		h.Protect(0, head)
		if q.head.Load() != head {
			continue
		}

		tail := q.tail.Load()
		next := head.next.Load()

		if head == tail {
			if next == nil {
				var zero T
				return zero, false
			}
			// Tail is lagging; help it advance before retrying.
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		if next == nil {
			// head != tail implies a next link is in flight; retry.
			continue
		}

		value := next.value
		if q.head.CompareAndSwap(head, next) {
			h.Unprotect(0)
			h.Retire(head)
			return value, true
		}
	}
}

// Close drains the queue's hazard manager. Callers must ensure no
// operations are in flight.
func (q *Queue[T]) Close() {
	q.hz.Close()
}
