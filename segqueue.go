// segqueue.go - the lock-free k-FIFO segmented queue. Segments are
// fixed-k-slot nodes in a forward-linked list; any of a segment's occupied
// slots may be the next one dequeued, trading strict FIFO order for lower
// contention (randomized slot probing spreads concurrent enqueuers/
// dequeuers across k slots instead of serializing them on one).
package lockfree

import (
	"math/rand/v2"
	"sync/atomic"
	"unsafe"

	"github.com/JoshMarron/lockfree/internal/cacheline"
	"github.com/JoshMarron/lockfree/internal/hazard"
	"github.com/JoshMarron/lockfree/internal/markable"
)

// segSlot is the boxed payload a segment slot cell points to: either an
// occupied value or, when full is false, the "empty sentinel" the original
// design calls for. The sentinel indirection lets enqueue CAS an empty slot
// atomically and lets dequeue reinstate emptiness without disturbing the
// segment's structure.
type segSlot[T any] struct {
	full  bool
	value T
}

type segment[T any] struct {
	slots   []markable.Ptr
	next    atomic.Pointer[segment[T]]
	deleted atomic.Bool
}

func newSegment[T any](k int) *segment[T] {
	s := &segment[T]{slots: make([]markable.Ptr, k)}
	for i := range s.slots {
		s.slots[i].StoreRelease(unsafe.Pointer(&segSlot[T]{}))
	}
	return s
}

// SegQueue is a lock-free k-FIFO queue: dequeue returns one of the current
// head segment's occupied slots, not necessarily the oldest.
type SegQueue[T any] struct {
	_    [cacheline.Size]byte
	head atomic.Pointer[segment[T]]
	_    [cacheline.PadAfterUint64]byte
	tail atomic.Pointer[segment[T]]

	k        int
	hz       *hazard.Manager[segment[T]]
	recorder Recorder
	segCount atomic.Int64
}

// NewSegQueue constructs an empty SegQueue with k slots per segment. k must
// be >= 1; at k == 1 behavior matches Queue but with more contention per
// element, so prefer Queue directly in that case.
func NewSegQueue[T any](k int, opts ...Option) *SegQueue[T] {
	if k < 1 {
		invariantf("SegQueue k must be >= 1, got %d", k)
	}
	if k == 1 {
		logWarnf("segqueue", "k=1 degrades to single-slot contention; prefer Queue", map[string]any{"k": k})
	}
	c := resolve(opts)
	init := newSegment[T](k)
	q := &SegQueue[T]{
		k: k,
		hz: hazard.New[segment[T]](c.scanThreshold, c.hazardsPerThread,
			hazard.WithRecorder[segment[T]](c.recorder)),
		recorder: c.recorder,
	}
	q.head.Store(init)
	q.tail.Store(init)
	q.segCount.Store(1)
	return q
}

// Enqueue adds value to the queue.
func (q *SegQueue[T]) Enqueue(value T) {
	handle := q.hz.Acquire()
	defer handle.Release()

	payload := unsafe.Pointer(&segSlot[T]{full: true, value: value})

	for {
		tail := q.tail.Load()
		handle.Protect(0, tail)
		if q.tail.Load() != tail {
			continue
		}

		order := rand.Perm(q.k)
		idx, oldRaw, found := findEmptySlot(tail, order)
		if !found {
			q.advanceTail(tail)
			continue
		}

		if q.tail.Load() != tail {
			continue
		}

		if _, ok := tail.slots[idx].CAS(oldRaw, payload); !ok {
			continue
		}

		if q.commit(tail, payload, idx) {
			return
		}
		// Rolled back: tail was concurrently unlinked before our write
		// could be observed as belonging to the queue. Retry with the
		// same payload on whatever the tail is now.
	}
}

func findEmptySlot[T any](seg *segment[T], order []int) (int, unsafe.Pointer, bool) {
	for _, i := range order {
		raw, ok := seg.slots[i].RawPtr()
		if !ok {
			continue
		}
		if !(*segSlot[T])(raw).full {
			return i, raw, true
		}
	}
	return 0, nil, false
}

func findOccupiedSlot[T any](seg *segment[T], order []int) (int, unsafe.Pointer, bool) {
	for _, i := range order {
		raw, ok := seg.slots[i].RawPtr()
		if !ok {
			continue
		}
		if (*segSlot[T])(raw).full {
			return i, raw, true
		}
	}
	return 0, nil, false
}

// commit decides whether the payload just CASed into tail.slots[idx]
// actually belongs to the queue, or must be rolled back because a
// concurrent dequeue had already unlinked tail. This is the race the
// plain enqueue CAS above cannot resolve by itself: advanceHead can mark
// a segment deleted and retire it in the window between our CAS and this
// check.
func (q *SegQueue[T]) commit(tail *segment[T], itemPtr unsafe.Pointer, idx int) bool {
	if cur, _ := tail.slots[idx].RawPtr(); cur != itemPtr {
		// Already dequeued by someone else.
		return true
	}

	if tail.deleted.Load() {
		return q.rollbackOrCommit(tail, idx, itemPtr)
	}

	head := q.head.Load()
	if head == tail {
		// Self-CAS as a load-acquire barrier: if head is still what we
		// observed, the write is linearized before any concurrent
		// advance_head; if not, head moved and we must recheck deletion
		// via the slot itself.
		if q.head.CompareAndSwap(head, head) {
			return true
		}
		return q.rollbackOrCommit(tail, idx, itemPtr)
	}

	return true
}

func (q *SegQueue[T]) rollbackOrCommit(tail *segment[T], idx int, itemPtr unsafe.Pointer) bool {
	sentinel := unsafe.Pointer(&segSlot[T]{})
	if _, ok := tail.slots[idx].CAS(itemPtr, sentinel); ok {
		return false
	}
	return true
}

// Dequeue removes and returns one of the head segment's occupied values,
// or (zero, false) if the queue is empty.
func (q *SegQueue[T]) Dequeue() (T, bool) {
	handle := q.hz.Acquire()
	defer handle.Release()

	for {
		head := q.head.Load()
		handle.Protect(0, head)
		if q.head.Load() != head {
			continue
		}

		order := rand.Perm(q.k)
		idx, itemRaw, found := findOccupiedSlot(head, order)
		tail := q.tail.Load()

		if q.head.Load() != head {
			continue
		}

		if found {
			if head == tail {
				q.advanceTail(tail)
			}
			sentinel := unsafe.Pointer(&segSlot[T]{})
			if _, ok := head.slots[idx].CAS(itemRaw, sentinel); ok {
				item := (*segSlot[T])(itemRaw)
				return item.value, true
			}
			continue
		}

		if head.next.Load() == nil {
			var zero T
			return zero, false
		}
		q.advanceHead(handle, head)
	}
}

// advanceTail links a new segment (or catches q.tail up to an
// already-linked one) when the current tail's slots are all full.
func (q *SegQueue[T]) advanceTail(oldTail *segment[T]) {
	if q.tail.Load() != oldTail {
		return
	}
	next := oldTail.next.Load()
	if q.tail.Load() != oldTail {
		return
	}

	if next == nil {
		fresh := newSegment[T](q.k)
		if oldTail.next.CompareAndSwap(nil, fresh) {
			q.tail.CompareAndSwap(oldTail, fresh)
			n := q.segCount.Add(1)
			q.recorder.ObserveSegmentCount(int(n))
			logDebugf("segqueue", "linked new segment", map[string]any{"segments": n})
		}
		// On CAS failure another goroutine linked a segment first; drop
		// fresh and let the GC reclaim it.
		return
	}
	q.tail.CompareAndSwap(oldTail, next)
}

// advanceHead unlinks a drained head segment, marks it deleted, and retires
// it through the hazard manager.
func (q *SegQueue[T]) advanceHead(handle *hazard.Handle[segment[T]], oldHead *segment[T]) {
	head := q.head.Load()
	if head != oldHead {
		return
	}

	tail := q.tail.Load()
	tailNext := tail.next.Load()
	headNext := head.next.Load()
	if q.head.Load() != head {
		return
	}

	if tail == head {
		if tailNext == nil {
			// Only one segment in the queue; nothing to unlink.
			return
		}
		if q.tail.Load() == tail {
			q.tail.CompareAndSwap(tail, tailNext)
		}
	}

	if q.head.CompareAndSwap(head, headNext) {
		head.deleted.Store(true)
		handle.Unprotect(0)
		handle.Retire(head)
		n := q.segCount.Add(-1)
		q.recorder.ObserveSegmentCount(int(n))
		logDebugf("segqueue", "retired drained segment", map[string]any{"segments": n})
	}
}

// Close drains the queue's hazard manager. Callers must ensure no
// operations are in flight.
func (q *SegQueue[T]) Close() {
	q.hz.Close()
}
