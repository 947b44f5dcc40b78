// Package hazard implements a hazard-pointer reclamation manager shared by
// every container in this module: each container instance owns one Manager,
// which lets a goroutine announce "I might dereference this" before it does,
// and defers freeing a retired node until no announcement references it.
//
// Go has no portable thread-local storage and goroutines are meant to be
// cheap and numerous, so "per-thread hazard record" becomes "per-operation
// hazard handle": Acquire claims an unused record from the manager's
// lock-free, push-only record list (allocating and pushing a new one if
// none is free), the caller protects/retires through it for the duration of
// one public container operation, and Release marks it unused again. This
// is the same trade a number of production Go lock-free structures make in
// place of OS thread registration hooks.
package hazard

import (
	"sync/atomic"
)

// Recorder receives counters for observability. All methods are no-ops on
// the default recorder; a real implementation (see the root package's
// telemetry.go) can wire these into OpenTelemetry metrics.
type Recorder interface {
	IncScan()
	IncRetire(n int)
	IncReclaim(n int)
}

type noopRecorder struct{}

func (noopRecorder) IncScan()       {}
func (noopRecorder) IncRetire(int)  {}
func (noopRecorder) IncReclaim(int) {}

// record is one hazard-pointer slot set plus its owner's retired list.
// Records are never removed from the manager's list once linked — like the
// hash trie's array interiors, they are logically immortal, which is what
// makes it safe for scan to walk the list without synchronizing against
// concurrent Acquire/Release of other records.
type record[E any] struct {
	next    *record[E]
	inUse   atomic.Bool
	slots   []atomic.Pointer[E]
	retired []*E
}

// Manager is the hazard-pointer singleton for one container instance. It is
// generic over the single pointee type E that the owning container retires
// (e.g. a trie's data leaf, or a segmented queue's segment).
type Manager[E any] struct {
	hazardsPerSlot int
	scanThreshold  int
	reclaim        func(*E)
	recorder       Recorder

	head atomic.Pointer[record[E]]
}

// Option configures a Manager at construction time.
type Option[E any] func(*Manager[E])

// WithReclaim sets a callback invoked exactly once for every retired
// pointer once a scan confirms no hazard slot references it. Omit it to
// simply drop the last reference and let the garbage collector reclaim the
// memory; supply it to run destructors on non-memory resources held by E.
func WithReclaim[E any](fn func(*E)) Option[E] {
	return func(m *Manager[E]) { m.reclaim = fn }
}

// WithRecorder installs a telemetry Recorder.
func WithRecorder[E any](r Recorder) Option[E] {
	return func(m *Manager[E]) {
		if r != nil {
			m.recorder = r
		}
	}
}

// New constructs a hazard manager. scanThreshold is the number of retired
// pointers a handle accumulates before triggering a scan; hazardsPerThread
// is the number of protect slots each handle gets.
func New[E any](scanThreshold, hazardsPerThread int, opts ...Option[E]) *Manager[E] {
	if scanThreshold < 1 {
		scanThreshold = 1
	}
	if hazardsPerThread < 1 {
		hazardsPerThread = 1
	}
	m := &Manager[E]{
		hazardsPerSlot: hazardsPerThread,
		scanThreshold:  scanThreshold,
		recorder:       noopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle is a per-operation checkout of one hazard record.
type Handle[E any] struct {
	m   *Manager[E]
	rec *record[E]
}

// Acquire checks out a record, allocating a new one (and pushing it onto
// the manager's immortal record list) only if every existing record is
// currently checked out.
func (m *Manager[E]) Acquire() *Handle[E] {
	for r := m.head.Load(); r != nil; r = r.next {
		if !r.inUse.Load() && r.inUse.CompareAndSwap(false, true) {
			return &Handle[E]{m: m, rec: r}
		}
	}

	rec := &record[E]{slots: make([]atomic.Pointer[E], m.hazardsPerSlot)}
	rec.inUse.Store(true)
	for {
		old := m.head.Load()
		rec.next = old
		if m.head.CompareAndSwap(old, rec) {
			break
		}
	}
	return &Handle[E]{m: m, rec: rec}
}

// Protect publishes p into hazard slot i with release-equivalent semantics
// (Go's atomic.Pointer store is already sequentially consistent, stronger
// than a plain release would be). The caller must
// still re-read the source pointer after calling Protect and confirm it has
// not moved before trusting the protection — Protect only enforces the
// publish half of the classical hazard re-check protocol.
func (h *Handle[E]) Protect(slot int, p *E) *E {
	h.rec.slots[slot].Store(p)
	return p
}

// Unprotect clears hazard slot i.
func (h *Handle[E]) Unprotect(slot int) {
	h.rec.slots[slot].Store(nil)
}

// Retire appends p to this handle's retired list, scanning and freeing once
// the list crosses the manager's scan threshold.
func (h *Handle[E]) Retire(p *E) {
	h.rec.retired = append(h.rec.retired, p)
	h.m.recorder.IncRetire(1)
	if len(h.rec.retired) >= h.m.scanThreshold {
		h.m.scan(h.rec)
	}
}

// Release clears every hazard slot on this handle and returns the record to
// the free-list for the next Acquire to reuse.
func (h *Handle[E]) Release() {
	for i := range h.rec.slots {
		h.rec.slots[i].Store(nil)
	}
	h.rec.inUse.Store(false)
}

// scan snapshots every hazard slot of every registered record, then frees
// every pointer in rec's retired list that the snapshot doesn't reference.
func (m *Manager[E]) scan(rec *record[E]) {
	m.recorder.IncScan()

	live := make(map[*E]struct{}, len(rec.retired))
	for r := m.head.Load(); r != nil; r = r.next {
		for i := range r.slots {
			if p := r.slots[i].Load(); p != nil {
				live[p] = struct{}{}
			}
		}
	}

	kept := rec.retired[:0]
	freed := 0
	for _, p := range rec.retired {
		if _, ok := live[p]; ok {
			kept = append(kept, p)
			continue
		}
		if m.reclaim != nil {
			m.reclaim(p)
		}
		freed++
	}
	rec.retired = kept
	m.recorder.IncReclaim(freed)
}

// Close drains every record's retired list unconditionally. Callers must
// ensure no operations are in flight; this is container teardown, not a
// concurrency-safe operation.
func (m *Manager[E]) Close() {
	for r := m.head.Load(); r != nil; r = r.next {
		if m.reclaim != nil {
			for _, p := range r.retired {
				m.reclaim(p)
			}
		}
		m.recorder.IncReclaim(len(r.retired))
		r.retired = nil
	}
}
