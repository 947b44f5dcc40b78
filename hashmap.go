// hashmap.go - the wait-free hash trie map, the largest and most novel
// component of this module. Interior nodes are fixed ARITY arrays of
// markable.Ptr cells and are immortal once published (never unlinked, so
// dereferencing one needs no hazard protection); leaves are reclaimed
// through internal/hazard like everything else.
//
// A data leaf stores only the key's 64-bit hash, never the key itself --
// carried over from the original rustcurrent DataNode<K,V>, which stored
// `key: u64` (the hash) and kept K only as a PhantomData marker. Two
// distinct keys that hash identically are therefore indistinguishable to
// this map: a true hash collision silently aliases. This is inherited
// behavior, not an oversight introduced here.
package lockfree

import (
	"unsafe"

	"github.com/JoshMarron/lockfree/internal/hazard"
	"github.com/JoshMarron/lockfree/internal/markable"
)

const (
	arity      = 64
	arityShift = 6 // log2(arity)
	arityMask  = arity - 1
	keyBits    = 64
)

type dataLeaf[V any] struct {
	hash  uint64
	value V
}

// arrayNode is a fixed-fanout trie interior. It carries no type parameter
// of its own -- its cells are opaque tagged pointers, and only the owning
// HashMap[K, V]'s methods ever interpret an unmarked cell as a *dataLeaf[V],
// so the erasure is sound within one instance.
type arrayNode struct {
	slots [arity]markable.Ptr
}

// HashMap is a wait-free hash trie supporting insert, get, remove, and
// update, keyed by a caller-supplied Hasher[K].
type HashMap[K, V any] struct {
	root        arrayNode
	hasher      Hasher[K]
	maxFailures int
	recorder    Recorder

	hz *hazard.Manager[dataLeaf[V]]
}

// NewHashMap constructs an empty HashMap using hasher to compute key
// digests.
func NewHashMap[K, V any](hasher Hasher[K], opts ...Option) *HashMap[K, V] {
	c := resolve(opts)
	return &HashMap[K, V]{
		hasher:      hasher,
		maxFailures: c.maxFailures,
		recorder:    c.recorder,
		hz: hazard.New[dataLeaf[V]](c.scanThreshold, c.hazardsPerThread,
			hazard.WithRecorder[dataLeaf[V]](c.recorder)),
	}
}

func posAt(hash uint64, depth uint) int {
	if depth >= keyBits {
		return 0
	}
	return int((hash >> depth) & arityMask)
}

// Get returns the value stored for key, if present.
func (m *HashMap[K, V]) Get(key K) (V, bool) {
	h := m.hasher.Hash(key)
	handle := m.hz.Acquire()
	defer handle.Release()

	node := &m.root
	depth := uint(0)

	for {
		pos := posAt(h, depth)
		cell := &node.slots[pos]
		raw, ok := cell.RawPtr()
		if !ok {
			var zero V
			return zero, false
		}

		if markable.IsArray(raw) {
			node = (*arrayNode)(markable.Clean(raw))
			depth += arityShift
			if depth >= keyBits {
				var zero V
				return zero, false
			}
			continue
		}

		leaf := (*dataLeaf[V])(markable.Clean(raw))
		handle.Protect(0, leaf)
		if cell.Load() != raw {
			handle.Unprotect(0)
			continue
		}
		handle.Unprotect(0)

		if leaf.hash != h {
			var zero V
			return zero, false
		}
		return leaf.value, true
	}
}

// Insert adds key/value, failing with *DuplicateKeyError[K, V] if the key's
// hash is already present.
func (m *HashMap[K, V]) Insert(key K, value V) error {
	h := m.hasher.Hash(key)
	handle := m.hz.Acquire()
	defer handle.Release()

	node := &m.root
	depth := uint(0)
	failures := 0

	for {
		pos := posAt(h, depth)
		cell := &node.slots[pos]
		raw, ok := cell.RawPtr()

		if !ok {
			leaf := &dataLeaf[V]{hash: h, value: value}
			if _, success := cell.CAS(nil, unsafe.Pointer(leaf)); success {
				return nil
			}
			failures++
			if failures > m.maxFailures {
				m.noteContention(depth)
				m.expand(handle, cell, depth)
			}
			continue
		}

		if markable.IsArray(raw) {
			node = (*arrayNode)(markable.Clean(raw))
			depth += arityShift
			if depth >= keyBits {
				invariantf("hash trie exceeded max depth (%d bits) without resolving insert", keyBits)
			}
			continue
		}

		leaf := (*dataLeaf[V])(markable.Clean(raw))
		handle.Protect(0, leaf)
		if cell.Load() != raw {
			handle.Unprotect(0)
			continue
		}
		handle.Unprotect(0)

		if leaf.hash == h {
			return &DuplicateKeyError[K, V]{Key: key, Value: value}
		}

		// Hash-prefix collision between two distinct hashes: deepen the
		// trie instead of racing the existing leaf.
		m.expand(handle, cell, depth)
	}
}

func (m *HashMap[K, V]) noteContention(depth uint) {
	m.recorder.IncContention()
	logDebugf("hashtrie", "contention threshold exceeded, forcing expand", map[string]any{"depth": depth})
}

// expand replaces the data leaf observed in cell with a fresh array
// interior, pre-populated with that same leaf at its next-depth position.
// Idempotent: if another goroutine already expanded (or removed) the cell,
// expand simply returns having done nothing.
func (m *HashMap[K, V]) expand(handle *hazard.Handle[dataLeaf[V]], cell *markable.Ptr, depth uint) {
	raw, ok := cell.RawPtr()
	if !ok || markable.IsArray(raw) {
		return
	}

	leaf := (*dataLeaf[V])(markable.Clean(raw))
	handle.Protect(0, leaf)
	defer handle.Unprotect(0)
	if cell.Load() != raw {
		return
	}

	newArray := &arrayNode{}
	newDepth := depth + arityShift
	newArray.slots[posAt(leaf.hash, newDepth)].StoreRelease(unsafe.Pointer(leaf))

	tagged := markable.MarkArray(unsafe.Pointer(newArray))
	// On CAS failure another goroutine already progressed this cell; drop
	// newArray (its one populated slot still points at the live leaf, which
	// stays owned by whichever structure wins) and let the GC reclaim it.
	if _, ok := cell.CAS(raw, tagged); ok {
		m.recorder.IncExpansion()
		logDebugf("hashtrie", "expanded data leaf into array interior", map[string]any{"depth": depth, "hash": leaf.hash})
	}
}

// Remove deletes key, returning its value if it was present.
func (m *HashMap[K, V]) Remove(key K) (V, bool) {
	h := m.hasher.Hash(key)
	handle := m.hz.Acquire()
	defer handle.Release()

	node := &m.root
	depth := uint(0)

	for {
		pos := posAt(h, depth)
		cell := &node.slots[pos]
		raw, ok := cell.RawPtr()
		if !ok {
			var zero V
			return zero, false
		}

		if markable.IsArray(raw) {
			node = (*arrayNode)(markable.Clean(raw))
			depth += arityShift
			if depth >= keyBits {
				var zero V
				return zero, false
			}
			continue
		}

		leaf := (*dataLeaf[V])(markable.Clean(raw))
		handle.Protect(0, leaf)
		if cell.Load() != raw {
			handle.Unprotect(0)
			continue
		}

		if leaf.hash != h {
			handle.Unprotect(0)
			var zero V
			return zero, false
		}

		if _, success := cell.CAS(raw, nil); success {
			handle.Unprotect(0)
			value := leaf.value
			handle.Retire(leaf)
			return value, true
		}
		handle.Unprotect(0)
	}
}

// Update replaces the value stored for key, returning the previous value
// and true if the key was present, or (zero, false) otherwise.
func (m *HashMap[K, V]) Update(key K, value V) (V, bool) {
	h := m.hasher.Hash(key)
	handle := m.hz.Acquire()
	defer handle.Release()

	node := &m.root
	depth := uint(0)

	for {
		pos := posAt(h, depth)
		cell := &node.slots[pos]
		raw, ok := cell.RawPtr()
		if !ok {
			var zero V
			return zero, false
		}

		if markable.IsArray(raw) {
			node = (*arrayNode)(markable.Clean(raw))
			depth += arityShift
			if depth >= keyBits {
				var zero V
				return zero, false
			}
			continue
		}

		leaf := (*dataLeaf[V])(markable.Clean(raw))
		handle.Protect(0, leaf)
		if cell.Load() != raw {
			handle.Unprotect(0)
			continue
		}

		if leaf.hash != h {
			handle.Unprotect(0)
			var zero V
			return zero, false
		}

		newLeaf := &dataLeaf[V]{hash: h, value: value}
		if _, success := cell.CAS(raw, unsafe.Pointer(newLeaf)); success {
			handle.Unprotect(0)
			old := leaf.value
			handle.Retire(leaf)
			return old, true
		}
		handle.Unprotect(0)
	}
}

// Close drains the map's hazard manager. Callers must ensure no operations
// are in flight.
func (m *HashMap[K, V]) Close() {
	m.hz.Close()
}
