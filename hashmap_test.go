package lockfree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/JoshMarron/lockfree/internal/markable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collidingHasher lets tests pin exact hash values per key, to deterministically
// exercise the depth-0 (low-6-bit) collision/expand path without depending on
// IntegerHasher's diffusion.
type collidingHasher struct {
	values map[string]uint64
}

func (h collidingHasher) Hash(key string) uint64 {
	v, ok := h.values[key]
	if !ok {
		panic(fmt.Sprintf("no hash registered for key %q", key))
	}
	return v
}

func TestHashMapIdempotence(t *testing.T) {
	m := NewHashMap[int, int](IntegerHasher[int]())
	defer m.Close()

	require.NoError(t, m.Insert(9, 9))

	err := m.Insert(9, 7)
	var dup *DuplicateKeyError[int, int]
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 9, dup.Key)
	assert.Equal(t, 7, dup.Value)

	v, ok := m.Get(9)
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

// TestHashMapCollisionForcesExpand covers two keys whose hashes share the
// same low 6 bits (same depth-0 slot): inserting both must force at
// least one expand, and both keys must remain readable afterward.
func TestHashMapCollisionForcesExpand(t *testing.T) {
	const (
		hashA uint64 = 5
		hashB uint64 = 5 + 7*64 // same low 6 bits as hashA, differs above bit 5
	)
	require.Equal(t, hashA&arityMask, hashB&arityMask)

	hasher := collidingHasher{values: map[string]uint64{"a": hashA, "b": hashB}}
	m := NewHashMap[string, string](hasher)
	defer m.Close()

	require.NoError(t, m.Insert("a", "vA"))
	require.NoError(t, m.Insert("b", "vB"))

	va, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, "vA", va)

	vb, ok := m.Get("b")
	require.True(t, ok)
	assert.Equal(t, "vB", vb)

	raw, ok := m.root.slots[hashA&arityMask].RawPtr()
	require.True(t, ok, "depth-0 slot should hold the expanded array interior")
	assert.True(t, markable.IsArray(raw))
}

// TestHashMapNoLossUnderConcurrency is a scaled-down concurrency check:
// N goroutines each insert a disjoint keyset, then every key must be
// readable post-join.
func TestHashMapNoLossUnderConcurrency(t *testing.T) {
	const workers = 32
	const perWorker = 2000

	m := NewHashMap[int, int](IntegerHasher[int]())
	defer m.Close()

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := base + i
				require.NoError(t, m.Insert(key, key*2))
			}
		}(w * perWorker)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		base := w * perWorker
		for i := 0; i < perWorker; i++ {
			key := base + i
			v, ok := m.Get(key)
			require.True(t, ok, "key %d missing", key)
			assert.Equal(t, key*2, v)
		}
	}
}

func TestHashMapRemoveThenReinsert(t *testing.T) {
	m := NewHashMap[string, int](StringHasher())
	defer m.Close()

	require.NoError(t, m.Insert("k", 1))

	v, ok := m.Remove("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = m.Get("k")
	assert.False(t, ok)

	require.NoError(t, m.Insert("k", 2))
	v, ok = m.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestHashMapRemoveMissingKey(t *testing.T) {
	m := NewHashMap[string, int](StringHasher())
	defer m.Close()

	_, ok := m.Remove("missing")
	assert.False(t, ok)
}

func TestHashMapUpdate(t *testing.T) {
	m := NewHashMap[string, int](StringHasher())
	defer m.Close()

	require.NoError(t, m.Insert("k", 1))

	old, ok := m.Update("k", 2)
	require.True(t, ok)
	assert.Equal(t, 1, old)

	v, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = m.Update("nope", 5)
	assert.False(t, ok)
}
