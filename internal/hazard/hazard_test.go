package hazard

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReuse(t *testing.T) {
	m := New[int](4, 2)

	h1 := m.Acquire()
	rec1 := h1.rec
	h1.Release()

	h2 := m.Acquire()
	assert.Same(t, rec1, h2.rec, "Acquire should reuse a released record instead of allocating a new one")
}

func TestRetireFreesUnreferenced(t *testing.T) {
	var freed []*int
	var mu sync.Mutex
	m := New[int](2, 1, WithReclaim(func(p *int) {
		mu.Lock()
		freed = append(freed, p)
		mu.Unlock()
	}))

	h := m.Acquire()
	defer h.Release()

	a, b := 1, 2
	h.Retire(&a)
	require.Empty(t, freed)
	h.Retire(&b) // crosses scanThreshold of 2

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []*int{&a, &b}, freed)
}

func TestHazardProtectsFromReclaim(t *testing.T) {
	var freed []*int
	m := New[int](1, 1, WithReclaim(func(p *int) {
		freed = append(freed, p)
	}))

	producer := m.Acquire()
	consumer := m.Acquire()

	v := 42
	consumer.Protect(0, &v)

	producer.Retire(&v) // scanThreshold is 1, scan runs immediately

	assert.Empty(t, freed, "protected pointer must survive a scan")

	consumer.Unprotect(0)
	consumer.Release()
	producer.Release()
}

func TestCloseDrainsRetired(t *testing.T) {
	var freed int
	m := New[int](100, 1, WithReclaim(func(*int) { freed++ }))

	h := m.Acquire()
	a, b, c := 1, 2, 3
	h.Retire(&a)
	h.Retire(&b)
	h.Retire(&c)
	h.Release()

	m.Close()
	assert.Equal(t, 3, freed)
}
