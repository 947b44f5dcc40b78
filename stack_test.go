package lockfree

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackPushPopOrder(t *testing.T) {
	s := NewStack[int]()
	s.Push(1)
	s.Push(2)
	s.Push(3)

	v, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = s.Pop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = s.Pop()
	assert.False(t, ok)
}

func TestStackEmptyPop(t *testing.T) {
	s := NewStack[string]()
	_, ok := s.Pop()
	assert.False(t, ok)
}

// TestStackConservationUnderContention pushes N*W disjoint values from W
// goroutines, pops them all back out from W goroutines, and checks none were
// lost or duplicated.
func TestStackConservationUnderContention(t *testing.T) {
	const workers = 32
	const perWorker = 2000
	const total = workers * perWorker

	s := NewStack[int]()
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Push(base + i)
			}
		}(w * perWorker)
	}
	wg.Wait()

	var mu sync.Mutex
	got := make([]int, 0, total)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				v, ok := s.Pop()
				if !ok {
					return
				}
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, got, total)
	sort.Ints(got)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}
