package markable

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaggedCellLaws(t *testing.T) {
	x := 42
	p := unsafe.Pointer(&x)

	assert.Equal(t, p, Unmark(Mark(p)))
	assert.True(t, IsMarked(Mark(p)))
	assert.True(t, IsArray(MarkArray(p)))
	assert.False(t, IsMarked(p))
	assert.False(t, IsArray(p))

	// mark and array-flag commute
	assert.Equal(t, MarkArray(Mark(p)), Mark(MarkArray(p)))
	assert.True(t, IsMarked(MarkArray(Mark(p))))
	assert.True(t, IsArray(Mark(MarkArray(p))))

	assert.Equal(t, p, Clean(MarkArray(Mark(p))))
}

func TestPtrLoadEmpty(t *testing.T) {
	var c Ptr
	got, ok := c.RawPtr()
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Nil(t, c.Load())
}

func TestPtrCAS(t *testing.T) {
	var c Ptr
	x, y := 1, 2
	px, py := unsafe.Pointer(&x), unsafe.Pointer(&y)

	old, ok := c.CAS(nil, px)
	require.True(t, ok)
	assert.Nil(t, old)

	old, ok = c.CAS(nil, py)
	assert.False(t, ok)
	assert.Equal(t, px, old)

	old, ok = c.CAS(px, py)
	require.True(t, ok)
	assert.Equal(t, px, old)
	assert.Equal(t, py, c.Load())
}

func TestPtrMarkBit0(t *testing.T) {
	var c Ptr
	x := 7
	px := unsafe.Pointer(&x)
	c.StoreRelease(px)

	c.MarkBit0()
	v, ok := c.RawPtr()
	require.True(t, ok)
	assert.True(t, IsMarked(v))
	assert.Equal(t, px, Unmark(v))

	// idempotent
	c.MarkBit0()
	v2, _ := c.RawPtr()
	assert.Equal(t, v, v2)
}

func TestPtrCASAndMark(t *testing.T) {
	var c Ptr
	x := 99
	px := unsafe.Pointer(&x)
	c.StoreRelease(px)

	old, ok := c.CASAndMark(px)
	require.True(t, ok)
	assert.Equal(t, px, old)

	v, _ := c.RawPtr()
	assert.True(t, IsMarked(v))

	// a second CASAndMark against the stale unmarked pointer must fail
	_, ok = c.CASAndMark(px)
	assert.False(t, ok)
}
