package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/internal/udferr"
)

func TestBitmapAllocAndFreeRoundTrip(t *testing.T) {
	b := NewBitmapAllocator(100, 1)
	require.NoError(t, b.SetExtent(TypeUnallocated, 0, 100))
	assert.Equal(t, uint32(100), b.FreeBlockCount())

	lbn, err := b.AllocBlocks(0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), lbn)
	assert.Equal(t, uint32(90), b.FreeBlockCount())

	require.NoError(t, b.FreeBlocks(lbn, 10))
	assert.Equal(t, uint32(100), b.FreeBlockCount())
}

func TestBitmapAllocSkipsAllocatedRegion(t *testing.T) {
	b := NewBitmapAllocator(20, 1)
	require.NoError(t, b.SetExtent(TypeUnallocated, 0, 20))
	_, err := b.AllocBlocks(0, 5)
	require.NoError(t, err)
	// blocks [0,8) are now allocated, so a 10-block run starts at 8 or later
	_, err = b.AllocBlocks(5, 3)
	require.NoError(t, err)

	lbn, err := b.AllocBlocks(0, 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lbn, uint32(8))
}

func TestBitmapAllocFailsWhenNoRoom(t *testing.T) {
	b := NewBitmapAllocator(4, 1)
	require.NoError(t, b.SetExtent(TypeUnallocated, 0, 4))
	_, err := b.AllocBlocks(0, 10)
	require.Error(t, err)
	assert.True(t, udferr.Is(err, udferr.NoSpace))
}

func TestBitmapFindExtentAndNeighbours(t *testing.T) {
	b := NewBitmapAllocator(30, 1)
	require.NoError(t, b.SetExtent(TypeUnallocated, 10, 10))

	start, length, ok := b.FindExtent(15)
	require.True(t, ok)
	assert.Equal(t, uint32(10), start)
	assert.Equal(t, uint32(10), length)

	nstart, nlength, ok := b.NextExtent(0)
	require.True(t, ok)
	assert.Equal(t, uint32(10), nstart)
	assert.Equal(t, uint32(10), nlength)

	pstart, plength, ok := b.PrevExtent(20)
	require.True(t, ok)
	assert.Equal(t, uint32(10), pstart)
	assert.Equal(t, uint32(10), plength)
}

func TestTableAllocatorExactFitRemovesEntry(t *testing.T) {
	tab := NewTableAllocator(1)
	require.NoError(t, tab.SetExtent(TypeUnallocated, 100, 50))

	lbn, err := tab.AllocBlocks(0, 50)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), lbn)
	assert.Empty(t, tab.Entries())
	assert.Equal(t, uint32(0), tab.FreeBlockCount())
}

func TestTableAllocatorFrontSplit(t *testing.T) {
	tab := NewTableAllocator(1)
	require.NoError(t, tab.SetExtent(TypeUnallocated, 100, 50))

	lbn, err := tab.AllocBlocks(0, 20)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), lbn)
	require.Len(t, tab.Entries(), 1)
	assert.Equal(t, uint32(120), tab.Entries()[0].Block)
	assert.Equal(t, uint32(30), tab.Entries()[0].Length)
}

func TestTableAllocatorInteriorSplit(t *testing.T) {
	tab := NewTableAllocator(1)
	require.NoError(t, tab.SetExtent(TypeUnallocated, 100, 50))

	lbn, err := tab.AllocBlocks(110, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(110), lbn)
	require.Len(t, tab.Entries(), 2)
	assert.Equal(t, uint32(100), tab.Entries()[0].Block)
	assert.Equal(t, uint32(10), tab.Entries()[0].Length)
	assert.Equal(t, uint32(120), tab.Entries()[1].Block)
	assert.Equal(t, uint32(30), tab.Entries()[1].Length)
}

func TestTableAllocatorFreeCoalescesNeighbours(t *testing.T) {
	tab := NewTableAllocator(1)
	require.NoError(t, tab.SetExtent(TypeUnallocated, 0, 10))
	require.NoError(t, tab.SetExtent(TypeUnallocated, 20, 10))

	require.NoError(t, tab.FreeBlocks(10, 10))
	require.Len(t, tab.Entries(), 1)
	assert.Equal(t, uint32(0), tab.Entries()[0].Block)
	assert.Equal(t, uint32(30), tab.Entries()[0].Length)
}

func TestTableAllocatorNoSpaceWhenNothingFits(t *testing.T) {
	tab := NewTableAllocator(1)
	require.NoError(t, tab.SetExtent(TypeUnallocated, 0, 5))
	_, err := tab.AllocBlocks(0, 10)
	require.Error(t, err)
	assert.True(t, udferr.Is(err, udferr.NoSpace))
}

func TestVATAllocatorAdvancesCursor(t *testing.T) {
	v := NewVATAllocator(0, 100)

	lbn, err := v.AllocBlocks(999, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), lbn)
	assert.Equal(t, uint32(10), v.NextWritableAddress())

	lbn, err = v.AllocBlocks(0, 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), lbn)
}

func TestVATAllocatorFatalWhenFull(t *testing.T) {
	v := NewVATAllocator(95, 100)
	_, err := v.AllocBlocks(0, 10)
	require.Error(t, err)
	assert.True(t, udferr.Is(err, udferr.VatFull))
}

func TestVATAllocatorFreeIsNoOp(t *testing.T) {
	v := NewVATAllocator(0, 100)
	_, err := v.AllocBlocks(0, 10)
	require.NoError(t, err)
	require.NoError(t, v.FreeBlocks(0, 10))
	assert.Equal(t, uint32(10), v.NextWritableAddress())
}
