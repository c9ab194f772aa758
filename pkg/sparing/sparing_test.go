package sparing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/internal/udferr"
	"github.com/go-udf/udfkit/pkg/descriptor"
)

func TestLookupReturnsOrigWhenUnmapped(t *testing.T) {
	e := New(4, []uint32{1000, 1001, 1002, 1003}, []uint32{16, 256})
	assert.Equal(t, uint32(42), e.Lookup(42))
}

func TestRemapAssignsSpareAndIsFoundByLookup(t *testing.T) {
	e := New(4, []uint32{1000, 1001, 1002, 1003}, []uint32{16, 256})

	mapped, err := e.Remap(42)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), mapped)
	assert.Equal(t, uint32(1000), e.Lookup(42))
	assert.True(t, e.Dirty())
	assert.Equal(t, uint32(1), e.Table().SequenceNumber)
}

func TestRemapKeepsTableSortedForBinarySearch(t *testing.T) {
	e := New(4, []uint32{1000, 1001, 1002, 1003}, nil)

	_, err := e.Remap(500)
	require.NoError(t, err)
	_, err = e.Remap(100)
	require.NoError(t, err)
	_, err = e.Remap(300)
	require.NoError(t, err)

	assert.Equal(t, uint32(1001), e.Lookup(100))
	assert.Equal(t, uint32(1002), e.Lookup(300))
	assert.Equal(t, uint32(1000), e.Lookup(500))
	assert.Equal(t, uint32(999), e.Lookup(999))
}

func TestRemapFatalWhenTableFull(t *testing.T) {
	e := New(1, []uint32{1000}, nil)

	_, err := e.Remap(1)
	require.NoError(t, err)

	_, err = e.Remap(2)
	require.Error(t, err)
	assert.True(t, udferr.Is(err, udferr.SparingExhausted))
}

func TestRemapOfSpareLocationMarksRecursionSentinel(t *testing.T) {
	e := New(2, []uint32{1000, 1001}, nil)

	_, err := e.Remap(42)
	require.NoError(t, err)

	mapped, err := e.Remap(1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(sentinelRemappedSpare), mapped)
}

func TestLoadReconstructsNextSpareFromExistingTable(t *testing.T) {
	table := descriptor.SparingTable{
		SequenceNumber: 3,
		Entries: []descriptor.SparingEntry{
			{OrigLocation: 42, MappedLocation: 1000},
			{OrigLocation: descriptor.UnusedOrigLocation, MappedLocation: 1001},
		},
	}
	e := Load(table, []uint32{1000, 1001}, []uint32{16})
	assert.Equal(t, uint32(1000), e.Lookup(42))
	assert.False(t, e.Dirty())

	mapped, err := e.Remap(99)
	require.NoError(t, err)
	assert.Equal(t, uint32(1001), mapped)
}

func TestMarkCleanClearsDirtyFlag(t *testing.T) {
	e := New(2, []uint32{1000, 1001}, nil)
	_, err := e.Remap(1)
	require.NoError(t, err)
	require.True(t, e.Dirty())

	e.MarkClean()
	assert.False(t, e.Dirty())
}

func TestTableLocationsReturnsConfiguredCopies(t *testing.T) {
	e := New(1, []uint32{1000}, []uint32{16, 256, 512})
	assert.Equal(t, []uint32{16, 256, 512}, e.TableLocations())
}
