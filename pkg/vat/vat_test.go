package vat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocVBNAssignsMonotonicSlots(t *testing.T) {
	tab := New(Format200, 0x0200)

	vbn0, err := tab.AllocVBN(100)
	require.NoError(t, err)
	vbn1, err := tab.AllocVBN(132)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), vbn0)
	assert.Equal(t, uint32(1), vbn1)
	assert.Equal(t, 2, tab.Len())

	phys, ok := tab.Translate(vbn1)
	require.True(t, ok)
	assert.Equal(t, uint32(132), phys)
}

func TestTranslateUnmappedOutOfRange(t *testing.T) {
	tab := New(Format200, 0x0200)
	_, ok := tab.Translate(5)
	assert.False(t, ok)
}

func TestUnmapMarksSlotUnused(t *testing.T) {
	tab := New(Format150, 0x0150)
	vbn, err := tab.AllocVBN(50)
	require.NoError(t, err)

	tab.Unmap(vbn)
	_, ok := tab.Translate(vbn)
	assert.False(t, ok)
}

func TestFormat150MarshalLoadRoundTrip(t *testing.T) {
	tab := New(Format150, 0x0150)
	_, err := tab.AllocVBN(10)
	require.NoError(t, err)
	_, err = tab.AllocVBN(20)
	require.NoError(t, err)
	tab.SetPreviousVATPhysLoc(999)

	payload, err := tab.Marshal()
	require.NoError(t, err)

	loaded, err := Load(Format150, 0x0150, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	phys, ok := loaded.Translate(0)
	require.True(t, ok)
	assert.Equal(t, uint32(10), phys)
	assert.Equal(t, uint32(999), loaded.PreviousVATPhysLoc())

	// A reopened session continues allocating after the last slot.
	vbn, err := loaded.AllocVBN(30)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), vbn)
}

func TestFormat200MarshalLoadRoundTripWithHeader(t *testing.T) {
	tab := New(Format200, 0x0200)
	tab.SetHeader20(Header20{
		NumFiles:        3,
		NumDirs:         2,
		LogicalVolIdent: "test volume",
		MinUDFReadRev:   0x0150,
		MinUDFWriteRev:  0x0150,
		MaxUDFWriteRev:  0x0200,
	})
	_, err := tab.AllocVBN(64)
	require.NoError(t, err)

	payload, err := tab.Marshal()
	require.NoError(t, err)

	loaded, err := Load(Format200, 0x0200, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, uint32(3), loaded.header.NumFiles)
	assert.Equal(t, "test volume", loaded.header.LogicalVolIdent)
}

func TestAllocVBNFatalWhenExhausted(t *testing.T) {
	tab := &Table{format: Format200, newVATIndex: 0xFFFFFFFF}
	_, err := tab.AllocVBN(1)
	assert.Error(t, err)
}
