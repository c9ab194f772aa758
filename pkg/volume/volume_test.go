package volume

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/pkg/blockio"
	"github.com/go-udf/udfkit/pkg/descriptor"
)

// fakeSizing returns small, fixed structural-area sizes regardless of
// media type, enough to exercise Layout without pulling in
// internal/mediatab's real defaults table.
type fakeSizing struct{}

func (fakeSizing) Sizing(media MediaType, class SizeClass) Sizing {
	switch class {
	case SizeClassVDS:
		return Sizing{Align: 1, Num: 0, Denom: 1, MinLen: 16}
	case SizeClassLVID:
		return Sizing{Align: 1, Num: 0, Denom: 1, MinLen: 4}
	case SizeClassSTABLE:
		return Sizing{Align: 1, Num: 0, Denom: 1, MinLen: 8}
	case SizeClassSSPACE:
		return Sizing{Align: 1, Num: 0, Denom: 1, MinLen: 8}
	default: // SizeClassPSPACE
		return Sizing{Align: 1, Num: 1, Denom: 1, MinLen: 0}
	}
}

func TestNextExtentSizeFindsFirstFreeAlignedRun(t *testing.T) {
	l := NewExtentList(1000)
	l.Place(Extent{Type: descriptor.SpaceAnchor, Block: 256, Length: 1})

	block, ok := l.NextExtentSize(0, 10, 4)
	require.True(t, ok)
	assert.Equal(t, uint32(0), block)

	block, ok = l.NextExtentSize(250, 10, 4)
	require.True(t, ok)
	assert.True(t, block >= 257, "must skip over the placed anchor")
}

func TestPrevExtentSizeFindsLastFreeAlignedRun(t *testing.T) {
	l := NewExtentList(1000)
	l.Place(Extent{Type: descriptor.SpaceAnchor, Block: 999, Length: 1})

	block, ok := l.PrevExtentSize(999, 10, 4)
	require.True(t, ok)
	assert.True(t, block+10 <= 999, "must not overlap the placed anchor")
	assert.Equal(t, uint32(0), block%4)
}

func TestFreeRangesReturnsGapsBetweenPlacedExtents(t *testing.T) {
	l := NewExtentList(100)
	l.Place(Extent{Type: descriptor.SpaceReserved, Block: 0, Length: 10})
	l.Place(Extent{Type: descriptor.SpaceAnchor, Block: 50, Length: 1})

	free := l.FreeRanges()
	require.Len(t, free, 2)
	assert.Equal(t, Extent{Type: descriptor.SpaceUSPACE, Block: 10, Length: 40}, free[0])
	assert.Equal(t, Extent{Type: descriptor.SpaceUSPACE, Block: 51, Length: 49}, free[1])
}

func TestBuilderLayoutHDPlacesAllStructuralAreas(t *testing.T) {
	b := NewBuilder(Params{Blocks: 10000, BlockSize: 2048, Media: MediaHD}, fakeSizing{})
	require.NoError(t, b.Layout())

	assert.Len(t, b.Anchors(), 2, "non-append-only, non-closed media gets anchors at 256 and N-1")
	assert.Len(t, b.Extents().OfType(descriptor.SpacePVDS), 1)
	assert.Len(t, b.Extents().OfType(descriptor.SpaceRVDS), 1)
	assert.Len(t, b.Extents().OfType(descriptor.SpaceLVID), 1)

	partition, ok := b.PartitionExtent()
	require.True(t, ok)
	assert.Greater(t, partition.Length, uint32(0))
}

func TestBuilderLayoutAppendOnlyOmitsTrailingAnchor(t *testing.T) {
	b := NewBuilder(Params{Blocks: 10000, BlockSize: 2048, Media: MediaDVDR, AppendOnly: true}, fakeSizing{})
	require.NoError(t, b.Layout())

	assert.Len(t, b.Anchors(), 1, "VAT media has no anchor at N-1; it folds into PSPACE")
	assert.Contains(t, b.Anchors(), uint32(256))

	partition, ok := b.PartitionExtent()
	require.True(t, ok)
	assert.Equal(t, uint32(10000), partition.end(), "PSPACE must reach the very last block on VAT media")
}

func TestBuilderLayoutSparablePlacesSTABLEAndSSPACE(t *testing.T) {
	b := NewBuilder(Params{Blocks: 10000, BlockSize: 2048, Media: MediaCDRW, Sparable: true, PacketAlign: 16}, fakeSizing{})
	require.NoError(t, b.Layout())

	stable := b.Extents().OfType(descriptor.SpaceSTABLE)
	require.Len(t, stable, 2, "sparable media gets a front and a back STABLE copy")
	assert.Less(t, stable[0].Block, stable[1].Block)
	assert.Len(t, b.Extents().OfType(descriptor.SpaceSSPACE), 1)
}

func TestBuilderLayoutRejectsZeroGeometry(t *testing.T) {
	b := NewBuilder(Params{}, fakeSizing{})
	assert.Error(t, b.Layout())
}

// memDevice is an in-memory io.ReaderAt/io.WriterAt backed by a byte
// slice, used to exercise Create/Open without a real file.
type memDevice struct {
	mu   sync.Mutex
	data []byte
}

func newMemDevice(size int) *memDevice {
	return &memDevice{data: make([]byte, size)}
}

func (m *memDevice) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(p, m.data[off:off+int64(len(p))]), nil
}

func (m *memDevice) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copy(m.data[off:off+int64(len(p))], p), nil
}

// absoluteLocator makes every partition index resolve to block 0,
// sufficient for a single-partition test volume.
type absoluteLocator struct{}

func (absoluteLocator) PartitionStart(partition int) (uint32, error) { return 0, nil }

func TestCreateThenOpenRoundTripsRootDirectory(t *testing.T) {
	const blocks = 20000
	const blockSize = 2048

	mem := newMemDevice(blocks * blockSize)
	dev := blockio.NewDevice(mem, mem, blockSize, absoluteLocator{})

	clock := FixedClock{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	vol, err := Create(dev, blocks,
		WithBlockSize(blockSize),
		WithMediaType(MediaHD),
		WithSizingTable(fakeSizing{}),
		WithClock(clock),
		WithIdentity(Identity{VolIdentifier: "TESTVOL", LogicalVolIdent: "TESTVOL"}),
	)
	require.NoError(t, err)
	require.NotNil(t, vol.RootDirectory())
	assert.NoError(t, vol.Close())

	reopened, err := Open(dev, WithBlockSize(blockSize), WithMediaType(MediaHD), WithSizingTable(fakeSizing{}))
	require.NoError(t, err)
	require.NotNil(t, reopened.RootDirectory())

	root := reopened.RootDirectory()
	require.Len(t, root.Fids, 1)
	assert.True(t, root.Fids[0].IsParent())
}
