package fileentry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/pkg/primitive"
)

type fakeAllocator struct {
	next uint32
	err  error
}

func (a *fakeAllocator) AllocBlocks(_ uint32, n uint32) (uint32, error) {
	if a.err != nil {
		return 0, a.err
	}
	lbn := a.next
	a.next += n
	return lbn, nil
}

type fakeCounters struct {
	files, dirs int
}

func (c *fakeCounters) BumpFileCount() { c.files++ }
func (c *fakeCounters) BumpDirCount()  { c.dirs++ }

func TestFileEntryMarshalUnmarshalRoundTrip(t *testing.T) {
	now := primitive.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fe := FileEntry{
		ICBTag:              ICBTag{FileType: FileTypeRegular, NumEntries: 1},
		FileLinkCount:       1,
		InformationLength:   4096,
		AccessTime:          now,
		ModificationTime:    now,
		AttributeTime:       now,
		ImplementationIdent: primitive.NewUDFRegid("*go-udf/udfkit", 0x0201),
		UniqueID:            42,
		AllocDescs:          []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	fe.Tag.TagLocation = 500
	fe.Tag.SerialNumber = 1

	raw, err := fe.Marshal()
	require.NoError(t, err)

	parsed, allocDescs, err := UnmarshalFE(raw, 500)
	require.NoError(t, err)
	assert.Equal(t, fe.InformationLength, parsed.InformationLength)
	assert.Equal(t, fe.UniqueID, parsed.UniqueID)
	assert.Equal(t, fe.AllocDescs, allocDescs)
	assert.Equal(t, uint8(FileTypeRegular), parsed.ICBTag.FileType)
}

func TestExtendedFileEntryMarshalUnmarshalRoundTrip(t *testing.T) {
	now := primitive.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	efe := ExtendedFileEntry{
		ICBTag:              ICBTag{FileType: FileTypeDirectory, NumEntries: 1},
		FileLinkCount:       1,
		ObjectSize:          8192,
		InformationLength:   8192,
		AccessTime:          now,
		ModificationTime:    now,
		CreateTime:          now,
		AttributeTime:       now,
		ImplementationIdent: primitive.NewUDFRegid("*go-udf/udfkit", 0x0201),
		UniqueID:            7,
	}
	efe.Tag.TagLocation = 600
	efe.Tag.SerialNumber = 1

	raw, err := efe.Marshal()
	require.NoError(t, err)

	parsed, err := UnmarshalEFE(raw, 600)
	require.NoError(t, err)
	assert.Equal(t, efe.ObjectSize, parsed.ObjectSize)
	assert.Equal(t, efe.UniqueID, parsed.UniqueID)
	assert.Equal(t, uint8(FileTypeDirectory), parsed.ICBTag.FileType)
}

func TestICBTagADKindRoundTrip(t *testing.T) {
	icb := ICBTag{}
	icb = icb.WithADKind(ADKindLong)
	assert.Equal(t, uint8(ADKindLong), icb.ADKind())
}

func TestCounterAdvancesByOneNormally(t *testing.T) {
	c := NewCounter(1)
	id := c.NextUniqueID()
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, uint64(2), c.Value())
}

func TestCounterAdvancesBySixteenOnLow32Boundary(t *testing.T) {
	c := NewCounter(0x100000000)
	id := c.NextUniqueID()
	assert.Equal(t, uint64(0x100000000), id)
	assert.Equal(t, uint64(0x100000010), c.Value())
}

func TestCreateFileEntryAssignsUniqueIDAndBumpsFileCount(t *testing.T) {
	alloc := &fakeAllocator{next: 1000}
	ids := NewCounter(1)
	counters := &fakeCounters{}

	result, err := CreateFileEntry(alloc, ids, counters, Params{
		FileType: FileTypeRegular,
		Now:      primitive.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	require.NotNil(t, result.FE)
	assert.Equal(t, uint32(1000), result.Block)
	assert.Equal(t, uint64(1), result.FE.UniqueID)
	assert.Equal(t, 1, counters.files)
	assert.Equal(t, 0, counters.dirs)
}

func TestCreateFileEntryDirectoryBumpsDirCount(t *testing.T) {
	alloc := &fakeAllocator{next: 0}
	ids := NewCounter(1)
	counters := &fakeCounters{}

	_, err := CreateFileEntry(alloc, ids, counters, Params{
		FileType: FileTypeDirectory,
		Now:      primitive.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, counters.dirs)
}

func TestCreateFileEntryStreamForcesUniqueIDZero(t *testing.T) {
	alloc := &fakeAllocator{}
	ids := NewCounter(5)
	counters := &fakeCounters{}

	result, err := CreateFileEntry(alloc, ids, counters, Params{
		FileType: FileTypeStreamDir,
		IsStream: true,
		Now:      primitive.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.FE.UniqueID)
	assert.Equal(t, uint64(5), ids.Value(), "stream entries must not consume a uniqueID")
}

func TestCreateFileEntryUsesEFEWhenRequested(t *testing.T) {
	alloc := &fakeAllocator{}
	ids := NewCounter(1)
	counters := &fakeCounters{}

	result, err := CreateFileEntry(alloc, ids, counters, Params{
		FileType: FileTypeRegular,
		UseEFE:   true,
		Now:      primitive.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Nil(t, result.FE)
	require.NotNil(t, result.EFE)
}

func TestCreateFileEntryStrategy4096AllocatesTwoBlocks(t *testing.T) {
	alloc := &fakeAllocator{}
	ids := NewCounter(1)
	counters := &fakeCounters{}

	result, err := CreateFileEntry(alloc, ids, counters, Params{
		FileType:     FileTypeRegular,
		Strategy4096: true,
		Now:          primitive.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), result.Blocks)
	assert.Equal(t, uint16(4096), result.FE.ICBTag.StrategyType)
}

func TestSelectADKindEmbeddedWhenSmall(t *testing.T) {
	assert.Equal(t, uint8(ADKindEmbedded), SelectADKind(10, 160, 2048, true))
}

func TestSelectADKindShortWhenSamePartitionAndLarge(t *testing.T) {
	assert.Equal(t, uint8(ADKindShort), SelectADKind(100000, 160, 2048, true))
}

func TestSelectADKindLongWhenCrossPartition(t *testing.T) {
	assert.Equal(t, uint8(ADKindLong), SelectADKind(100000, 160, 2048, false))
}

func TestGrowFromEmbeddedSetsADKind(t *testing.T) {
	icb := ICBTag{}
	grown := GrowFromEmbedded(icb, false)
	assert.Equal(t, uint8(ADKindLong), grown.ADKind())
}
