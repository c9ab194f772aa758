package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

func parentFID() FID {
	return FID{
		Tag:                 tag.Tag{TagLocation: 10},
		FileCharacteristics: CharParent | CharDirectory,
		ICB:                 primitive.LongAD{Block: 10},
	}
}

func namedFID(name string, block uint32) FID {
	return FID{
		Tag:       tag.Tag{TagLocation: 10},
		ICB:       primitive.LongAD{Block: block},
		FileIdent: []byte(name),
	}
}

func TestFindSkipsParentAndMatchesByName(t *testing.T) {
	d := New(10, []FID{parentFID(), namedFID("a.txt", 100), namedFID("b.txt", 200)})

	found, idx, ok := d.Find([]byte("b.txt"))
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, uint32(200), found.ICB.Block)

	_, _, ok = d.Find([]byte{})
	assert.False(t, ok, "empty name must not match the parent entry")
}

func TestInsertAppendsAndMarksDirty(t *testing.T) {
	d := New(10, []FID{parentFID()})
	d.Insert(namedFID("c.txt", 300))
	require.Len(t, d.Fids, 2)
	assert.True(t, d.Dirty)
	assert.Equal(t, "c.txt", string(d.Fids[1].FileIdent))
}

func TestRemoveShiftsRemainingEntriesBack(t *testing.T) {
	d := New(10, []FID{parentFID(), namedFID("a.txt", 100), namedFID("b.txt", 200)})
	err := d.Remove(1)
	require.NoError(t, err)
	require.Len(t, d.Fids, 2)
	assert.Equal(t, "b.txt", string(d.Fids[1].FileIdent))
}

func TestRemoveOutOfRangeErrors(t *testing.T) {
	d := New(10, []FID{parentFID()})
	err := d.Remove(5)
	assert.Error(t, err)
}

type fakeFileEntry struct {
	links   uint16
	extents []primitive.ShortAD
}

func (f *fakeFileEntry) LinkCount() uint16                { return f.links }
func (f *fakeFileEntry) SetLinkCount(n uint16)            { f.links = n }
func (f *fakeFileEntry) DataExtents() []primitive.ShortAD { return f.extents }

type fakeSpace struct {
	freed []uint32
}

func (s *fakeSpace) FreeBlocks(lbn uint32, n uint32) error {
	for i := uint32(0); i < n; i++ {
		s.freed = append(s.freed, lbn+i)
	}
	return nil
}

type fakeCounters struct {
	files, dirs int
}

func (c *fakeCounters) DecrementFileCount() { c.files-- }
func (c *fakeCounters) DecrementDirCount()  { c.dirs-- }

type fakeVAT struct {
	unmapped []uint32
}

func (v *fakeVAT) Unmap(vbn uint32) { v.unmapped = append(v.unmapped, vbn) }

func TestDeleteWithMultipleLinksOnlyDecrementsCount(t *testing.T) {
	d := New(10, []FID{parentFID(), namedFID("a.txt", 100)})
	fe := &fakeFileEntry{links: 2}
	space := &fakeSpace{}
	counters := &fakeCounters{}

	err := d.Delete(1, fe, space, counters, nil, false)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), fe.links)
	assert.Len(t, d.Fids, 2, "FID must still be present until link count reaches zero")
	assert.Empty(t, space.freed)
}

func TestDeleteAtZeroLinksFreesExtentsAndICBBlock(t *testing.T) {
	d := New(10, []FID{parentFID(), namedFID("a.txt", 100)})
	fe := &fakeFileEntry{links: 1, extents: []primitive.ShortAD{{Block: 500, Length: 2048}}}
	space := &fakeSpace{}
	counters := &fakeCounters{}

	err := d.Delete(1, fe, space, counters, nil, false)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), fe.links)
	assert.Contains(t, space.freed, uint32(500))
	assert.Contains(t, space.freed, uint32(100), "ICB block must be freed on rewritable media")
	assert.Equal(t, -1, counters.files)
	require.Len(t, d.Fids, 1, "FID must be physically removed once the FE is reclaimed")
}

func TestDeleteOfDirectoryDecrementsDirCount(t *testing.T) {
	d := New(10, []FID{parentFID(), namedFID("sub", 100)})
	fe := &fakeFileEntry{links: 1}
	space := &fakeSpace{}
	counters := &fakeCounters{}

	err := d.Delete(1, fe, space, counters, nil, true)
	require.NoError(t, err)
	assert.Equal(t, -1, counters.dirs)
	assert.Equal(t, 0, counters.files)
}

func TestDeleteOnAppendOnlyMediaUnmapsVATInsteadOfFreeingICBBlock(t *testing.T) {
	d := New(10, []FID{parentFID(), namedFID("a.txt", 100)})
	fe := &fakeFileEntry{links: 1}
	space := &fakeSpace{}
	counters := &fakeCounters{}
	vat := &fakeVAT{}

	err := d.Delete(1, fe, space, counters, vat, false)
	require.NoError(t, err)
	assert.Contains(t, vat.unmapped, uint32(100))
	assert.NotContains(t, space.freed, uint32(100))
}

func TestEmbeddedFitReportsFalseWhenContentTooLarge(t *testing.T) {
	fids := []FID{parentFID()}
	for i := 0; i < 200; i++ {
		fids = append(fids, namedFID("file-with-a-longer-name.bin", uint32(i+100)))
	}
	d := New(10, fids)

	fits, content, err := d.EmbeddedFit(2048, 160, 0)
	require.NoError(t, err)
	assert.False(t, fits)
	assert.NotEmpty(t, content)
}

func TestEmbeddedFitReportsTrueForSmallDirectory(t *testing.T) {
	d := New(10, []FID{parentFID(), namedFID("a.txt", 100)})

	fits, content, err := d.EmbeddedFit(2048, 160, 0)
	require.NoError(t, err)
	assert.True(t, fits)
	assert.NotEmpty(t, content)
}

func TestRestampTagLocationsSetsBlockOnEveryFID(t *testing.T) {
	d := New(10, []FID{parentFID(), namedFID("a.txt", 100)})

	raw, err := d.RestampTagLocations(42, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	for _, f := range d.Fids {
		assert.Equal(t, uint32(42), f.Tag.TagLocation)
	}
}
