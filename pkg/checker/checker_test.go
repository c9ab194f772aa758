package checker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/pkg/blockio"
	"github.com/go-udf/udfkit/pkg/maintenance"
	"github.com/go-udf/udfkit/pkg/volume"
)

// fakeSizing mirrors pkg/volume's and pkg/maintenance's own test
// fixture: small, fixed structural-area sizes so Layout doesn't need
// internal/mediatab's real defaults table.
type fakeSizing struct{}

func (fakeSizing) Sizing(media volume.MediaType, class volume.SizeClass) volume.Sizing {
	switch class {
	case volume.SizeClassVDS:
		return volume.Sizing{Align: 1, Num: 0, Denom: 1, MinLen: 16}
	case volume.SizeClassLVID:
		return volume.Sizing{Align: 1, Num: 0, Denom: 1, MinLen: 4}
	case volume.SizeClassSTABLE:
		return volume.Sizing{Align: 1, Num: 0, Denom: 1, MinLen: 8}
	case volume.SizeClassSSPACE:
		return volume.Sizing{Align: 1, Num: 0, Denom: 1, MinLen: 8}
	default: // SizeClassPSPACE
		return volume.Sizing{Align: 1, Num: 1, Denom: 1, MinLen: 0}
	}
}

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

type absoluteLocator struct{}

func (absoluteLocator) PartitionStart(partition int) (uint32, error) { return 0, nil }

func newTestDevice(blocks, blockSize int) (*memDevice, *blockio.Device) {
	mem := newMemDevice(blocks * blockSize)
	return mem, blockio.NewDevice(mem, mem, blockSize, absoluteLocator{})
}

func createTestVolume(t *testing.T, dev *blockio.Device, blocks uint32) *volume.Volume {
	t.Helper()
	clock := volume.FixedClock{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	vol, err := volume.Create(dev, blocks,
		volume.WithBlockSize(2048),
		volume.WithMediaType(volume.MediaHD),
		volume.WithSizingTable(fakeSizing{}),
		volume.WithClock(clock),
		volume.WithIdentity(volume.Identity{VolIdentifier: "TESTVOL", LogicalVolIdent: "TESTVOL"}),
	)
	require.NoError(t, err)
	return vol
}

func TestCheckOnFreshlyCreatedVolumeIsClean(t *testing.T) {
	const blocks = 20000
	_, dev := newTestDevice(blocks, 2048)
	vol := createTestVolume(t, dev, blocks)
	require.NoError(t, vol.Close())

	report := New(vol).Check()
	assert.True(t, report.Clean(), "findings: %v", report.Findings)
	assert.Equal(t, 0, report.ExitCode())
}

func TestCheckAfterPopulatingTreeStillClean(t *testing.T) {
	const blocks = 20000
	_, dev := newTestDevice(blocks, 2048)
	vol := createTestVolume(t, dev, blocks)

	eng := maintenance.New(vol)
	require.NoError(t, eng.Mkdir("/docs"))
	require.NoError(t, eng.WriteFile("/docs/readme.txt", []byte("hello udf"), false))
	require.NoError(t, vol.Close())

	report := New(vol).Check()
	assert.True(t, report.Clean(), "findings: %v", report.Findings)
}

// corruptReserveVDS overwrites the reserve VDS's first member block
// with garbage and returns a freshly re-opened Volume over the same
// (now corrupted) backing device — pkg/volume caches its descriptor
// set in memory, so a Checker built over the original Create-returned
// handle would never see a corruption applied after the fact.
func corruptReserveVDS(t *testing.T, mem *memDevice, dev *blockio.Device, vol *volume.Volume) *volume.Volume {
	t.Helper()
	anchors := vol.Anchors()
	require.NotEmpty(t, anchors)
	reserveBlock := anchors[0].ReserveVolDescSeqExtent.Location
	offset := int64(reserveBlock) * int64(vol.BlockSize())
	mem.mu.Lock()
	for i := 0; i < vol.BlockSize(); i++ {
		mem.data[offset+int64(i)] = 0xFF
	}
	mem.mu.Unlock()

	reopened, err := volume.Open(dev, volume.WithBlockSize(vol.BlockSize()))
	require.NoError(t, err)
	return reopened
}

func TestCheckDetectsCorruptedReserveVDS(t *testing.T) {
	const blocks = 20000
	mem, dev := newTestDevice(blocks, 2048)
	vol := createTestVolume(t, dev, blocks)
	require.NoError(t, vol.Close())

	corrupted := corruptReserveVDS(t, mem, dev, vol)

	report := New(corrupted).Check()
	assert.False(t, report.Clean())

	var found bool
	for _, f := range report.Findings {
		if f.Invariant == InvariantVDSDuplication {
			found = true
		}
	}
	assert.True(t, found, "expected a vds-duplication finding, got: %v", report.Findings)
}

func TestFixRebuildsReserveVDS(t *testing.T) {
	const blocks = 20000
	mem, dev := newTestDevice(blocks, 2048)
	vol := createTestVolume(t, dev, blocks)
	require.NoError(t, vol.Close())

	corrupted := corruptReserveVDS(t, mem, dev, vol)

	c := New(corrupted)
	report, err := c.Fix()
	require.NoError(t, err)
	assert.True(t, report.AnyFixed())
	assert.Equal(t, 1, report.ExitCode())

	reopened, err := volume.Open(dev, volume.WithBlockSize(corrupted.BlockSize()))
	require.NoError(t, err)
	second := New(reopened).Check()
	assert.True(t, second.Clean(), "findings after fix: %v", second.Findings)
}
