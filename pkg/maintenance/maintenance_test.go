package maintenance

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/pkg/blockio"
	"github.com/go-udf/udfkit/pkg/volume"
)

// fakeSizing mirrors pkg/volume's own test fixture: small, fixed
// structural-area sizes so Layout doesn't need internal/mediatab's
// real defaults table.
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

func newTestVolume(t *testing.T) *volume.Volume {
	t.Helper()
	const blocks = 20000
	const blockSize = 2048

	mem := newMemDevice(blocks * blockSize)
	dev := blockio.NewDevice(mem, mem, blockSize, absoluteLocator{})
	clock := volume.FixedClock{At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	vol, err := volume.Create(dev, blocks,
		volume.WithBlockSize(blockSize),
		volume.WithMediaType(volume.MediaHD),
		volume.WithSizingTable(fakeSizing{}),
		volume.WithClock(clock),
		volume.WithIdentity(volume.Identity{VolIdentifier: "TESTVOL", LogicalVolIdent: "TESTVOL"}),
	)
	require.NoError(t, err)
	return vol
}

func TestMkdirInsertsEntryAndPersistsContent(t *testing.T) {
	e := New(newTestVolume(t))

	require.NoError(t, e.Mkdir("/docs"))

	names, err := e.Ls("/")
	require.NoError(t, err)
	assert.Contains(t, names, "docs")

	res, err := e.Resolve("/docs")
	require.NoError(t, err)
	assert.Equal(t, ExistingDir, res.State)
}

func TestMkdirRejectsDuplicateName(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.Mkdir("/docs"))
	assert.Error(t, e.Mkdir("/docs"))
}

func TestMkdirNestedUnderExistingDirectory(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.Mkdir("/docs"))
	require.NoError(t, e.Mkdir("/docs/sub"))

	names, err := e.Ls("/docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"sub"}, names)
}

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	e := New(newTestVolume(t))
	content := []byte("hello udf")

	require.NoError(t, e.WriteFile("/hello.txt", content, false))

	got, err := e.ReadFile("/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestWriteFileRejectsDuplicateUnlessOverwrite(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.WriteFile("/a.txt", []byte("one"), false))

	err := e.WriteFile("/a.txt", []byte("two"), false)
	assert.Error(t, err)

	require.NoError(t, e.WriteFile("/a.txt", []byte("two"), true))
	got, err := e.ReadFile("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
}

func TestWriteFileLargerThanOneBlockUsesShortADExtent(t *testing.T) {
	e := New(newTestVolume(t))
	content := make([]byte, 5000)
	for i := range content {
		content[i] = byte(i)
	}
	require.NoError(t, e.WriteFile("/big.bin", content, false))

	got, err := e.ReadFile("/big.bin")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRmRemovesFile(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.WriteFile("/a.txt", []byte("x"), false))
	require.NoError(t, e.Rm("/a.txt"))

	res, err := e.Resolve("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, DeletedFile, res.State)
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.Mkdir("/docs"))
	require.NoError(t, e.WriteFile("/docs/a.txt", []byte("x"), false))

	assert.Error(t, e.Rmdir("/docs"))
}

func TestRmdirRemovesEmptyDirectory(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.Mkdir("/docs"))
	require.NoError(t, e.Rmdir("/docs"))

	res, err := e.Resolve("/docs")
	require.NoError(t, err)
	assert.Equal(t, DeletedDir, res.State)
}

func TestRmRecursiveRemovesWholeTree(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.Mkdir("/docs"))
	require.NoError(t, e.WriteFile("/docs/a.txt", []byte("x"), false))
	require.NoError(t, e.Mkdir("/docs/sub"))
	require.NoError(t, e.WriteFile("/docs/sub/b.txt", []byte("y"), false))

	require.NoError(t, e.RmRecursive("/docs"))

	res, err := e.Resolve("/docs")
	require.NoError(t, err)
	assert.Equal(t, DeletedDir, res.State)
}

func TestLnIncrementsLinkCountAndAddsEntry(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.WriteFile("/a.txt", []byte("x"), false))
	require.NoError(t, e.Ln("/a.txt", "/b.txt"))

	names, err := e.Ls("/")
	require.NoError(t, err)
	assert.Contains(t, names, "a.txt")
	assert.Contains(t, names, "b.txt")

	got, err := e.ReadFile("/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestMvRenamesWithinSameDirectory(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.WriteFile("/a.txt", []byte("x"), false))
	require.NoError(t, e.Mv("/a.txt", "/b.txt"))

	names, err := e.Ls("/")
	require.NoError(t, err)
	assert.NotContains(t, names, "a.txt")
	assert.Contains(t, names, "b.txt")
}

func TestMvMovesAcrossDirectoriesAndReparentsSubdirectory(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.Mkdir("/src"))
	require.NoError(t, e.Mkdir("/dst"))
	require.NoError(t, e.Mkdir("/src/child"))

	require.NoError(t, e.Mv("/src/child", "/dst/child"))

	srcNames, err := e.Ls("/src")
	require.NoError(t, err)
	assert.Empty(t, srcNames)

	dstNames, err := e.Ls("/dst")
	require.NoError(t, err)
	assert.Contains(t, dstNames, "child")

	require.NoError(t, e.Cd("/dst/child"))
	require.NoError(t, e.Cd(".."))
	assert.Equal(t, "/dst", e.Cwd())
}

func TestCdAndDotDotNavigation(t *testing.T) {
	e := New(newTestVolume(t))
	require.NoError(t, e.Mkdir("/docs"))
	require.NoError(t, e.Cd("/docs"))
	assert.Equal(t, "/docs", e.Cwd())

	require.NoError(t, e.Cd(".."))
	assert.Equal(t, "/", e.Cwd())
}

func TestResolveReportsDoesNotExist(t *testing.T) {
	e := New(newTestVolume(t))
	res, err := e.Resolve("/nope.txt")
	require.NoError(t, err)
	assert.Equal(t, DoesNotExist, res.State)
}
