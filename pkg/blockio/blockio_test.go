package blockio

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/pkg/tag"
)

// memDevice is an in-memory io.ReaderAt/io.WriterAt backed by a byte
// slice, used to exercise Device without a real file.
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

type fixedLocator struct{ starts map[int]uint32 }

func (f fixedLocator) PartitionStart(partition int) (uint32, error) {
	return f.starts[partition], nil
}

func TestDeviceReadWriteBlockAbsolute(t *testing.T) {
	mem := newMemDevice(64 * 2048)
	dev := NewDevice(mem, mem, 2048, nil)

	block := bytes.Repeat([]byte{0xAB}, 2048)
	require.NoError(t, dev.WriteBlock(10, AbsolutePartition, block))

	back, err := dev.ReadBlock(10, AbsolutePartition)
	require.NoError(t, err)
	assert.Equal(t, block, back)
}

func TestDevicePartitionTranslation(t *testing.T) {
	mem := newMemDevice(64 * 2048)
	dev := NewDevice(mem, mem, 2048, fixedLocator{starts: map[int]uint32{0: 300}})

	block := bytes.Repeat([]byte{0x11}, 2048)
	require.NoError(t, dev.WriteBlock(5, 0, block))

	direct, err := dev.ReadBlock(305, AbsolutePartition)
	require.NoError(t, err)
	assert.Equal(t, block, direct)
}

func TestDeviceReadTaggedVerifiesTag(t *testing.T) {
	mem := newMemDevice(64 * 2048)
	dev := NewDevice(mem, mem, 2048, nil)

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	built := tag.Build(tag.IdentFE, 1, 20, payload)
	raw := built.Marshal()

	block := make([]byte, 2048)
	copy(block[:tag.Size], raw[:])
	copy(block[tag.Size:], payload)
	require.NoError(t, dev.WriteBlock(20, AbsolutePartition, block))

	got, parsedPayload, err := dev.ReadTagged(20, AbsolutePartition, tag.IdentFE, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, parsedPayload)
	assert.Equal(t, uint32(20), got.TagLocation)
}

func TestDeviceReadTaggedRejectsWrongIdentifier(t *testing.T) {
	mem := newMemDevice(64 * 2048)
	dev := NewDevice(mem, mem, 2048, nil)

	payload := []byte("hello")
	built := tag.Build(tag.IdentFID, 1, 21, payload)
	raw := built.Marshal()
	block := make([]byte, 2048)
	copy(block[:tag.Size], raw[:])
	copy(block[tag.Size:], payload)
	require.NoError(t, dev.WriteBlock(21, AbsolutePartition, block))

	_, _, err := dev.ReadTagged(21, AbsolutePartition, tag.IdentFE, len(payload))
	assert.Error(t, err)
}

func TestPacketCacheWriteReadRoundTrip(t *testing.T) {
	mem := newMemDevice(4096 * 2048)
	dev := NewDevice(mem, mem, 2048, nil)
	cache := NewPacketCache(dev, nil, 2)

	block := bytes.Repeat([]byte{0xCD}, 2048)
	require.NoError(t, cache.WriteBlock(64, block))

	back, err := cache.ReadBlock(64)
	require.NoError(t, err)
	assert.Equal(t, block, back)

	require.NoError(t, cache.Sync())

	// After sync, reading directly through the device must see the write.
	direct, err := dev.ReadBlock(64, AbsolutePartition)
	require.NoError(t, err)
	assert.Equal(t, block, direct)
}

func TestPacketCacheEvictionWritesBackDirtyPacket(t *testing.T) {
	mem := newMemDevice(4096 * 2048)
	dev := NewDevice(mem, mem, 2048, nil)
	cache := NewPacketCache(dev, nil, 1)

	first := bytes.Repeat([]byte{0x01}, 2048)
	require.NoError(t, cache.WriteBlock(0, first))

	second := bytes.Repeat([]byte{0x02}, 2048)
	require.NoError(t, cache.WriteBlock(32, second))

	direct, err := dev.ReadBlock(0, AbsolutePartition)
	require.NoError(t, err)
	assert.Equal(t, first, direct, "evicted packet must have been written back before reuse")
}
