package blockio

import (
	"fmt"

	"github.com/go-udf/udfkit/internal/udferr"
)

// PacketBlocks is the fixed packet size for rewritable packet-written
// media (32 blocks, spec.md §4.B).
const PacketBlocks = 32

// packetBuffer holds one 32-block packet aligned to a PacketBlocks
// boundary, with per-block hold and dirty bitmaps.
type packetBuffer struct {
	base  uint32 // first block of the packet
	data  []byte // PacketBlocks * blockSize bytes
	inUse uint32 // per-block hold bitmap (bit set = held)
	dirty uint32 // per-block dirty bitmap
	valid bool
}

// Spareable remaps a defective packet location on persistent write
// failure. Implemented by the Sparing Engine (Component C).
type Spareable interface {
	Remap(orig uint32) (uint32, error)
}

// PacketCache wraps a Device with a small fixed pool of packet buffers,
// each covering one 32-block packet, implementing the eviction and
// verify-and-spare policy of spec.md §4.B.
type PacketCache struct {
	dev      *Device
	sparing  Spareable
	pool     []*packetBuffer
	poolSize int
}

// NewPacketCache wraps dev with a pool of the given size (spec.md
// recommends ~4 buffers).
func NewPacketCache(dev *Device, sparing Spareable, poolSize int) *PacketCache {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &PacketCache{dev: dev, sparing: sparing, poolSize: poolSize}
}

func packetBase(lbn uint32) uint32 {
	return lbn - (lbn % PacketBlocks)
}

func (c *PacketCache) find(base uint32) *packetBuffer {
	for _, p := range c.pool {
		if p.valid && p.base == base {
			return p
		}
	}
	return nil
}

// evict picks a buffer to reuse: prefers one with no holds and no dirty
// bits; otherwise writes back the dirtiest unheld buffer. Returns an
// error if nothing can be evicted (spec.md §4.B).
func (c *PacketCache) evict() (*packetBuffer, error) {
	if len(c.pool) < c.poolSize {
		p := &packetBuffer{}
		c.pool = append(c.pool, p)
		return p, nil
	}
	var best *packetBuffer
	bestDirtyBits := -1
	for _, p := range c.pool {
		if p.inUse != 0 {
			continue
		}
		if p.dirty == 0 {
			return p, nil
		}
		bits := popcount32(p.dirty)
		if bits > bestDirtyBits {
			best = p
			bestDirtyBits = bits
		}
	}
	if best == nil {
		return nil, udferr.New(udferr.IoError, "PacketCache.evict", fmt.Errorf("no evictable packet buffer available"))
	}
	if err := c.flush(best); err != nil {
		return nil, err
	}
	return best, nil
}

func popcount32(v uint32) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

func (c *PacketCache) load(base uint32) (*packetBuffer, error) {
	if p := c.find(base); p != nil {
		return p, nil
	}
	p, err := c.evict()
	if err != nil {
		return nil, err
	}
	data := make([]byte, PacketBlocks*c.dev.BlockSize())
	for i := uint32(0); i < PacketBlocks; i++ {
		blk, err := c.dev.ReadBlock(base+i, AbsolutePartition)
		if err != nil {
			return nil, err
		}
		copy(data[int(i)*c.dev.BlockSize():], blk)
	}
	p.base = base
	p.data = data
	p.inUse = 0
	p.dirty = 0
	p.valid = true
	return p, nil
}

// ReadBlock reads a single block through the packet cache.
func (c *PacketCache) ReadBlock(lbn uint32) ([]byte, error) {
	base := packetBase(lbn)
	p, err := c.load(base)
	if err != nil {
		return nil, err
	}
	idx := lbn - base
	bs := c.dev.BlockSize()
	out := make([]byte, bs)
	copy(out, p.data[int(idx)*bs:int(idx+1)*bs])
	return out, nil
}

// WriteBlock writes a single block into the cache, marking it dirty;
// the packet is not written to the device until it is evicted or Sync
// is called.
func (c *PacketCache) WriteBlock(lbn uint32, src []byte) error {
	base := packetBase(lbn)
	p, err := c.load(base)
	if err != nil {
		return err
	}
	idx := lbn - base
	bs := c.dev.BlockSize()
	copy(p.data[int(idx)*bs:int(idx+1)*bs], src)
	p.dirty |= 1 << idx
	return nil
}

// Hold marks a block as held, preventing its packet from being evicted
// until Release is called. Holds do not nest: one Release clears the
// block's hold however many times Hold was called.
func (c *PacketCache) Hold(lbn uint32) {
	base := packetBase(lbn)
	if p := c.find(base); p != nil {
		p.inUse |= 1 << (lbn - base)
	}
}

// Release clears a block's hold.
func (c *PacketCache) Release(lbn uint32) {
	base := packetBase(lbn)
	if p := c.find(base); p != nil {
		p.inUse &^= 1 << (lbn - base)
	}
}

// flush writes back a dirty packet as one 32-block run, verifies it by
// re-read under strict mode, and on failure remaps it via the Sparing
// Engine and tries again, making at most maxSpareAttempts write
// attempts in all.
const maxSpareAttempts = 3

func (c *PacketCache) flush(p *packetBuffer) error {
	if p.dirty == 0 {
		p.valid = false
		return nil
	}

	base := p.base
	attempt := 0
	for {
		if err := c.writePacket(base, p.data); err != nil {
			return err
		}
		if err := c.verifyPacket(base, p.data); err == nil {
			break
		}
		attempt++
		if attempt >= maxSpareAttempts || c.sparing == nil {
			return udferr.NewAt(udferr.IoError, "PacketCache.flush", base, fmt.Errorf("packet verify failed after %d attempts", attempt))
		}
		remapped, err := c.sparing.Remap(base)
		if err != nil {
			return err
		}
		base = remapped
	}

	p.dirty = 0
	return nil
}

func (c *PacketCache) writePacket(base uint32, data []byte) error {
	bs := c.dev.BlockSize()
	for i := uint32(0); i < PacketBlocks; i++ {
		if err := c.dev.WriteBlock(base+i, AbsolutePartition, data[int(i)*bs:int(i+1)*bs]); err != nil {
			return err
		}
	}
	return nil
}

func (c *PacketCache) verifyPacket(base uint32, want []byte) error {
	c.dev.SetStrictRead(true)
	defer c.dev.SetStrictRead(false)

	bs := c.dev.BlockSize()
	for i := uint32(0); i < PacketBlocks; i++ {
		got, err := c.dev.ReadBlock(base+i, AbsolutePartition)
		if err != nil {
			return err
		}
		for j, b := range got {
			if want[int(i)*bs+j] != b {
				return fmt.Errorf("blockio: packet verify mismatch at block %d", base+i)
			}
		}
	}
	return nil
}

// Sync flushes every dirty, unheld packet in the pool.
func (c *PacketCache) Sync() error {
	for _, p := range c.pool {
		if p.valid && p.inUse == 0 && p.dirty != 0 {
			if err := c.flush(p); err != nil {
				return err
			}
		}
	}
	return nil
}
