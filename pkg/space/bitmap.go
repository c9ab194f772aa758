package space

import (
	"fmt"

	"github.com/go-udf/udfkit/internal/udferr"
)

// BitmapAllocator tracks free blocks with one bit per block: 1 means
// free, 0 means allocated, matching the ECMA-167 Space Bitmap
// Descriptor's on-disc convention (spec.md §4.D).
type BitmapAllocator struct {
	bits      []byte
	blocks    uint32
	alignment uint32
	free      uint32
}

// NewBitmapAllocator creates a bitmap over the given number of blocks,
// all initially allocated (caller seeds free space via SetExtent).
func NewBitmapAllocator(blocks uint32, alignment uint32) *BitmapAllocator {
	if alignment == 0 {
		alignment = AllocationAlignment
	}
	return &BitmapAllocator{
		bits:      make([]byte, (blocks+7)/8),
		blocks:    blocks,
		alignment: alignment,
	}
}

func (b *BitmapAllocator) bit(i uint32) bool {
	return b.bits[i/8]&(1<<(i%8)) != 0
}

func (b *BitmapAllocator) setBit(i uint32, free bool) {
	if free {
		b.bits[i/8] |= 1 << (i % 8)
	} else {
		b.bits[i/8] &^= 1 << (i % 8)
	}
}

// SetExtent marks [start, start+blocks) free (TypeUnallocated) or
// allocated (TypeFreed is not meaningful for bitmap seeding; any
// non-TypeUnallocated value marks allocated).
func (b *BitmapAllocator) SetExtent(spaceType Type, start uint32, blocks uint32) error {
	free := spaceType == TypeUnallocated
	for i := start; i < start+blocks && i < b.blocks; i++ {
		was := b.bit(i)
		b.setBit(i, free)
		if free && !was {
			b.free++
		} else if !free && was {
			b.free--
		}
	}
	return nil
}

func alignUp(v, alignment uint32) uint32 {
	if alignment <= 1 {
		return v
	}
	if r := v % alignment; r != 0 {
		return v + (alignment - r)
	}
	return v
}

// AllocBlocks advances from startHint to the allocation alignment, then
// finds the first run of n consecutive free bits, skipping past
// allocated regions that interrupt too-short runs (spec.md §4.D).
func (b *BitmapAllocator) AllocBlocks(startHint uint32, n uint32) (uint32, error) {
	i := alignUp(startHint, b.alignment)
	for i+n <= b.blocks {
		runStart := i
		runLen := uint32(0)
		for i < b.blocks && b.bit(i) {
			runLen++
			i++
			if runLen == n {
				break
			}
		}
		if runLen >= n {
			for j := runStart; j < runStart+n; j++ {
				b.setBit(j, false)
			}
			b.free -= n
			return runStart, nil
		}
		// Skip past the allocated block that broke the run.
		i++
	}
	return 0, udferr.New(udferr.NoSpace, "BitmapAllocator.AllocBlocks", fmt.Errorf("no run of %d free blocks found", n))
}

// FreeBlocks flips n bits starting at lbn back to free.
func (b *BitmapAllocator) FreeBlocks(lbn uint32, n uint32) error {
	if lbn+n > b.blocks {
		return fmt.Errorf("space: FreeBlocks range [%d,%d) out of bounds", lbn, lbn+n)
	}
	for i := lbn; i < lbn+n; i++ {
		if !b.bit(i) {
			b.free++
		}
		b.setBit(i, true)
	}
	return nil
}

func (b *BitmapAllocator) scanFreeRun(from uint32) (start, length uint32, ok bool) {
	i := from
	for i < b.blocks && !b.bit(i) {
		i++
	}
	if i >= b.blocks {
		return 0, 0, false
	}
	start = i
	for i < b.blocks && b.bit(i) {
		i++
	}
	return start, i - start, true
}

// NextExtent returns the next free run strictly after `after`.
func (b *BitmapAllocator) NextExtent(after uint32) (uint32, uint32, bool) {
	return b.scanFreeRun(after + 1)
}

// PrevExtent returns the free run immediately preceding `before`, if
// that run's end equals before.
func (b *BitmapAllocator) PrevExtent(before uint32) (uint32, uint32, bool) {
	if before == 0 || before > b.blocks {
		return 0, 0, false
	}
	if !b.bit(before - 1) {
		return 0, 0, false
	}
	end := before
	i := before - 1
	for {
		if i == 0 || !b.bit(i-1) {
			return i, end - i, true
		}
		i--
	}
}

// FindExtent reports whether blkno is free, returning the enclosing
// free run if so.
func (b *BitmapAllocator) FindExtent(blkno uint32) (uint32, uint32, bool) {
	if blkno >= b.blocks || !b.bit(blkno) {
		return 0, 0, false
	}
	start := blkno
	for start > 0 && b.bit(start-1) {
		start--
	}
	end := blkno + 1
	for end < b.blocks && b.bit(end) {
		end++
	}
	return start, end - start, true
}

// FreeBlockCount returns the number of bits currently marked free.
func (b *BitmapAllocator) FreeBlockCount() uint32 {
	return b.free
}

// Bytes returns the raw on-disc bitmap payload (ECMA-167 14/1.2
// bitmap field), for serializing into a Space Bitmap Descriptor.
func (b *BitmapAllocator) Bytes() []byte {
	return b.bits
}
