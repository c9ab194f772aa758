// Package space implements the Space Manager: the bitmap, table, and
// VAT-backed strategies for tracking free logical blocks within a
// partition (spec.md §4.D).
package space

import (
	"github.com/go-udf/udfkit/pkg/primitive"
)

// Type names the space a manager is tracking, matching
// descriptor.SpaceType's partition-space distinction.
type Type int

const (
	TypeUnallocated Type = iota
	TypeFreed
)

// Allocator is the common interface implemented by the bitmap, table,
// and VAT space-management strategies (spec.md §4.D).
type Allocator interface {
	// AllocBlocks finds n consecutive free blocks starting at or after
	// startHint, marks them allocated, and returns the first block's
	// logical number.
	AllocBlocks(startHint uint32, n uint32) (uint32, error)

	// FreeBlocks marks n blocks starting at lbn as free again.
	FreeBlocks(lbn uint32, n uint32) error

	// SetExtent marks blocks in [start, start+blocks) with the given
	// space type, used when seeding the manager from an on-disc
	// descriptor at volume open.
	SetExtent(spaceType Type, start uint32, blocks uint32) error

	// NextExtent returns the next free extent strictly after the given
	// block, or ok=false if none remains.
	NextExtent(after uint32) (start uint32, blocks uint32, ok bool)

	// PrevExtent returns the free extent immediately before the given
	// block, or ok=false if none exists.
	PrevExtent(before uint32) (start uint32, blocks uint32, ok bool)

	// FindExtent reports whether blkno falls within a free extent, and
	// if so returns that extent's bounds.
	FindExtent(blkno uint32) (start uint32, blocks uint32, ok bool)

	// FreeBlockCount returns the total number of blocks currently free.
	FreeBlockCount() uint32
}

// AllocationAlignment is the block alignment new allocations are
// advanced to before searching for a free run (spec.md §4.D).
const AllocationAlignment = 1

// shortADFor returns an allocated short_ad for the given run, using
// the ExtentRecordedAllocated type bits.
func shortADFor(block, length uint32) primitive.ShortAD {
	return primitive.ShortAD{Length: length, Type: primitive.ExtentRecordedAllocated, Block: block}
}
