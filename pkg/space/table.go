package space

import (
	"fmt"
	"sort"

	"github.com/go-udf/udfkit/internal/udferr"
	"github.com/go-udf/udfkit/pkg/primitive"
)

// TableAllocator tracks free space as a sequence of short_ads (the
// Unallocated Space Entry variant, spec.md §4.D), kept sorted by
// starting block for first-fit scanning.
type TableAllocator struct {
	free      []primitive.ShortAD
	alignment uint32
	freeCount uint32
}

// NewTableAllocator creates an empty table allocator; free space is
// seeded via SetExtent.
func NewTableAllocator(alignment uint32) *TableAllocator {
	if alignment == 0 {
		alignment = AllocationAlignment
	}
	return &TableAllocator{alignment: alignment}
}

func (t *TableAllocator) sortByPosition() {
	sort.Slice(t.free, func(i, j int) bool { return t.free[i].Block < t.free[j].Block })
}

// SetExtent marks [start, start+blocks) as free (TypeUnallocated) by
// inserting a new free ad. Any other space type is ignored: free ads
// already recorded are not trimmed. Used to seed the allocator.
func (t *TableAllocator) SetExtent(spaceType Type, start uint32, blocks uint32) error {
	if spaceType != TypeUnallocated {
		return nil
	}
	t.free = append(t.free, shortADFor(start, blocks))
	t.freeCount += blocks
	t.sortByPosition()
	return nil
}

// AllocBlocks scans the free list for the first ad that can satisfy n
// blocks aligned within it at or after startHint, then splits or
// removes that ad (spec.md §4.D table variant).
func (t *TableAllocator) AllocBlocks(startHint uint32, n uint32) (uint32, error) {
	for i, ad := range t.free {
		candidate := ad.Block
		if candidate < startHint {
			candidate = startHint
		}
		candidate = alignUp(candidate, t.alignment)
		if candidate < ad.Block || candidate+n > ad.Block+ad.Length {
			continue
		}

		head := candidate - ad.Block
		tail := (ad.Block + ad.Length) - (candidate + n)

		switch {
		case head == 0 && tail == 0:
			t.free = append(t.free[:i], t.free[i+1:]...)
		case head == 0:
			t.free[i] = shortADFor(candidate+n, tail)
		case tail == 0:
			t.free[i] = shortADFor(ad.Block, head)
		default:
			t.free[i] = shortADFor(ad.Block, head)
			t.free = append(t.free, shortADFor(candidate+n, tail))
			t.sortByPosition()
		}
		t.freeCount -= n
		return candidate, nil
	}
	return 0, udferr.New(udferr.NoSpace, "TableAllocator.AllocBlocks", fmt.Errorf("no free extent satisfies %d blocks", n))
}

// FreeBlocks returns a run to the free list, coalescing with any
// adjacent free ads.
func (t *TableAllocator) FreeBlocks(lbn uint32, n uint32) error {
	t.free = append(t.free, shortADFor(lbn, n))
	t.freeCount += n
	t.sortByPosition()
	t.coalesce()
	return nil
}

func (t *TableAllocator) coalesce() {
	merged := t.free[:0:0]
	for _, ad := range t.free {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Block+last.Length == ad.Block {
				last.Length += ad.Length
				continue
			}
		}
		merged = append(merged, ad)
	}
	t.free = merged
}

// NextExtent returns the free ad with the smallest start strictly
// greater than `after`.
func (t *TableAllocator) NextExtent(after uint32) (uint32, uint32, bool) {
	var best *primitive.ShortAD
	for i := range t.free {
		ad := &t.free[i]
		if ad.Block > after && (best == nil || ad.Block < best.Block) {
			best = ad
		}
	}
	if best == nil {
		return 0, 0, false
	}
	return best.Block, best.Length, true
}

// PrevExtent returns the free ad whose end equals `before`.
func (t *TableAllocator) PrevExtent(before uint32) (uint32, uint32, bool) {
	for _, ad := range t.free {
		if ad.Block+ad.Length == before {
			return ad.Block, ad.Length, true
		}
	}
	return 0, 0, false
}

// FindExtent reports whether blkno falls within a free ad.
func (t *TableAllocator) FindExtent(blkno uint32) (uint32, uint32, bool) {
	for _, ad := range t.free {
		if blkno >= ad.Block && blkno < ad.Block+ad.Length {
			return ad.Block, ad.Length, true
		}
	}
	return 0, 0, false
}

// FreeBlockCount returns the sum of all free ads' lengths.
func (t *TableAllocator) FreeBlockCount() uint32 {
	return t.freeCount
}

// Entries returns the current free list, for serializing into an
// Unallocated Space Entry's allocation descriptors.
func (t *TableAllocator) Entries() []primitive.ShortAD {
	return t.free
}
