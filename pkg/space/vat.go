package space

import "github.com/go-udf/udfkit/internal/udferr"

// VATAllocator implements the append-only allocation strategy for
// VAT-formatted media: the medium itself enforces append-only writes,
// so no bitmap or free list is maintained — alloc simply advances a
// next-writable-address cursor (spec.md §4.D "VAT variant").
type VATAllocator struct {
	nextWritable uint32
	capacity     uint32
}

// NewVATAllocator starts the cursor at the given partition-relative
// next-writable-address, bounded by the partition's block capacity.
func NewVATAllocator(nextWritable uint32, capacity uint32) *VATAllocator {
	return &VATAllocator{nextWritable: nextWritable, capacity: capacity}
}

// AllocBlocks ignores startHint (append-only media has only one legal
// place to write: the current end) and returns the cursor, advancing
// it by n. VatFull when the partition is exhausted.
func (v *VATAllocator) AllocBlocks(_ uint32, n uint32) (uint32, error) {
	if v.nextWritable+n > v.capacity {
		return 0, udferr.New(udferr.VatFull, "VATAllocator.AllocBlocks", nil)
	}
	lbn := v.nextWritable
	v.nextWritable += n
	return lbn, nil
}

// FreeBlocks is a no-op: append-only media cannot reclaim space until
// the VAT itself is rewritten wholesale.
func (v *VATAllocator) FreeBlocks(uint32, uint32) error {
	return nil
}

// SetExtent is a no-op; VAT media has no free-space descriptor to seed.
func (v *VATAllocator) SetExtent(Type, uint32, uint32) error {
	return nil
}

// NextExtent, PrevExtent, and FindExtent have no meaning on append-only
// media and always report nothing found.
func (v *VATAllocator) NextExtent(uint32) (uint32, uint32, bool) { return 0, 0, false }
func (v *VATAllocator) PrevExtent(uint32) (uint32, uint32, bool) { return 0, 0, false }
func (v *VATAllocator) FindExtent(uint32) (uint32, uint32, bool) { return 0, 0, false }

// FreeBlockCount reports the remaining writable capacity.
func (v *VATAllocator) FreeBlockCount() uint32 {
	return v.capacity - v.nextWritable
}

// NextWritableAddress returns the current append cursor.
func (v *VATAllocator) NextWritableAddress() uint32 {
	return v.nextWritable
}
