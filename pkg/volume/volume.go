// Package volume implements the Volume Builder: the extent list model,
// the layout algorithm that places every structural area across a
// blank device, and the top-level Open/Create API tying the Tag,
// Block I/O, Space, Descriptor Set, File Entry, and Directory engines
// together into one usable volume (spec.md §4.I). It does not use the
// Sparing (pkg/sparing) or VAT (pkg/vat) engines.
package volume

import (
	"sort"

	"github.com/go-udf/udfkit/pkg/descriptor"
	"github.com/go-udf/udfkit/pkg/primitive"
)

// Extent is one placed region of a volume, tagged with the structural
// role it plays (spec.md §3 "Extent list").
type Extent struct {
	Type   descriptor.SpaceType
	Block  uint32
	Length uint32 // blocks
}

func (e Extent) end() uint32 {
	return e.Block + e.Length
}

// ExtentList is the ordered, non-overlapping set of regions placed on
// a volume so far. It is the single source of truth the layout
// algorithm consults to find free space and to record what it placed.
type ExtentList struct {
	blocks int
	items  []Extent
}

// NewExtentList starts an empty list over a device of the given size,
// with everything implicitly USPACE (unallocated) until placed.
func NewExtentList(blocks int) *ExtentList {
	return &ExtentList{blocks: blocks}
}

// Place records a new extent, keeping the list sorted by starting
// block. Callers are responsible for ensuring it doesn't overlap an
// existing placement; Find* helpers exist precisely so callers don't
// have to guess.
func (l *ExtentList) Place(e Extent) {
	l.items = append(l.items, e)
	sort.Slice(l.items, func(i, j int) bool { return l.items[i].Block < l.items[j].Block })
}

// Items returns the placed extents in block order.
func (l *ExtentList) Items() []Extent {
	return append([]Extent(nil), l.items...)
}

// OfType returns every placed extent with the given role, in block
// order.
func (l *ExtentList) OfType(t descriptor.SpaceType) []Extent {
	var out []Extent
	for _, e := range l.items {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// overlaps reports whether [block, block+length) intersects any
// already-placed extent.
func (l *ExtentList) overlaps(block, length uint32) bool {
	end := block + length
	for _, e := range l.items {
		if block < e.end() && e.Block < end {
			return true
		}
	}
	return false
}

// NextExtentSize finds the first free, alignment-respecting run of
// size blocks at or after from (spec.md §4.I step 5, "earlier"
// placement direction).
func (l *ExtentList) NextExtentSize(from uint32, size uint32, alignment uint32) (uint32, bool) {
	if alignment == 0 {
		alignment = 1
	}
	for block := alignUp(from, alignment); block+size <= uint32(l.blocks); block += alignment {
		if !l.overlaps(block, size) {
			return block, true
		}
	}
	return 0, false
}

// PrevExtentSize finds the last free, alignment-respecting run of size
// blocks at or before the tail bound upTo (spec.md §4.I step 5,
// "later" placement direction, used for tail structures such as the
// reserve VDS on non-VAT media).
func (l *ExtentList) PrevExtentSize(upTo uint32, size uint32, alignment uint32) (uint32, bool) {
	if alignment == 0 {
		alignment = 1
	}
	start := alignDown(upTo-size, alignment)
	for block := start; ; block -= alignment {
		if !l.overlaps(block, size) {
			return block, true
		}
		if block < alignment {
			break
		}
	}
	return 0, false
}

func alignUp(v, align uint32) uint32 {
	if v%align == 0 {
		return v
	}
	return v + (align - v%align)
}

func alignDown(v, align uint32) uint32 {
	return v - v%align
}

// FreeRanges returns the gaps between placed extents, in block order,
// used to fill remaining USPACE with PSPACE (spec.md §4.I step 7).
func (l *ExtentList) FreeRanges() []Extent {
	var out []Extent
	cursor := uint32(0)
	for _, e := range l.items {
		if e.Block > cursor {
			out = append(out, Extent{Type: descriptor.SpaceUSPACE, Block: cursor, Length: e.Block - cursor})
		}
		if e.end() > cursor {
			cursor = e.end()
		}
	}
	if cursor < uint32(l.blocks) {
		out = append(out, Extent{Type: descriptor.SpaceUSPACE, Block: cursor, Length: uint32(l.blocks) - cursor})
	}
	return out
}

// Clock supplies the "now" timestamp used when stamping newly created
// descriptors. The real-time implementation is used by default; tests
// and reproducible-disc builds (mkudffs's --lvid-timestamp-equivalent
// knob) inject a fixed clock instead.
type Clock interface {
	Now() primitive.Timestamp
}
