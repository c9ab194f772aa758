package volume

import (
	"fmt"

	"github.com/go-udf/udfkit/pkg/descriptor"
)

// Params configures one Volume Builder run: the device geometry and
// the write-strategy choices that change where structures land
// (spec.md §4.I, §6 "Write strategies per media").
type Params struct {
	Blocks      uint32
	BlockSize   int
	Media       MediaType
	Revision    uint16
	Sparable    bool
	AppendOnly  bool // VAT media: DVD-R/CD-R/BD-R
	Closed      bool
	PacketAlign uint32 // sparable packet alignment, e.g. 32 for CD-RW
}

// reservedBlocks is the number of blocks the first 32768 bytes occupy,
// per spec.md §4.I step 1.
func (p Params) reservedBlocks() uint32 {
	return uint32(32768 / p.BlockSize)
}

// Builder lays out a blank volume's structural areas (spec.md §4.I).
// It records every placement decision in an ExtentList; the caller
// then drives the post-layout setup passes (see Setup) by consulting
// the same list.
type Builder struct {
	params  Params
	sizing  SizingTable
	extents *ExtentList

	anchors []uint32
}

// NewBuilder starts a layout over a blank device of params.Blocks
// blocks, with area sizes drawn from sizing.
func NewBuilder(params Params, sizing SizingTable) *Builder {
	return &Builder{
		params:  params,
		sizing:  sizing,
		extents: NewExtentList(int(params.Blocks)),
	}
}

// Extents returns the builder's extent list once Layout has run.
func (b *Builder) Extents() *ExtentList {
	return b.extents
}

// Blocks returns the device geometry this builder was laid out over.
func (b *Builder) Blocks() uint32 {
	return b.params.Blocks
}

// Anchors returns the blocks Layout placed AVDPs at.
func (b *Builder) Anchors() []uint32 {
	return append([]uint32(nil), b.anchors...)
}

// Layout runs the seven-step placement algorithm of spec.md §4.I.
func (b *Builder) Layout() error {
	p := b.params
	if p.Blocks == 0 || p.BlockSize == 0 {
		return fmt.Errorf("volume: Layout requires nonzero Blocks and BlockSize")
	}

	// Step 1: RESERVED
	reserved := p.reservedBlocks()
	if reserved > 0 {
		b.extents.Place(Extent{Type: descriptor.SpaceReserved, Block: 0, Length: reserved})
	}

	// Step 2: VRS, three 2048-byte-stride descriptors.
	vrsBlocks := uint32((3*2048 + p.BlockSize - 1) / p.BlockSize)
	b.extents.Place(Extent{Type: descriptor.SpaceVRS, Block: reserved, Length: vrsBlocks})

	// Step 3: ANCHOR at 256; closed media gets a second at N-257; the
	// N-1 block is ANCHOR unless VAT media claims it for PSPACE.
	b.extents.Place(Extent{Type: descriptor.SpaceAnchor, Block: 256, Length: 1})
	b.anchors = append(b.anchors, 256)
	if p.Closed {
		loc := p.Blocks - 257
		b.extents.Place(Extent{Type: descriptor.SpaceAnchor, Block: loc, Length: 1})
		b.anchors = append(b.anchors, loc)
	}
	if !p.AppendOnly {
		loc := p.Blocks - 1
		b.extents.Place(Extent{Type: descriptor.SpaceAnchor, Block: loc, Length: 1})
		b.anchors = append(b.anchors, loc)
	}
	// For VAT media, N-1 is left unplaced here; step 7 below folds it
	// into PSPACE along with the rest of the trailing free run.

	// Step 4: compute sizes from the media sizing table.
	vdsSize := b.sizing.Sizing(p.Media, SizeClassVDS).Size(p.Blocks)
	lvidSize := b.sizing.Sizing(p.Media, SizeClassLVID).Size(p.Blocks)

	// Step 5: place PVDS near the front, LVID following it, RVDS near
	// the front too for VAT media (nothing can be trusted to survive at
	// the tail of write-once media) or near the tail otherwise.
	pvdsBlock, ok := b.extents.NextExtentSize(256, vdsSize, 1)
	if !ok {
		return fmt.Errorf("volume: no room for PVDS (%d blocks)", vdsSize)
	}
	b.extents.Place(Extent{Type: descriptor.SpacePVDS, Block: pvdsBlock, Length: vdsSize})

	lvidBlock, ok := b.extents.NextExtentSize(pvdsBlock+vdsSize, lvidSize, 1)
	if !ok {
		return fmt.Errorf("volume: no room for LVID (%d blocks)", lvidSize)
	}
	b.extents.Place(Extent{Type: descriptor.SpaceLVID, Block: lvidBlock, Length: lvidSize})

	var rvdsBlock uint32
	if p.AppendOnly {
		rvdsBlock, ok = b.extents.NextExtentSize(lvidBlock+lvidSize, vdsSize, 1)
		if !ok {
			return fmt.Errorf("volume: no room for RVDS (%d blocks)", vdsSize)
		}
	} else {
		tailBound := p.Blocks - 1
		rvdsBlock, ok = b.extents.PrevExtentSize(tailBound, vdsSize, 1)
		if !ok {
			return fmt.Errorf("volume: no room for RVDS (%d blocks)", vdsSize)
		}
	}
	b.extents.Place(Extent{Type: descriptor.SpaceRVDS, Block: rvdsBlock, Length: vdsSize})

	// Step 6: sparable STABLE copies alternate near the beginning and
	// the end, SSPACE follows STABLE.
	if p.Sparable {
		stableSize := b.sizing.Sizing(p.Media, SizeClassSTABLE).Size(p.Blocks)
		sspaceSize := b.sizing.Sizing(p.Media, SizeClassSSPACE).Size(p.Blocks)
		align := p.PacketAlign

		frontBlock, ok := b.extents.NextExtentSize(lvidBlock+lvidSize, stableSize, align)
		if !ok {
			return fmt.Errorf("volume: no room for front STABLE copy (%d blocks)", stableSize)
		}
		b.extents.Place(Extent{Type: descriptor.SpaceSTABLE, Block: frontBlock, Length: stableSize})

		backBlock, ok := b.extents.PrevExtentSize(p.Blocks-1, stableSize, align)
		if !ok {
			return fmt.Errorf("volume: no room for back STABLE copy (%d blocks)", stableSize)
		}
		b.extents.Place(Extent{Type: descriptor.SpaceSTABLE, Block: backBlock, Length: stableSize})

		sspaceBlock, ok := b.extents.NextExtentSize(frontBlock+stableSize, sspaceSize, align)
		if !ok {
			return fmt.Errorf("volume: no room for SSPACE (%d blocks)", sspaceSize)
		}
		b.extents.Place(Extent{Type: descriptor.SpaceSSPACE, Block: sspaceBlock, Length: sspaceSize})
	}

	// Step 7: PSPACE fills the remaining aligned USPACE gaps.
	pspaceSizing := b.sizing.Sizing(p.Media, SizeClassPSPACE)
	for _, free := range b.extents.FreeRanges() {
		start := alignUp(free.Block, pspaceSizing.Align)
		if start >= free.end() {
			continue
		}
		length := free.end() - start
		b.extents.Place(Extent{Type: descriptor.SpacePSPACE, Block: start, Length: length})
	}

	return nil
}

// PartitionExtent returns the PSPACE extent the logical partition
// occupies, once Layout has run. Layout places one PSPACE extent per
// remaining free gap, so this returns the largest of them.
func (b *Builder) PartitionExtent() (Extent, bool) {
	ps := b.extents.OfType(descriptor.SpacePSPACE)
	if len(ps) == 0 {
		return Extent{}, false
	}
	biggest := ps[0]
	for _, e := range ps[1:] {
		if e.Length > biggest.Length {
			biggest = e
		}
	}
	return biggest, true
}
