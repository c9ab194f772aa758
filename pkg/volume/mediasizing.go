package volume

// SizeClass names the five structural areas the media-type sizing
// table sizes (spec.md §6 "Media types and default sizings").
type SizeClass int

const (
	SizeClassVDS SizeClass = iota
	SizeClassLVID
	SizeClassSTABLE
	SizeClassSSPACE
	SizeClassPSPACE
)

// MediaType names the device categories the sizing table is keyed on.
type MediaType int

const (
	MediaHD MediaType = iota
	MediaDVD
	MediaDVDRAM
	MediaDVDRW
	MediaDVDR
	MediaWORM
	MediaMO
	MediaCDRW
	MediaCDR
	MediaCD
	MediaBDR
)

// Sizing is one `(align, num, denom, min)` row: allocated size is
// `max(min, blocks*num/denom)`, aligned up to `align` (spec.md §6).
type Sizing struct {
	Align  uint32
	Num    uint64
	Denom  uint64
	MinLen uint32
}

// Size computes the allocated length in blocks for a volume of the
// given total block count, per spec.md §4.I step 4.
func (s Sizing) Size(blocks uint32) uint32 {
	computed := uint64(blocks) * s.Num / s.Denom
	if computed < uint64(s.MinLen) {
		computed = uint64(s.MinLen)
	}
	return alignUp(uint32(computed), s.Align)
}

// SizingTable looks up the five size-class rows for one media type.
// Implemented by internal/mediatab so the Volume Builder never embeds
// the sizing data itself.
type SizingTable interface {
	Sizing(media MediaType, class SizeClass) Sizing
}
