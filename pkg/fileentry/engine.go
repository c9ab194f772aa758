package fileentry

import (
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// Counter is the uniqueID source backing the LVID's 64-bit uniqueID
// counter (spec.md §4.G step 4): advances by 1 normally, or by 16 when
// the assigned id's bottom 32 bits just landed on a 32-bit boundary,
// so the bottom 32 bits (the only bits a FID's impl-use area carries)
// never roll over within one session.
type Counter struct {
	next uint64
}

// NewCounter starts a counter at the given value (typically read back
// from the LVID's logicalVolContentsUse on volume open).
func NewCounter(start uint64) *Counter {
	return &Counter{next: start}
}

// NextUniqueID assigns and advances the counter.
func (c *Counter) NextUniqueID() uint64 {
	id := c.next
	if uint32(id) == 0 {
		c.next = id + 16
	} else {
		c.next = id + 1
	}
	return id
}

// Value returns the counter's current (not-yet-assigned) value, for
// persisting back into the LVID.
func (c *Counter) Value() uint64 {
	return c.next
}

// UniqueIDSource assigns fresh 64-bit unique IDs.
type UniqueIDSource interface {
	NextUniqueID() uint64
}

// Counters tracks the LVID IUVD's per-partition file/directory counts.
type Counters interface {
	BumpFileCount()
	BumpDirCount()
}

// BlockAllocator allocates partition-relative blocks, satisfied by
// pkg/space's Allocator implementations.
type BlockAllocator interface {
	AllocBlocks(startHint uint32, n uint32) (uint32, error)
}

// Params configures one CreateFileEntry call.
type Params struct {
	// ParentICBBlock/ParentICBPartitionRef locate the parent directory's
	// ICB; for a self reference (the root directory) they hold block 0.
	ParentICBBlock        uint32
	ParentICBPartitionRef uint16

	FileType     uint8
	IsStream     bool // STREAM_DIR or STREAM flag: uniqueID forced to 0
	UseEFE       bool // revision >= 2.00 with EFE flag set
	Strategy4096 bool

	Now primitive.Timestamp

	BlockSize           int
	ImplementationIdent primitive.Regid
}

// Result is a freshly constructed, not-yet-written file entry.
type Result struct {
	Block  uint32
	Blocks uint32
	FE     *FileEntry
	EFE    *ExtendedFileEntry
}

// CreateFileEntry implements spec.md §4.G steps 1-6 and 8: it
// allocates the ICB block(s), builds the revision-appropriate
// template, stamps times, assigns (or zeroes) the unique ID, and bumps
// the file/directory count. FID synthesis and insertion into the
// parent directory (step 7) is the Directory Engine's responsibility,
// since it requires the directory's FID stream.
func CreateFileEntry(alloc BlockAllocator, ids UniqueIDSource, counters Counters, p Params) (Result, error) {
	n := uint32(1)
	if p.Strategy4096 {
		n = 2
	}
	block, err := alloc.AllocBlocks(0, n)
	if err != nil {
		return Result{}, err
	}

	icb := ICBTag{
		NumEntries:            1,
		FileType:              p.FileType,
		ParentICBBlock:        p.ParentICBBlock,
		ParentICBPartitionRef: p.ParentICBPartitionRef,
	}
	if p.Strategy4096 {
		icb.StrategyType = 4096
	} else {
		icb.StrategyType = 4
	}

	var uniqueID uint64
	if p.IsStream {
		uniqueID = 0
	} else {
		uniqueID = ids.NextUniqueID()
	}

	if p.FileType == FileTypeDirectory || p.FileType == FileTypeStreamDir {
		counters.BumpDirCount()
	} else {
		counters.BumpFileCount()
	}

	result := Result{Block: block, Blocks: n}
	if p.UseEFE {
		result.EFE = &ExtendedFileEntry{
			Tag:                 tagAt(block),
			ICBTag:              icb,
			AccessTime:          p.Now,
			ModificationTime:    p.Now,
			CreateTime:          p.Now,
			AttributeTime:       p.Now,
			Checkpoint:          1,
			ImplementationIdent: p.ImplementationIdent,
			UniqueID:            uniqueID,
		}
	} else {
		result.FE = &FileEntry{
			Tag:                 tagAt(block),
			ICBTag:              icb,
			AccessTime:          p.Now,
			ModificationTime:    p.Now,
			AttributeTime:       p.Now,
			Checkpoint:          1,
			ImplementationIdent: p.ImplementationIdent,
			UniqueID:            uniqueID,
		}
	}
	return result, nil
}

func tagAt(block uint32) tag.Tag {
	return tag.Tag{SerialNumber: 1, TagLocation: block}
}

// SelectADKind chooses the allocation-descriptor kind for a file's
// content given its size, the FE/EFE header overhead already
// consumed, and whether the content lives in the same partition as the
// ICB (spec.md §4.G "Allocation-descriptor kind selection").
func SelectADKind(contentLength uint64, headerOverhead int, blockSize int, samePartition bool) uint8 {
	if int(contentLength) <= blockSize-headerOverhead {
		return ADKindEmbedded
	}
	if samePartition {
		return ADKindShort
	}
	return ADKindLong
}

// GrowFromEmbedded converts an IN_ICB file whose content no longer
// fits into a SHORT- or LONG-addressed file: the caller has already
// allocated new extents and copied the embedded bytes out; this
// returns the ICB tag with its AD kind updated and does not touch the
// File Entry's embedded payload.
func GrowFromEmbedded(icb ICBTag, samePartition bool) ICBTag {
	if samePartition {
		return icb.WithADKind(ADKindShort)
	}
	return icb.WithADKind(ADKindLong)
}
