// Package maintenance implements the Maintenance Engine: path
// resolution and the file/directory commands a maintenance shell
// drives against an open volume — cp, rm, mkdir, rmdir, ls, cd, plus
// the supplemented ln and mv (spec.md §4.J).
//
// The engine targets rewritable media: Rmdir/Rm/RmRecursive always
// free reclaimed blocks back to the Space Manager rather than route
// through a VAT unmapper, matching the allocator Volume.Allocator
// returns for non-append-only media. Directories are always persisted
// as a single dedicated extent (never embedded, mirroring the Volume
// Builder's root directory convention) and are capped at one block's
// worth of FID content; growing a directory past that is reported as
// an error rather than silently truncated.
package maintenance

import (
	"fmt"

	"github.com/go-udf/udfkit/pkg/blockio"
	"github.com/go-udf/udfkit/pkg/directory"
	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/fileentry"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/space"
	"github.com/go-udf/udfkit/pkg/tag"
	"github.com/go-udf/udfkit/pkg/volume"
)

// Counters is the union of what fileentry.CreateFileEntry (create) and
// directory.Directory.Delete (delete) each need from the LVID's
// per-partition file/directory counts.
type Counters interface {
	fileentry.Counters
	directory.Counters
}

// Engine holds an open volume's live state — the device, allocator,
// unique-ID source, counters, and the current-directory cursor — that
// the maintenance shell's commands operate against.
type Engine struct {
	dev       *blockio.Device
	alloc     space.Allocator
	ids       fileentry.UniqueIDSource
	counts    Counters
	codec     udfenc.Codec
	clock     volume.Clock
	partStart uint32
	partNum   uint16
	implIdent primitive.Regid
	blockSize int

	root   *directory.Directory
	rootFE *fileentry.FileEntry

	cwd     *directory.Directory
	cwdFE   *fileentry.FileEntry
	cwdPath string
}

// New wraps an open *volume.Volume for the maintenance shell, starting
// the current directory at the volume root.
func New(vol *volume.Volume) *Engine {
	e := &Engine{
		dev:       vol.Device(),
		alloc:     vol.Allocator(),
		ids:       vol.UniqueIDs(),
		counts:    vol.Counters(),
		codec:     vol.Codec(),
		clock:     vol.VolumeClock(),
		partStart: vol.PartitionStart(),
		partNum:   vol.PartitionNumber(),
		implIdent: vol.ImplementationIdent(),
		blockSize: vol.BlockSize(),
		root:      vol.RootDirectory(),
		rootFE:    vol.RootFileEntry(),
	}
	e.cwd = e.root
	e.cwdFE = e.rootFE
	e.cwdPath = "/"
	return e
}

// Cwd returns the current working directory's display path, as left
// by the most recent successful Cd.
func (e *Engine) Cwd() string { return e.cwdPath }

// Root returns the volume's root directory.
func (e *Engine) Root() *directory.Directory { return e.root }

// readFileEntry loads the File Entry at the given partition-relative
// block.
func (e *Engine) readFileEntry(block uint32) (*fileentry.FileEntry, error) {
	buf, err := e.dev.ReadBlock(e.partStart+block, blockio.AbsolutePartition)
	if err != nil {
		return nil, fmt.Errorf("maintenance: reading file entry at %d: %w", block, err)
	}
	fe, _, err := fileentry.UnmarshalFE(buf, block)
	if err != nil {
		return nil, fmt.Errorf("maintenance: unmarshaling file entry at %d: %w", block, err)
	}
	return &fe, nil
}

// writeFileEntry marshals and writes fe at its own ICB block.
func (e *Engine) writeFileEntry(block uint32, fe *fileentry.FileEntry) error {
	buf, err := fe.Marshal()
	if err != nil {
		return fmt.Errorf("maintenance: marshaling file entry at %d: %w", block, err)
	}
	if err := e.dev.WriteBlock(e.partStart+block, blockio.AbsolutePartition, padBlock(buf, e.blockSize)); err != nil {
		return fmt.Errorf("maintenance: writing file entry at %d: %w", block, err)
	}
	return nil
}

// readDirectory loads a directory's FID stream from its File Entry's
// single content extent.
func (e *Engine) readDirectory(fe *fileentry.FileEntry) (*directory.Directory, error) {
	extents := fe.DataExtents()
	if len(extents) == 0 {
		return directory.New(fe.Tag.TagLocation, nil), nil
	}
	block := extents[0].Block
	buf, err := e.dev.ReadBlock(e.partStart+block, blockio.AbsolutePartition)
	if err != nil {
		return nil, fmt.Errorf("maintenance: reading directory content at %d: %w", block, err)
	}

	var fids []directory.FID
	for off := 0; off < int(fe.InformationLength) && off < len(buf); {
		fid, rest, ferr := directory.UnmarshalFID(buf[off:], block)
		if ferr != nil {
			break
		}
		fids = append(fids, fid)
		off = len(buf) - len(rest)
	}
	return directory.New(fe.Tag.TagLocation, fids), nil
}

// persistDirectoryContent re-marshals dir's FID stream, writes it to
// contentBlock, and updates fe's allocation fields (InformationLength,
// LogicalBlocksRecorded, AllocDescs) and the FE itself to match —
// called after every Insert/Remove/Delete so the on-disc content and
// its File Entry never disagree about the extent's length.
func (e *Engine) persistDirectoryContent(fe *fileentry.FileEntry, dir *directory.Directory, contentBlock uint32) error {
	content, err := dir.RestampTagLocations(contentBlock, 1)
	if err != nil {
		return fmt.Errorf("maintenance: marshaling directory content: %w", err)
	}
	if len(content) > e.blockSize {
		return fmt.Errorf("maintenance: directory content %d bytes exceeds one block (%d); this implementation does not grow a directory across multiple extents", len(content), e.blockSize)
	}
	if err := e.dev.WriteBlock(e.partStart+contentBlock, blockio.AbsolutePartition, padBlock(content, e.blockSize)); err != nil {
		return fmt.Errorf("maintenance: writing directory content: %w", err)
	}
	fe.InformationLength = uint64(len(content))
	fe.LogicalBlocksRecorded = 1
	fe.ICBTag = fe.ICBTag.WithADKind(fileentry.ADKindShort)
	fe.AllocDescs = fileentry.EncodeShortADs([]primitive.ShortAD{
		{Length: uint32(len(content)), Type: primitive.ExtentRecordedAllocated, Block: contentBlock},
	})
	dir.Dirty = false
	return e.writeFileEntry(fe.Tag.TagLocation, fe)
}

// readFileContent returns a regular file's full content, whichever
// allocation-descriptor kind its File Entry uses.
func (e *Engine) readFileContent(fe *fileentry.FileEntry) ([]byte, error) {
	if fe.ICBTag.ADKind() == fileentry.ADKindEmbedded {
		n := int(fe.InformationLength)
		if n > len(fe.AllocDescs) {
			n = len(fe.AllocDescs)
		}
		return append([]byte(nil), fe.AllocDescs[:n]...), nil
	}

	var out []byte
	for _, ad := range fe.DataExtents() {
		n := blocksFor(ad.Length, e.blockSize)
		for i := uint32(0); i < n; i++ {
			buf, err := e.dev.ReadBlock(e.partStart+ad.Block+i, blockio.AbsolutePartition)
			if err != nil {
				return nil, fmt.Errorf("maintenance: reading content block: %w", err)
			}
			out = append(out, buf...)
		}
	}
	if uint64(len(out)) > fe.InformationLength {
		out = out[:fe.InformationLength]
	}
	return out, nil
}

// writeFileContent stamps fe's allocation-descriptor kind and content
// extent for content, embedding it in the FE itself when it's small
// enough (spec.md §4.G "Allocation-descriptor kind selection") or
// allocating and writing a short_ad extent otherwise.
func (e *Engine) writeFileContent(fe *fileentry.FileEntry, content []byte) error {
	headerOverhead := tag.Size + fileentry.FEFixedSize
	kind := fileentry.SelectADKind(uint64(len(content)), headerOverhead, e.blockSize, true)
	fe.InformationLength = uint64(len(content))
	fe.ICBTag = fe.ICBTag.WithADKind(kind)

	if kind == fileentry.ADKindEmbedded {
		fe.AllocDescs = append([]byte(nil), content...)
		fe.LogicalBlocksRecorded = 0
		return e.writeFileEntry(fe.Tag.TagLocation, fe)
	}

	n := blocksFor(uint32(len(content)), e.blockSize)
	if n == 0 {
		n = 1
	}
	block, err := e.alloc.AllocBlocks(0, n)
	if err != nil {
		return fmt.Errorf("allocating content extent: %w", err)
	}
	for i := uint32(0); i < n; i++ {
		chunk := make([]byte, e.blockSize)
		start := int(i) * e.blockSize
		end := start + e.blockSize
		if end > len(content) {
			end = len(content)
		}
		if start < len(content) {
			copy(chunk, content[start:end])
		}
		if err := e.dev.WriteBlock(e.partStart+block+i, blockio.AbsolutePartition, chunk); err != nil {
			return fmt.Errorf("writing content block %d: %w", i, err)
		}
	}
	fe.LogicalBlocksRecorded = uint64(n)
	fe.AllocDescs = fileentry.EncodeShortADs([]primitive.ShortAD{
		{Length: uint32(len(content)), Type: primitive.ExtentRecordedAllocated, Block: block},
	})
	return e.writeFileEntry(fe.Tag.TagLocation, fe)
}

func blocksFor(lengthBytes uint32, blockSize int) uint32 {
	if lengthBytes == 0 {
		return 0
	}
	return (lengthBytes + uint32(blockSize) - 1) / uint32(blockSize)
}

func padBlock(b []byte, blockSize int) []byte {
	if len(b) == blockSize {
		return b
	}
	if len(b) > blockSize {
		return b[:blockSize]
	}
	out := make([]byte, blockSize)
	copy(out, b)
	return out
}
