package directory

import (
	"fmt"

	"github.com/go-udf/udfkit/pkg/primitive"
)

// Directory is the in-memory flattened FID stream for one directory,
// regardless of whether its persisted form is embedded in the FE or
// spread across extents (spec.md §4.H).
type Directory struct {
	FEBlock uint32
	Fids    []FID
	Dirty   bool
}

// New wraps an already-decoded FID stream (e.g. from reading a
// directory's content back from disc).
func New(feBlock uint32, fids []FID) *Directory {
	return &Directory{FEBlock: feBlock, Fids: append([]FID(nil), fids...)}
}

// Find performs the linear scan described in spec.md §4.H: skip FIDs
// with the PARENT characteristic when searching by name, and compare
// name bytes only.
func (d *Directory) Find(name []byte) (FID, int, bool) {
	for i, f := range d.Fids {
		if f.IsParent() {
			continue
		}
		if bytesEqual(f.FileIdent, name) {
			return f, i, true
		}
	}
	return FID{}, -1, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Insert appends fid at the end of the stream and marks the directory
// dirty (spec.md §4.H "insert").
func (d *Directory) Insert(fid FID) {
	d.Fids = append(d.Fids, fid)
	d.Dirty = true
}

// Remove physically removes the FID at index i (spec.md §4.H
// "remove" — the physical removal, distinct from user-visible
// Delete).
func (d *Directory) Remove(i int) error {
	if i < 0 || i >= len(d.Fids) {
		return fmt.Errorf("directory: remove index %d out of range", i)
	}
	d.Fids = append(d.Fids[:i], d.Fids[i+1:]...)
	d.Dirty = true
	return nil
}

// FileEntryRef is the minimal view of a target File Entry the Delete
// operation needs: its current link count and allocation descriptors,
// so it can decrement the count and, on reaching zero, free the FE's
// data extents and ICB block via the Space Manager.
type FileEntryRef interface {
	LinkCount() uint16
	SetLinkCount(uint16)
	DataExtents() []primitive.ShortAD
}

// SpaceFreer returns data extents and an FE block to the Space
// Manager, implemented by pkg/space's allocators.
type SpaceFreer interface {
	FreeBlocks(lbn uint32, n uint32) error
}

// Counters decrements the LVID IUVD's file/directory counts.
type Counters interface {
	DecrementFileCount()
	DecrementDirCount()
}

// VATUnmapper clears a vbn's mapping for append-only delete, where the
// FE block itself cannot be reclaimed (spec.md §4.H "delete").
type VATUnmapper interface {
	Unmap(vbn uint32)
}

// Delete implements spec.md §4.H "delete": mark the FID deleted,
// decrement the target FE's link count, and on reaching zero free its
// data extents, ICB block (rewritable media only), and decrement the
// LVID counts, then physically remove the FID.
func (d *Directory) Delete(i int, fe FileEntryRef, space SpaceFreer, counters Counters, vat VATUnmapper, isDirectory bool) error {
	if i < 0 || i >= len(d.Fids) {
		return fmt.Errorf("directory: delete index %d out of range", i)
	}
	d.Fids[i].FileCharacteristics |= CharDeleted
	d.Dirty = true

	count := fe.LinkCount()
	if count == 0 {
		return fmt.Errorf("directory: delete of FID with zero link count")
	}
	count--
	fe.SetLinkCount(count)
	if count > 0 {
		return nil
	}

	for _, ad := range fe.DataExtents() {
		if err := space.FreeBlocks(ad.Block, blocksFor(ad.Length)); err != nil {
			return err
		}
	}

	if vat != nil {
		vat.Unmap(d.Fids[i].ICB.Block)
	} else {
		if err := space.FreeBlocks(d.Fids[i].ICB.Block, 1); err != nil {
			return err
		}
	}

	if isDirectory {
		counters.DecrementDirCount()
	} else {
		counters.DecrementFileCount()
	}

	return d.Remove(i)
}

func blocksFor(lengthBytes uint32) uint32 {
	// Extent lengths below 2048 still occupy at least one block; callers
	// needing exact block-size division should pre-convert.
	if lengthBytes == 0 {
		return 0
	}
	return (lengthBytes + 2047) / 2048
}

// EmbeddedFit reports whether the directory's content (the
// concatenation of all FID bytes) fits embedded in the FE, per
// spec.md §4.H step 2.
func (d *Directory) EmbeddedFit(blockSize int, feHeaderSize int, lengthExtendedAttr int) (fits bool, content []byte, err error) {
	content, err = d.marshalAll()
	if err != nil {
		return false, nil, err
	}
	return len(content) <= blockSize-feHeaderSize-lengthExtendedAttr, content, nil
}

func (d *Directory) marshalAll() ([]byte, error) {
	var out []byte
	for _, f := range d.Fids {
		b, err := f.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// RestampTagLocations sets every FID's tag location to block (the
// embedded case, where all FIDs live at the FE's own block) and
// recomputes their tags, returning the re-marshaled content.
func (d *Directory) RestampTagLocations(block uint32, serial uint16) ([]byte, error) {
	var out []byte
	for i := range d.Fids {
		d.Fids[i].Tag.TagLocation = block
		d.Fids[i].Tag.SerialNumber = serial
		b, err := d.Fids[i].Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
