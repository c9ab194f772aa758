// Package directory implements the Directory Engine: the in-memory
// FID stream, find/insert/remove/delete operations, and the embedded-
// or-extent persistence decision for a directory's File Entry
// (spec.md §4.H).
package directory

import (
	"encoding/binary"
	"fmt"

	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// File characteristics bits (ECMA-167 4/14.4.3).
const (
	CharHidden    = 1 << 0
	CharDirectory = 1 << 1
	CharDeleted   = 1 << 2
	CharParent    = 1 << 3
	CharMetadata  = 1 << 4
)

// fidFixedSize is the FID header preceding the variable impl-use and
// file-identifier areas: tag(16) + version(2) + characteristics(1) +
// lengthFileIdent(1) + ICB longad(16) + lengthOfImplUse(2).
const fidFixedSize = tag.Size + 2 + 1 + 1 + primitive.LongADSize + 2

// FID is the ECMA-167 4/14.4 File Identifier Descriptor.
type FID struct {
	Tag                 tag.Tag
	FileVersionNumber   uint16
	FileCharacteristics uint8
	ICB                 primitive.LongAD
	ImplUse             []byte
	FileIdent           []byte // OSTA CS0 dchars, empty for the parent entry
}

// PaddedLength is the FID's on-disc footprint, rounded up to a 4-byte
// boundary (spec.md §4.H "Padding").
func (f FID) PaddedLength() int {
	raw := fidFixedSize + len(f.ImplUse) + len(f.FileIdent)
	return (raw + 3) &^ 3
}

// IsParent reports whether this FID is a directory's self-referencing
// parent entry (always the first FID, always has an empty name).
func (f FID) IsParent() bool {
	return f.FileCharacteristics&CharParent != 0
}

// IsDeleted reports whether the DELETED characteristic is set.
func (f FID) IsDeleted() bool {
	return f.FileCharacteristics&CharDeleted != 0
}

// Marshal serializes the FID to its padded on-disc form, with a freshly
// stamped tag for the given tag location.
func (f FID) Marshal() ([]byte, error) {
	if len(f.ImplUse)%4 != 0 {
		return nil, fmt.Errorf("directory: FID impl-use length %d not a multiple of 4", len(f.ImplUse))
	}
	padded := f.PaddedLength()
	body := make([]byte, padded-tag.Size)
	o := 0
	binary.LittleEndian.PutUint16(body[o:o+2], f.FileVersionNumber)
	o += 2
	body[o] = f.FileCharacteristics
	o++
	body[o] = uint8(len(f.FileIdent))
	o++
	icb := f.ICB.Marshal()
	copy(body[o:o+primitive.LongADSize], icb[:])
	o += primitive.LongADSize
	binary.LittleEndian.PutUint16(body[o:o+2], uint16(len(f.ImplUse)))
	o += 2
	o += copy(body[o:], f.ImplUse)
	copy(body[o:], f.FileIdent)

	built := tag.Build(tag.IdentFID, f.Tag.SerialNumber, f.Tag.TagLocation, body)
	raw := built.Marshal()
	out := make([]byte, padded)
	copy(out, raw[:])
	copy(out[tag.Size:], body)
	return out, nil
}

// UnmarshalFID parses one padded FID starting at the head of b, and
// returns the remaining bytes after it.
func UnmarshalFID(b []byte, block uint32) (FID, []byte, error) {
	if len(b) < fidFixedSize {
		return FID{}, nil, fmt.Errorf("directory: buffer too short for FID header")
	}
	var rawTag [tag.Size]byte
	copy(rawTag[:], b[:tag.Size])
	body := b[tag.Size:]

	o := 0
	f := FID{}
	f.FileVersionNumber = binary.LittleEndian.Uint16(body[o : o+2])
	o += 2
	f.FileCharacteristics = body[o]
	o++
	lengthFileIdent := int(body[o])
	o++
	var icb [primitive.LongADSize]byte
	copy(icb[:], body[o:o+primitive.LongADSize])
	f.ICB = primitive.UnmarshalLongAD(icb)
	o += primitive.LongADSize
	lengthImplUse := int(binary.LittleEndian.Uint16(body[o : o+2]))
	o += 2

	if len(body) < o+lengthImplUse+lengthFileIdent {
		return FID{}, nil, fmt.Errorf("directory: FID variable area truncated")
	}
	f.ImplUse = append([]byte(nil), body[o:o+lengthImplUse]...)
	o += lengthImplUse
	f.FileIdent = append([]byte(nil), body[o:o+lengthFileIdent]...)

	paddedBodyLen := (2 + 1 + 1 + primitive.LongADSize + 2 + lengthImplUse + lengthFileIdent + 3) &^ 3
	if len(body) < paddedBodyLen {
		return FID{}, nil, fmt.Errorf("directory: FID padded length exceeds buffer")
	}

	verified, ok := tag.Verify(rawTag, body[:paddedBodyLen], tag.IdentFID, block)
	if !ok {
		return FID{}, nil, fmt.Errorf("directory: FID tag verification failed")
	}
	f.Tag = verified

	return f, b[tag.Size+paddedBodyLen:], nil
}
