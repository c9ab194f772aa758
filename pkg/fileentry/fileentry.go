// Package fileentry implements the File Entry Engine: construction,
// allocation-descriptor kind selection, and unique ID assignment for
// File Entries (FE) and Extended File Entries (EFE) (spec.md §4.G).
package fileentry

import (
	"encoding/binary"
	"fmt"

	"github.com/go-udf/udfkit/internal/udferr"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// AD kind, packed into the low 3 bits of the ICB tag's flags field
// (spec.md "Core entities" FE/EFE).
const (
	ADKindEmbedded = 0 // IN_ICB
	ADKindShort    = 1
	ADKindLong     = 2
	ADKindExtended = 3
)

// File types carried in the ICB tag (ECMA-167 4/14.6.6).
const (
	FileTypeUnspecified = 0
	FileTypeDirectory   = 4
	FileTypeRegular     = 5
	FileTypeBlockDevice = 6
	FileTypeCharDevice  = 7
	FileTypeExtAttr     = 8
	FileTypeFIFO        = 9
	FileTypeSocket      = 10
	FileTypeSymlink     = 12
	FileTypeStreamDir   = 13
	FileTypeVAT20       = 248
)

// ICBTagSize is the fixed 20-byte ICB tag at the head of every FE/EFE.
const ICBTagSize = 20

// ICBTag is the ECMA-167 4/14.6 ICB tag.
type ICBTag struct {
	PriorRecordedNumDirectEntries uint32
	StrategyType                  uint16
	StrategyParameter             uint16
	NumEntries                    uint16
	FileType                      uint8
	ParentICBBlock                uint32
	ParentICBPartitionRef         uint16
	Flags                         uint16
}

// ADKind extracts the allocation-descriptor kind from the flags' low
// 3 bits.
func (t ICBTag) ADKind() uint8 {
	return uint8(t.Flags & 0x7)
}

// WithADKind returns a copy of t with its AD kind bits set.
func (t ICBTag) WithADKind(kind uint8) ICBTag {
	t.Flags = (t.Flags &^ 0x7) | uint16(kind&0x7)
	return t
}

func (t ICBTag) marshal() [ICBTagSize]byte {
	var b [ICBTagSize]byte
	binary.LittleEndian.PutUint32(b[0:4], t.PriorRecordedNumDirectEntries)
	binary.LittleEndian.PutUint16(b[4:6], t.StrategyType)
	binary.LittleEndian.PutUint16(b[6:8], t.StrategyParameter)
	binary.LittleEndian.PutUint16(b[8:10], t.NumEntries)
	b[11] = t.FileType
	binary.LittleEndian.PutUint32(b[12:16], t.ParentICBBlock)
	binary.LittleEndian.PutUint16(b[16:18], t.ParentICBPartitionRef)
	binary.LittleEndian.PutUint16(b[18:20], t.Flags)
	return b
}

func unmarshalICBTag(b [ICBTagSize]byte) ICBTag {
	return ICBTag{
		PriorRecordedNumDirectEntries: binary.LittleEndian.Uint32(b[0:4]),
		StrategyType:                  binary.LittleEndian.Uint16(b[4:6]),
		StrategyParameter:             binary.LittleEndian.Uint16(b[6:8]),
		NumEntries:                    binary.LittleEndian.Uint16(b[8:10]),
		FileType:                      b[11],
		ParentICBBlock:                binary.LittleEndian.Uint32(b[12:16]),
		ParentICBPartitionRef:         binary.LittleEndian.Uint16(b[16:18]),
		Flags:                         binary.LittleEndian.Uint16(b[18:20]),
	}
}

// FileEntry is the ECMA-167 4/14.9 File Entry (UDF < 2.00), or the
// common attribute set shared with ExtendedFileEntry for UDF >= 2.00.
type FileEntry struct {
	Tag                   tag.Tag
	ICBTag                ICBTag
	UID                   uint32
	GID                   uint32
	Permissions           uint32
	FileLinkCount         uint16
	RecordFormat          uint8
	RecordDisplayAttr     uint8
	RecordLength          uint32
	InformationLength     uint64
	LogicalBlocksRecorded uint64
	AccessTime            primitive.Timestamp
	ModificationTime      primitive.Timestamp
	AttributeTime         primitive.Timestamp
	Checkpoint            uint32
	ExtendedAttrICB       primitive.LongAD
	ImplementationIdent   primitive.Regid
	UniqueID              uint64
	ExtendedAttr          []byte
	AllocDescs            []byte
}

// feFixedSize is the FE payload size excluding the descriptor tag and
// the variable extended-attribute/alloc-descriptor areas (160 bytes;
// 176 total with tag, matching ECMA-167 4/14.9).
const feFixedSize = ICBTagSize + 4 + 4 + 4 + 2 + 1 + 1 + 4 + 8 + 8 + 12 + 12 + 12 + 4 + primitive.LongADSize + primitive.RegidSize + 8 + 4 + 4

// FEFixedSize exports feFixedSize for callers outside the package (the
// Maintenance Engine) that need the header overhead SelectADKind takes
// to decide whether a new file's content fits embedded.
const FEFixedSize = feFixedSize

// Marshal serializes a File Entry to its on-disc form, including the
// descriptor tag with a freshly computed CRC.
func (f FileEntry) Marshal() ([]byte, error) {
	payload := make([]byte, feFixedSize+len(f.ExtendedAttr)+len(f.AllocDescs))
	o := 0
	icb := f.ICBTag.marshal()
	copy(payload[o:o+ICBTagSize], icb[:])
	o += ICBTagSize
	binary.LittleEndian.PutUint32(payload[o:o+4], f.UID)
	o += 4
	binary.LittleEndian.PutUint32(payload[o:o+4], f.GID)
	o += 4
	binary.LittleEndian.PutUint32(payload[o:o+4], f.Permissions)
	o += 4
	binary.LittleEndian.PutUint16(payload[o:o+2], f.FileLinkCount)
	o += 2
	payload[o] = f.RecordFormat
	o++
	payload[o] = f.RecordDisplayAttr
	o++
	binary.LittleEndian.PutUint32(payload[o:o+4], f.RecordLength)
	o += 4
	binary.LittleEndian.PutUint64(payload[o:o+8], f.InformationLength)
	o += 8
	binary.LittleEndian.PutUint64(payload[o:o+8], f.LogicalBlocksRecorded)
	o += 8
	o += marshalTimestamp(payload[o:o+12], f.AccessTime)
	o += marshalTimestamp(payload[o:o+12], f.ModificationTime)
	o += marshalTimestamp(payload[o:o+12], f.AttributeTime)
	binary.LittleEndian.PutUint32(payload[o:o+4], f.Checkpoint)
	o += 4
	longad := f.ExtendedAttrICB.Marshal()
	copy(payload[o:o+primitive.LongADSize], longad[:])
	o += primitive.LongADSize
	regid, err := f.ImplementationIdent.Marshal()
	if err != nil {
		return nil, fmt.Errorf("fileentry: marshal implementation ident: %w", err)
	}
	copy(payload[o:o+primitive.RegidSize], regid[:])
	o += primitive.RegidSize
	binary.LittleEndian.PutUint64(payload[o:o+8], f.UniqueID)
	o += 8
	binary.LittleEndian.PutUint32(payload[o:o+4], uint32(len(f.ExtendedAttr)))
	o += 4
	binary.LittleEndian.PutUint32(payload[o:o+4], uint32(len(f.AllocDescs)))
	o += 4
	o += copy(payload[o:], f.ExtendedAttr)
	copy(payload[o:], f.AllocDescs)

	built := tag.Build(tag.IdentFE, f.Tag.SerialNumber, f.Tag.TagLocation, payload)
	raw := built.Marshal()
	out := make([]byte, tag.Size+len(payload))
	copy(out, raw[:])
	copy(out[tag.Size:], payload)
	return out, nil
}

func marshalTimestamp(dst []byte, ts primitive.Timestamp) int {
	b := ts.Marshal()
	copy(dst, b[:])
	return len(b)
}

func unmarshalTimestamp(b []byte) primitive.Timestamp {
	var raw [12]byte
	copy(raw[:], b)
	return primitive.UnmarshalTimestamp(raw)
}

// UnmarshalFE parses a File Entry from a tag-prefixed buffer, verifying
// its descriptor tag against the expected block.
func UnmarshalFE(b []byte, block uint32) (FileEntry, []byte, error) {
	if len(b) < tag.Size+feFixedSize {
		return FileEntry{}, nil, fmt.Errorf("fileentry: buffer too short for FE")
	}
	var rawTag [tag.Size]byte
	copy(rawTag[:], b[:tag.Size])
	payload := b[tag.Size:]

	o := 0
	var icb [ICBTagSize]byte
	copy(icb[:], payload[o:o+ICBTagSize])
	f := FileEntry{ICBTag: unmarshalICBTag(icb)}
	o += ICBTagSize
	f.UID = binary.LittleEndian.Uint32(payload[o : o+4])
	o += 4
	f.GID = binary.LittleEndian.Uint32(payload[o : o+4])
	o += 4
	f.Permissions = binary.LittleEndian.Uint32(payload[o : o+4])
	o += 4
	f.FileLinkCount = binary.LittleEndian.Uint16(payload[o : o+2])
	o += 2
	f.RecordFormat = payload[o]
	o++
	f.RecordDisplayAttr = payload[o]
	o++
	f.RecordLength = binary.LittleEndian.Uint32(payload[o : o+4])
	o += 4
	f.InformationLength = binary.LittleEndian.Uint64(payload[o : o+8])
	o += 8
	f.LogicalBlocksRecorded = binary.LittleEndian.Uint64(payload[o : o+8])
	o += 8
	f.AccessTime = unmarshalTimestamp(payload[o : o+12])
	o += 12
	f.ModificationTime = unmarshalTimestamp(payload[o : o+12])
	o += 12
	f.AttributeTime = unmarshalTimestamp(payload[o : o+12])
	o += 12
	f.Checkpoint = binary.LittleEndian.Uint32(payload[o : o+4])
	o += 4
	var longad [primitive.LongADSize]byte
	copy(longad[:], payload[o:o+primitive.LongADSize])
	f.ExtendedAttrICB = primitive.UnmarshalLongAD(longad)
	o += primitive.LongADSize
	var regid [primitive.RegidSize]byte
	copy(regid[:], payload[o:o+primitive.RegidSize])
	f.ImplementationIdent = primitive.UnmarshalRegid(regid)
	o += primitive.RegidSize
	f.UniqueID = binary.LittleEndian.Uint64(payload[o : o+8])
	o += 8
	lenEA := binary.LittleEndian.Uint32(payload[o : o+4])
	o += 4
	lenAD := binary.LittleEndian.Uint32(payload[o : o+4])
	o += 4
	if len(payload) < o+int(lenEA)+int(lenAD) {
		return f, nil, fmt.Errorf("fileentry: FE variable area truncated")
	}
	f.ExtendedAttr = append([]byte(nil), payload[o:o+int(lenEA)]...)
	o += int(lenEA)
	f.AllocDescs = append([]byte(nil), payload[o:o+int(lenAD)]...)

	verified, ok := tag.Verify(rawTag, payload[:feFixedSize+int(lenEA)+int(lenAD)], tag.IdentFE, block)
	if !ok {
		return f, nil, udferr.NewAt(udferr.TagInvalid, "UnmarshalFE", block, fmt.Errorf("tag verification failed"))
	}
	f.Tag = verified
	return f, f.AllocDescs, nil
}

// LinkCount returns the File Entry's hard link count, satisfying
// directory.FileEntryRef for Delete.
func (f *FileEntry) LinkCount() uint16 { return f.FileLinkCount }

// SetLinkCount sets the hard link count.
func (f *FileEntry) SetLinkCount(n uint16) { f.FileLinkCount = n }

// DataExtents decodes AllocDescs as a short_ad run, the kind the
// Maintenance Engine uses for same-partition file content (spec.md
// §4.G "Allocation-descriptor kind selection"). Embedded content (AD
// kind IN_ICB) has no extents to free and returns nil.
func (f *FileEntry) DataExtents() []primitive.ShortAD {
	if f.ICBTag.ADKind() != ADKindShort {
		return nil
	}
	return DecodeShortADs(f.AllocDescs)
}

// DecodeShortADs splits a short_ad run into individual descriptors.
func DecodeShortADs(b []byte) []primitive.ShortAD {
	var out []primitive.ShortAD
	for len(b) >= primitive.ShortADSize {
		var raw [primitive.ShortADSize]byte
		copy(raw[:], b[:primitive.ShortADSize])
		out = append(out, primitive.UnmarshalShortAD(raw))
		b = b[primitive.ShortADSize:]
	}
	return out
}

// EncodeShortADs serializes a short_ad run back to its on-disc form.
func EncodeShortADs(ads []primitive.ShortAD) []byte {
	out := make([]byte, 0, len(ads)*primitive.ShortADSize)
	for _, ad := range ads {
		raw := ad.Marshal()
		out = append(out, raw[:]...)
	}
	return out
}
