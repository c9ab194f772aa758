package fileentry

import (
	"encoding/binary"
	"fmt"

	"github.com/go-udf/udfkit/internal/udferr"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// ExtendedFileEntry is the ECMA-167 4/14.17 Extended File Entry (UDF
// >= 2.00), adding object size, create time, and a stream directory
// ICB over the plain File Entry.
type ExtendedFileEntry struct {
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
	ObjectSize            uint64
	LogicalBlocksRecorded uint64
	AccessTime            primitive.Timestamp
	ModificationTime      primitive.Timestamp
	CreateTime            primitive.Timestamp
	AttributeTime         primitive.Timestamp
	Checkpoint            uint32
	ExtendedAttrICB       primitive.LongAD
	StreamDirectoryICB    primitive.LongAD
	ImplementationIdent   primitive.Regid
	UniqueID              uint64
	ExtendedAttr          []byte
	AllocDescs            []byte
}

// efeFixedSize is the EFE payload size excluding tag and variable
// areas (200 bytes; 216 total with tag, matching ECMA-167 4/14.17).
const efeFixedSize = ICBTagSize + 4 + 4 + 4 + 2 + 1 + 1 + 4 + 8 + 8 + 8 + 12 + 12 + 12 + 12 + 4 + 4 + primitive.LongADSize + primitive.LongADSize + primitive.RegidSize + 8 + 4 + 4

// Marshal serializes an Extended File Entry to its on-disc form.
func (f ExtendedFileEntry) Marshal() ([]byte, error) {
	payload := make([]byte, efeFixedSize+len(f.ExtendedAttr)+len(f.AllocDescs))
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
	binary.LittleEndian.PutUint64(payload[o:o+8], f.ObjectSize)
	o += 8
	binary.LittleEndian.PutUint64(payload[o:o+8], f.LogicalBlocksRecorded)
	o += 8
	o += marshalTimestamp(payload[o:o+12], f.AccessTime)
	o += marshalTimestamp(payload[o:o+12], f.ModificationTime)
	o += marshalTimestamp(payload[o:o+12], f.CreateTime)
	o += marshalTimestamp(payload[o:o+12], f.AttributeTime)
	binary.LittleEndian.PutUint32(payload[o:o+4], f.Checkpoint)
	o += 4
	o += 4 // reserved
	longad := f.ExtendedAttrICB.Marshal()
	copy(payload[o:o+primitive.LongADSize], longad[:])
	o += primitive.LongADSize
	streamad := f.StreamDirectoryICB.Marshal()
	copy(payload[o:o+primitive.LongADSize], streamad[:])
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

	built := tag.Build(tag.IdentEFE, f.Tag.SerialNumber, f.Tag.TagLocation, payload)
	raw := built.Marshal()
	out := make([]byte, tag.Size+len(payload))
	copy(out, raw[:])
	copy(out[tag.Size:], payload)
	return out, nil
}

// UnmarshalEFE parses an Extended File Entry from a tag-prefixed buffer.
func UnmarshalEFE(b []byte, block uint32) (ExtendedFileEntry, error) {
	if len(b) < tag.Size+efeFixedSize {
		return ExtendedFileEntry{}, fmt.Errorf("fileentry: buffer too short for EFE")
	}
	var rawTag [tag.Size]byte
	copy(rawTag[:], b[:tag.Size])
	payload := b[tag.Size:]

	o := 0
	var icb [ICBTagSize]byte
	copy(icb[:], payload[o:o+ICBTagSize])
	f := ExtendedFileEntry{ICBTag: unmarshalICBTag(icb)}
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
	f.ObjectSize = binary.LittleEndian.Uint64(payload[o : o+8])
	o += 8
	f.LogicalBlocksRecorded = binary.LittleEndian.Uint64(payload[o : o+8])
	o += 8
	f.AccessTime = unmarshalTimestamp(payload[o : o+12])
	o += 12
	f.ModificationTime = unmarshalTimestamp(payload[o : o+12])
	o += 12
	f.CreateTime = unmarshalTimestamp(payload[o : o+12])
	o += 12
	f.AttributeTime = unmarshalTimestamp(payload[o : o+12])
	o += 12
	f.Checkpoint = binary.LittleEndian.Uint32(payload[o : o+4])
	o += 4
	o += 4 // reserved
	var longad [primitive.LongADSize]byte
	copy(longad[:], payload[o:o+primitive.LongADSize])
	f.ExtendedAttrICB = primitive.UnmarshalLongAD(longad)
	o += primitive.LongADSize
	copy(longad[:], payload[o:o+primitive.LongADSize])
	f.StreamDirectoryICB = primitive.UnmarshalLongAD(longad)
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
		return f, fmt.Errorf("fileentry: EFE variable area truncated")
	}
	f.ExtendedAttr = append([]byte(nil), payload[o:o+int(lenEA)]...)
	o += int(lenEA)
	f.AllocDescs = append([]byte(nil), payload[o:o+int(lenAD)]...)

	verified, ok := tag.Verify(rawTag, payload[:efeFixedSize+int(lenEA)+int(lenAD)], tag.IdentEFE, block)
	if !ok {
		return f, udferr.NewAt(udferr.TagInvalid, "UnmarshalEFE", block, fmt.Errorf("tag verification failed"))
	}
	f.Tag = verified
	return f, nil
}
