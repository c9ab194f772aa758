package descriptor

import (
	"encoding/binary"
	"fmt"

	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// FSDPayloadSize is the payload size (after the tag) of a File Set
// Descriptor (ECMA-167 4/14.1).
const FSDPayloadSize = 480

// FileSetDescriptor (tag identifier FSD) is the root of a logical
// volume's file set: it locates the root directory's ICB.
type FileSetDescriptor struct {
	Tag                      tag.Tag
	RecordingDateAndTime     primitive.Timestamp
	InterchangeLevel         uint16
	MaxInterchangeLevel      uint16
	CharSetList              uint32
	MaxCharSetList           uint32
	FileSetNum               uint32
	FileSetDescNum           uint32
	LogicalVolIdentCharSet   CharSpec
	LogicalVolIdent          string // dstring, 128
	FileSetCharSet           CharSpec
	FileSetIdent             string // dstring, 32
	CopyrightFileIdent       string // dstring, 32
	AbstractFileIdent        string // dstring, 32
	RootDirectoryICB         primitive.LongAD
	DomainIdent              primitive.Regid
	NextExtent               primitive.LongAD
	SystemStreamDirectoryICB primitive.LongAD
}

// Marshal serializes the FSD payload (after the tag).
func (f FileSetDescriptor) Marshal(codec udfenc.Codec) ([]byte, error) {
	b := make([]byte, FSDPayloadSize)
	o := 0

	rdt := f.RecordingDateAndTime.Marshal()
	copy(b[o:o+12], rdt[:])
	o += 12
	binary.LittleEndian.PutUint16(b[o:o+2], f.InterchangeLevel)
	o += 2
	binary.LittleEndian.PutUint16(b[o:o+2], f.MaxInterchangeLevel)
	o += 2
	binary.LittleEndian.PutUint32(b[o:o+4], f.CharSetList)
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], f.MaxCharSetList)
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], f.FileSetNum)
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], f.FileSetDescNum)
	o += 4

	lvcs := f.LogicalVolIdentCharSet.Marshal()
	copy(b[o:o+CharSpecSize], lvcs[:])
	o += CharSpecSize

	logID, err := udfenc.Dstring(codec, f.LogicalVolIdent, 128)
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal FSD logicalVolIdent: %w", err)
	}
	copy(b[o:o+128], logID)
	o += 128

	fcs := f.FileSetCharSet.Marshal()
	copy(b[o:o+CharSpecSize], fcs[:])
	o += CharSpecSize

	for _, s := range []string{f.FileSetIdent, f.CopyrightFileIdent, f.AbstractFileIdent} {
		field, err := udfenc.Dstring(codec, s, 32)
		if err != nil {
			return nil, fmt.Errorf("descriptor: marshal FSD ident field: %w", err)
		}
		copy(b[o:o+32], field)
		o += 32
	}

	rd := f.RootDirectoryICB.Marshal()
	copy(b[o:o+primitive.LongADSize], rd[:])
	o += primitive.LongADSize

	domID, err := f.DomainIdent.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal FSD domainIdent: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], domID[:])
	o += primitive.RegidSize

	ne := f.NextExtent.Marshal()
	copy(b[o:o+primitive.LongADSize], ne[:])
	o += primitive.LongADSize

	ss := f.SystemStreamDirectoryICB.Marshal()
	copy(b[o:o+primitive.LongADSize], ss[:])

	return b, nil
}

// WithTag returns a copy of f with a freshly built tag over its
// marshaled payload.
func (f FileSetDescriptor) WithTag(codec udfenc.Codec, serial uint16, block uint32) (FileSetDescriptor, error) {
	payload, err := f.Marshal(codec)
	if err != nil {
		return f, err
	}
	f.Tag = tag.Build(tag.IdentFSD, serial, block, payload)
	return f, nil
}

// UnmarshalFSD parses an FSD payload (not including the tag).
func UnmarshalFSD(codec udfenc.Codec, b []byte) (FileSetDescriptor, error) {
	if len(b) < FSDPayloadSize {
		return FileSetDescriptor{}, fmt.Errorf("descriptor: FSD payload too short: %d", len(b))
	}
	var f FileSetDescriptor
	o := 0
	var rdt [12]byte
	copy(rdt[:], b[o:o+12])
	f.RecordingDateAndTime = primitive.UnmarshalTimestamp(rdt)
	o += 12
	f.InterchangeLevel = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	f.MaxInterchangeLevel = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	f.CharSetList = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	f.MaxCharSetList = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	f.FileSetNum = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	f.FileSetDescNum = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	var lvcs [CharSpecSize]byte
	copy(lvcs[:], b[o:o+CharSpecSize])
	f.LogicalVolIdentCharSet = UnmarshalCharSpec(lvcs)
	o += CharSpecSize

	logID, err := udfenc.DecodeDstring(codec, b[o:o+128])
	if err != nil {
		return f, fmt.Errorf("descriptor: unmarshal FSD logicalVolIdent: %w", err)
	}
	f.LogicalVolIdent = logID
	o += 128

	var fcs [CharSpecSize]byte
	copy(fcs[:], b[o:o+CharSpecSize])
	f.FileSetCharSet = UnmarshalCharSpec(fcs)
	o += CharSpecSize

	idents := make([]string, 3)
	for i := range idents {
		s, err := udfenc.DecodeDstring(codec, b[o:o+32])
		if err != nil {
			return f, fmt.Errorf("descriptor: unmarshal FSD ident field: %w", err)
		}
		idents[i] = s
		o += 32
	}
	f.FileSetIdent, f.CopyrightFileIdent, f.AbstractFileIdent = idents[0], idents[1], idents[2]

	var rd [primitive.LongADSize]byte
	copy(rd[:], b[o:o+primitive.LongADSize])
	f.RootDirectoryICB = primitive.UnmarshalLongAD(rd)
	o += primitive.LongADSize

	var domID [primitive.RegidSize]byte
	copy(domID[:], b[o:o+primitive.RegidSize])
	f.DomainIdent = primitive.UnmarshalRegid(domID)
	o += primitive.RegidSize

	var ne [primitive.LongADSize]byte
	copy(ne[:], b[o:o+primitive.LongADSize])
	f.NextExtent = primitive.UnmarshalLongAD(ne)
	o += primitive.LongADSize

	var ss [primitive.LongADSize]byte
	copy(ss[:], b[o:o+primitive.LongADSize])
	f.SystemStreamDirectoryICB = primitive.UnmarshalLongAD(ss)

	return f, nil
}
