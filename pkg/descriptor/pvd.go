package descriptor

import (
	"encoding/binary"
	"fmt"

	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// PVDPayloadSize is the payload size (after the tag) of a Primary Volume
// Descriptor (ECMA-167 3/10.1).
const PVDPayloadSize = 472

// PrimaryVolumeDescriptor (tag identifier PVD) identifies the volume
// and volume set.
type PrimaryVolumeDescriptor struct {
	Tag                           tag.Tag
	VolDescSeqNum                 uint32
	PrimaryVolDescNum             uint32
	VolIdentifier                 string // dstring, 32 bytes
	VolSeqNum                     uint16
	MaxVolSeqNum                  uint16
	InterchangeLevel              uint16
	MaxInterchangeLevel           uint16
	CharSetList                   uint32
	MaxCharSetList                uint32
	VolSetIdentifier              string // dstring, 128 bytes
	DescCharSet                   CharSpec
	ExplanatoryCharSet            CharSpec
	VolAbstract                   primitive.ExtentAD
	VolCopyrightNotice            primitive.ExtentAD
	ApplicationIdent              primitive.Regid
	RecordingDateAndTime          primitive.Timestamp
	ImplementationIdent           primitive.Regid
	ImplementationUse             [64]byte
	PredecessorVolDescSeqLocation uint32
	Flags                         uint16
}

// Marshal serializes the PVD payload (everything after the tag).
func (p PrimaryVolumeDescriptor) Marshal(codec udfenc.Codec) ([]byte, error) {
	b := make([]byte, PVDPayloadSize)
	o := 0
	binary.LittleEndian.PutUint32(b[o:o+4], p.VolDescSeqNum)
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], p.PrimaryVolDescNum)
	o += 4

	volID, err := udfenc.Dstring(codec, p.VolIdentifier, 32)
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal PVD volIdentifier: %w", err)
	}
	copy(b[o:o+32], volID)
	o += 32

	binary.LittleEndian.PutUint16(b[o:o+2], p.VolSeqNum)
	o += 2
	binary.LittleEndian.PutUint16(b[o:o+2], p.MaxVolSeqNum)
	o += 2
	binary.LittleEndian.PutUint16(b[o:o+2], p.InterchangeLevel)
	o += 2
	binary.LittleEndian.PutUint16(b[o:o+2], p.MaxInterchangeLevel)
	o += 2
	binary.LittleEndian.PutUint32(b[o:o+4], p.CharSetList)
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], p.MaxCharSetList)
	o += 4

	volSetID, err := udfenc.Dstring(codec, p.VolSetIdentifier, 128)
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal PVD volSetIdentifier: %w", err)
	}
	copy(b[o:o+128], volSetID)
	o += 128

	dcs := p.DescCharSet.Marshal()
	copy(b[o:o+CharSpecSize], dcs[:])
	o += CharSpecSize
	ecs := p.ExplanatoryCharSet.Marshal()
	copy(b[o:o+CharSpecSize], ecs[:])
	o += CharSpecSize

	va := p.VolAbstract.Marshal()
	copy(b[o:o+primitive.ExtentADSize], va[:])
	o += primitive.ExtentADSize
	vc := p.VolCopyrightNotice.Marshal()
	copy(b[o:o+primitive.ExtentADSize], vc[:])
	o += primitive.ExtentADSize

	appID, err := p.ApplicationIdent.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal PVD applicationIdent: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], appID[:])
	o += primitive.RegidSize

	rdt := p.RecordingDateAndTime.Marshal()
	copy(b[o:o+primitive.TimestampSize], rdt[:])
	o += primitive.TimestampSize

	implID, err := p.ImplementationIdent.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal PVD implementationIdent: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], implID[:])
	o += primitive.RegidSize

	copy(b[o:o+64], p.ImplementationUse[:])
	o += 64

	binary.LittleEndian.PutUint32(b[o:o+4], p.PredecessorVolDescSeqLocation)
	o += 4
	binary.LittleEndian.PutUint16(b[o:o+2], p.Flags)
	o += 2
	// remaining bytes reserved, left zero

	return b, nil
}

// WithTag returns a copy of p stamped with a fresh tag built over its
// marshaled payload at the given block location and serial number.
func (p PrimaryVolumeDescriptor) WithTag(codec udfenc.Codec, serial uint16, block uint32) (PrimaryVolumeDescriptor, error) {
	payload, err := p.Marshal(codec)
	if err != nil {
		return p, err
	}
	p.Tag = tag.Build(tag.IdentPVD, serial, block, payload)
	return p, nil
}

// UnmarshalPVD parses a PVD payload (not including the tag).
func UnmarshalPVD(codec udfenc.Codec, b []byte) (PrimaryVolumeDescriptor, error) {
	if len(b) < PVDPayloadSize {
		return PrimaryVolumeDescriptor{}, fmt.Errorf("descriptor: PVD payload too short: %d", len(b))
	}
	var p PrimaryVolumeDescriptor
	o := 0
	p.VolDescSeqNum = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	p.PrimaryVolDescNum = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	volID, err := udfenc.DecodeDstring(codec, b[o:o+32])
	if err != nil {
		return p, fmt.Errorf("descriptor: unmarshal PVD volIdentifier: %w", err)
	}
	p.VolIdentifier = volID
	o += 32

	p.VolSeqNum = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	p.MaxVolSeqNum = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	p.InterchangeLevel = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	p.MaxInterchangeLevel = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	p.CharSetList = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	p.MaxCharSetList = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	volSetID, err := udfenc.DecodeDstring(codec, b[o:o+128])
	if err != nil {
		return p, fmt.Errorf("descriptor: unmarshal PVD volSetIdentifier: %w", err)
	}
	p.VolSetIdentifier = volSetID
	o += 128

	var dcs, ecs [CharSpecSize]byte
	copy(dcs[:], b[o:o+CharSpecSize])
	p.DescCharSet = UnmarshalCharSpec(dcs)
	o += CharSpecSize
	copy(ecs[:], b[o:o+CharSpecSize])
	p.ExplanatoryCharSet = UnmarshalCharSpec(ecs)
	o += CharSpecSize

	var va, vc [primitive.ExtentADSize]byte
	copy(va[:], b[o:o+primitive.ExtentADSize])
	p.VolAbstract = primitive.UnmarshalExtentAD(va)
	o += primitive.ExtentADSize
	copy(vc[:], b[o:o+primitive.ExtentADSize])
	p.VolCopyrightNotice = primitive.UnmarshalExtentAD(vc)
	o += primitive.ExtentADSize

	var appID [primitive.RegidSize]byte
	copy(appID[:], b[o:o+primitive.RegidSize])
	p.ApplicationIdent = primitive.UnmarshalRegid(appID)
	o += primitive.RegidSize

	var rdt [primitive.TimestampSize]byte
	copy(rdt[:], b[o:o+primitive.TimestampSize])
	p.RecordingDateAndTime = primitive.UnmarshalTimestamp(rdt)
	o += primitive.TimestampSize

	var implID [primitive.RegidSize]byte
	copy(implID[:], b[o:o+primitive.RegidSize])
	p.ImplementationIdent = primitive.UnmarshalRegid(implID)
	o += primitive.RegidSize

	copy(p.ImplementationUse[:], b[o:o+64])
	o += 64

	p.PredecessorVolDescSeqLocation = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	p.Flags = binary.LittleEndian.Uint16(b[o : o+2])

	return p, nil
}
