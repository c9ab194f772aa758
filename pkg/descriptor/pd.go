package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// PDPayloadSize is the payload size (after the tag) of a Partition
// Descriptor (ECMA-167 3/10.5).
const PDPayloadSize = 496

// Partition descriptor flag bits.
const PartitionFlagAllocated = 1 << 0

// PartitionDescriptor (tag identifier PD) describes one physical
// partition: its access type, extent on disc, and contents identifier
// ("+NSR02"/"+NSR03" for a UDF user partition).
type PartitionDescriptor struct {
	Tag                       tag.Tag
	VolDescSeqNum             uint32
	PartitionFlags            uint16
	PartitionNumber           uint16
	PartitionContents         primitive.Regid
	PartitionContentsUse      [128]byte
	AccessType                uint32
	PartitionStartingLocation uint32
	PartitionLength           uint32
	ImplementationIdent       primitive.Regid
	ImplementationUse         [128]byte
}

// Marshal serializes the PD payload (after the tag).
func (p PartitionDescriptor) Marshal() ([]byte, error) {
	b := make([]byte, PDPayloadSize)
	o := 0
	binary.LittleEndian.PutUint32(b[o:o+4], p.VolDescSeqNum)
	o += 4
	binary.LittleEndian.PutUint16(b[o:o+2], p.PartitionFlags)
	o += 2
	binary.LittleEndian.PutUint16(b[o:o+2], p.PartitionNumber)
	o += 2

	contentsID, err := p.PartitionContents.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal PD partitionContents: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], contentsID[:])
	o += primitive.RegidSize

	copy(b[o:o+128], p.PartitionContentsUse[:])
	o += 128

	binary.LittleEndian.PutUint32(b[o:o+4], p.AccessType)
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], p.PartitionStartingLocation)
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], p.PartitionLength)
	o += 4

	implID, err := p.ImplementationIdent.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal PD implementationIdent: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], implID[:])
	o += primitive.RegidSize

	copy(b[o:o+128], p.ImplementationUse[:])

	return b, nil
}

// WithTag returns a copy of p with a freshly built tag over its
// marshaled payload.
func (p PartitionDescriptor) WithTag(serial uint16, block uint32) (PartitionDescriptor, error) {
	payload, err := p.Marshal()
	if err != nil {
		return p, err
	}
	p.Tag = tag.Build(tag.IdentPD, serial, block, payload)
	return p, nil
}

// UnmarshalPD parses a PD payload (not including the tag).
func UnmarshalPD(b []byte) (PartitionDescriptor, error) {
	if len(b) < PDPayloadSize {
		return PartitionDescriptor{}, fmt.Errorf("descriptor: PD payload too short: %d", len(b))
	}
	var p PartitionDescriptor
	o := 0
	p.VolDescSeqNum = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	p.PartitionFlags = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	p.PartitionNumber = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2

	var contentsID [primitive.RegidSize]byte
	copy(contentsID[:], b[o:o+primitive.RegidSize])
	p.PartitionContents = primitive.UnmarshalRegid(contentsID)
	o += primitive.RegidSize

	copy(p.PartitionContentsUse[:], b[o:o+128])
	o += 128

	p.AccessType = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	p.PartitionStartingLocation = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	p.PartitionLength = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	var implID [primitive.RegidSize]byte
	copy(implID[:], b[o:o+primitive.RegidSize])
	p.ImplementationIdent = primitive.UnmarshalRegid(implID)
	o += primitive.RegidSize

	copy(p.ImplementationUse[:], b[o:o+128])

	return p, nil
}
