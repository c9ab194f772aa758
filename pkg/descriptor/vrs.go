package descriptor

import (
	"fmt"
)

// VolumeStructureDescriptorSize is the fixed 2048-byte size of every
// member of the Volume Recognition Sequence (ECMA-167 2/9.1).
const VolumeStructureDescriptorSize = 2048

// Volume Recognition Sequence structure types.
const (
	VSDStructureTypeBEA = 0
	VSDStructureTypeNSR = 0
	VSDStructureTypeTEA = 0
)

// Standard identifiers that appear at byte 32768 onward, one per
// 2048-byte logical sector, ending the reserved/boot area (spec.md
// "Persisted state layout summary").
const (
	StdIdentBEA01 = "BEA01"
	StdIdentNSR02 = "NSR02"
	StdIdentNSR03 = "NSR03"
	StdIdentTEA01 = "TEA01"
)

// VolumeStructureDescriptor is one 2048-byte entry of the VRS: a
// structure type byte, a 5-byte standard identifier, and a version byte.
type VolumeStructureDescriptor struct {
	StructureType      uint8
	StandardIdentifier string
	StructureVersion   uint8
}

// Marshal serializes the descriptor to its fixed 2048-byte sector form.
func (d VolumeStructureDescriptor) Marshal() [VolumeStructureDescriptorSize]byte {
	var b [VolumeStructureDescriptorSize]byte
	b[0] = d.StructureType
	copy(b[1:6], d.StandardIdentifier)
	b[6] = d.StructureVersion
	return b
}

// UnmarshalVolumeStructureDescriptor parses a 2048-byte VRS sector.
func UnmarshalVolumeStructureDescriptor(b [VolumeStructureDescriptorSize]byte) VolumeStructureDescriptor {
	return VolumeStructureDescriptor{
		StructureType:      b[0],
		StandardIdentifier: string(b[1:6]),
		StructureVersion:   b[6],
	}
}

// VolumeRecognitionSequence is the ordered BEA01, NSR02/NSR03, TEA01
// triplet written starting at byte 32768 (spec.md §4.E).
type VolumeRecognitionSequence struct {
	BEA01 VolumeStructureDescriptor
	NSR   VolumeStructureDescriptor // NSR02 for UDF <2.00 volumes, NSR03 for >=2.00
	TEA01 VolumeStructureDescriptor
}

// NewVolumeRecognitionSequence builds the standard VRS triplet. nsrIdent
// must be StdIdentNSR02 or StdIdentNSR03.
func NewVolumeRecognitionSequence(nsrIdent string) (VolumeRecognitionSequence, error) {
	if nsrIdent != StdIdentNSR02 && nsrIdent != StdIdentNSR03 {
		return VolumeRecognitionSequence{}, fmt.Errorf("descriptor: invalid NSR identifier %q", nsrIdent)
	}
	return VolumeRecognitionSequence{
		BEA01: VolumeStructureDescriptor{StandardIdentifier: StdIdentBEA01, StructureVersion: 1},
		NSR:   VolumeStructureDescriptor{StandardIdentifier: nsrIdent, StructureVersion: 1},
		TEA01: VolumeStructureDescriptor{StandardIdentifier: StdIdentTEA01, StructureVersion: 1},
	}, nil
}

// Marshal returns the three 2048-byte sectors in disc order.
func (s VolumeRecognitionSequence) Marshal() [3][VolumeStructureDescriptorSize]byte {
	return [3][VolumeStructureDescriptorSize]byte{
		s.BEA01.Marshal(),
		s.NSR.Marshal(),
		s.TEA01.Marshal(),
	}
}
