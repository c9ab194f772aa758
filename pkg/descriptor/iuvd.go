package descriptor

import (
	"encoding/binary"
	"fmt"

	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// IUVDPayloadSize is the payload size (after the tag) of an
// Implementation Use Volume Descriptor carrying the LVInfo1 use area
// (ECMA-167 3/10.4, UDF 2.2.7).
const IUVDPayloadSize = 460

// ImplementationUseVolumeDescriptor (tag identifier IUVD) carries
// informal volume identification: owner/organization/contact strings.
type ImplementationUseVolumeDescriptor struct {
	Tag                 tag.Tag
	VolDescSeqNum       uint32
	ImplementationIdent primitive.Regid
	LVICharSet          CharSpec
	LogicalVolIdent     string // dstring, 128
	LVInfo1             string // dstring, 36 (owner name)
	LVInfo2             string // dstring, 36 (organization)
	LVInfo3             string // dstring, 36 (contact)
	ImplementationID    primitive.Regid
	ImplementationUse   [128]byte
}

// Marshal serializes the IUVD payload (after the tag).
func (i ImplementationUseVolumeDescriptor) Marshal(codec udfenc.Codec) ([]byte, error) {
	b := make([]byte, IUVDPayloadSize)
	o := 0
	binary.LittleEndian.PutUint32(b[o:o+4], i.VolDescSeqNum)
	o += 4

	implID, err := i.ImplementationIdent.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal IUVD implementationIdent: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], implID[:])
	o += primitive.RegidSize

	cs := i.LVICharSet.Marshal()
	copy(b[o:o+CharSpecSize], cs[:])
	o += CharSpecSize

	logID, err := udfenc.Dstring(codec, i.LogicalVolIdent, 128)
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal IUVD logicalVolIdent: %w", err)
	}
	copy(b[o:o+128], logID)
	o += 128

	for _, s := range []string{i.LVInfo1, i.LVInfo2, i.LVInfo3} {
		f, err := udfenc.Dstring(codec, s, 36)
		if err != nil {
			return nil, fmt.Errorf("descriptor: marshal IUVD lvInfo: %w", err)
		}
		copy(b[o:o+36], f)
		o += 36
	}

	implID2, err := i.ImplementationID.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal IUVD implementationID: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], implID2[:])
	o += primitive.RegidSize

	copy(b[o:o+128], i.ImplementationUse[:])

	return b, nil
}

// WithTag returns a copy of i with a freshly built tag over its
// marshaled payload.
func (i ImplementationUseVolumeDescriptor) WithTag(codec udfenc.Codec, serial uint16, block uint32) (ImplementationUseVolumeDescriptor, error) {
	payload, err := i.Marshal(codec)
	if err != nil {
		return i, err
	}
	i.Tag = tag.Build(tag.IdentIUVD, serial, block, payload)
	return i, nil
}

// UnmarshalIUVD parses an IUVD payload (not including the tag).
func UnmarshalIUVD(codec udfenc.Codec, b []byte) (ImplementationUseVolumeDescriptor, error) {
	if len(b) < IUVDPayloadSize {
		return ImplementationUseVolumeDescriptor{}, fmt.Errorf("descriptor: IUVD payload too short: %d", len(b))
	}
	var i ImplementationUseVolumeDescriptor
	o := 0
	i.VolDescSeqNum = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	var implID [primitive.RegidSize]byte
	copy(implID[:], b[o:o+primitive.RegidSize])
	i.ImplementationIdent = primitive.UnmarshalRegid(implID)
	o += primitive.RegidSize

	var cs [CharSpecSize]byte
	copy(cs[:], b[o:o+CharSpecSize])
	i.LVICharSet = UnmarshalCharSpec(cs)
	o += CharSpecSize

	logID, err := udfenc.DecodeDstring(codec, b[o:o+128])
	if err != nil {
		return i, fmt.Errorf("descriptor: unmarshal IUVD logicalVolIdent: %w", err)
	}
	i.LogicalVolIdent = logID
	o += 128

	infos := make([]string, 3)
	for k := range infos {
		s, err := udfenc.DecodeDstring(codec, b[o:o+36])
		if err != nil {
			return i, fmt.Errorf("descriptor: unmarshal IUVD lvInfo: %w", err)
		}
		infos[k] = s
		o += 36
	}
	i.LVInfo1, i.LVInfo2, i.LVInfo3 = infos[0], infos[1], infos[2]

	var implID2 [primitive.RegidSize]byte
	copy(implID2[:], b[o:o+primitive.RegidSize])
	i.ImplementationID = primitive.UnmarshalRegid(implID2)
	o += primitive.RegidSize

	copy(i.ImplementationUse[:], b[o:o+128])

	return i, nil
}
