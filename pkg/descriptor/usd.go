package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// UnallocatedSpaceDescriptor (tag identifier USD) lists the extents of
// volume space not yet assigned to any partition.
type UnallocatedSpaceDescriptor struct {
	Tag           tag.Tag
	VolDescSeqNum uint32
	AllocDescs    []primitive.ExtentAD
}

// Marshal serializes the USD payload (after the tag).
func (u UnallocatedSpaceDescriptor) Marshal() []byte {
	b := make([]byte, 8+len(u.AllocDescs)*primitive.ExtentADSize)
	binary.LittleEndian.PutUint32(b[0:4], u.VolDescSeqNum)
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(u.AllocDescs)))
	for i, ad := range u.AllocDescs {
		raw := ad.Marshal()
		copy(b[8+i*primitive.ExtentADSize:], raw[:])
	}
	return b
}

// WithTag returns a copy of u with a freshly built tag over its
// marshaled payload.
func (u UnallocatedSpaceDescriptor) WithTag(serial uint16, block uint32) UnallocatedSpaceDescriptor {
	payload := u.Marshal()
	u.Tag = tag.Build(tag.IdentUSD, serial, block, payload)
	return u
}

// UnmarshalUSD parses a USD payload (not including the tag).
func UnmarshalUSD(b []byte) (UnallocatedSpaceDescriptor, error) {
	if len(b) < 8 {
		return UnallocatedSpaceDescriptor{}, fmt.Errorf("descriptor: USD payload too short: %d", len(b))
	}
	var u UnallocatedSpaceDescriptor
	u.VolDescSeqNum = binary.LittleEndian.Uint32(b[0:4])
	n := binary.LittleEndian.Uint32(b[4:8])
	if 8+int(n)*primitive.ExtentADSize > len(b) {
		return u, fmt.Errorf("descriptor: USD numAllocDescs %d exceeds payload", n)
	}
	for i := 0; i < int(n); i++ {
		var raw [primitive.ExtentADSize]byte
		copy(raw[:], b[8+i*primitive.ExtentADSize:8+(i+1)*primitive.ExtentADSize])
		u.AllocDescs = append(u.AllocDescs, primitive.UnmarshalExtentAD(raw))
	}
	return u, nil
}
