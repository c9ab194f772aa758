package descriptor

import (
	"fmt"

	"github.com/go-udf/udfkit/pkg/tag"
)

// VolumeDescriptorSetTerminator (tag identifier TD) closes a Volume
// Descriptor Sequence; its payload is empty, only the tag matters.
type VolumeDescriptorSetTerminator struct {
	Tag tag.Tag
}

// Marshal serializes the terminator to a block-sized buffer.
func (t VolumeDescriptorSetTerminator) Marshal(blockSize int) ([]byte, error) {
	if blockSize < tag.Size {
		return nil, fmt.Errorf("descriptor: block size %d too small for terminator", blockSize)
	}
	buf := make([]byte, blockSize)
	built := tag.Build(tag.IdentTD, t.Tag.SerialNumber, t.Tag.TagLocation, nil)
	raw := built.Marshal()
	copy(buf[0:tag.Size], raw[:])
	return buf, nil
}

// UnmarshalTerminator parses a terminator from a block-sized buffer,
// verifying its tag.
func UnmarshalTerminator(buf []byte, block uint32) (VolumeDescriptorSetTerminator, error) {
	if len(buf) < tag.Size {
		return VolumeDescriptorSetTerminator{}, fmt.Errorf("descriptor: terminator buffer too short")
	}
	var rawTag [tag.Size]byte
	copy(rawTag[:], buf[:tag.Size])
	t, ok := tag.Verify(rawTag, nil, tag.IdentTD, block)
	if !ok {
		return VolumeDescriptorSetTerminator{}, fmt.Errorf("descriptor: terminator at block %d failed tag verification", block)
	}
	return VolumeDescriptorSetTerminator{Tag: t}, nil
}
