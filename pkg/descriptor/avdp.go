package descriptor

import (
	"fmt"

	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// AVDPPayloadSize is the fixed payload size (after the tag) of an Anchor
// Volume Descriptor Pointer: two extent_ad entries.
const AVDPPayloadSize = 2 * primitive.ExtentADSize

// AnchorVolumeDescriptorPointer (tag identifier AVDP) locates the Main
// and Reserve Volume Descriptor Sequences. Written at block 256, at N-1
// unless the volume is append-only (VAT), and for closed volumes also
// at N-257 (spec.md §4.E, "Persisted state layout").
type AnchorVolumeDescriptorPointer struct {
	Tag                     tag.Tag
	MainVolDescSeqExtent    primitive.ExtentAD
	ReserveVolDescSeqExtent primitive.ExtentAD
}

// Marshal serializes the AVDP to a block-sized buffer; blockSize must be
// at least tag.Size+AVDPPayloadSize.
func (a AnchorVolumeDescriptorPointer) Marshal(blockSize int) ([]byte, error) {
	if blockSize < tag.Size+AVDPPayloadSize {
		return nil, fmt.Errorf("descriptor: block size %d too small for AVDP", blockSize)
	}
	buf := make([]byte, blockSize)
	payload := make([]byte, AVDPPayloadSize)
	mve := a.MainVolDescSeqExtent.Marshal()
	rve := a.ReserveVolDescSeqExtent.Marshal()
	copy(payload[0:primitive.ExtentADSize], mve[:])
	copy(payload[primitive.ExtentADSize:], rve[:])

	t := tag.Build(tag.IdentAVDP, a.Tag.SerialNumber, a.Tag.TagLocation, payload)
	raw := t.Marshal()
	copy(buf[0:tag.Size], raw[:])
	copy(buf[tag.Size:], payload)
	return buf, nil
}

// UnmarshalAVDP parses an AVDP from a block-sized buffer, verifying its tag.
func UnmarshalAVDP(buf []byte, block uint32) (AnchorVolumeDescriptorPointer, error) {
	if len(buf) < tag.Size+AVDPPayloadSize {
		return AnchorVolumeDescriptorPointer{}, fmt.Errorf("descriptor: AVDP buffer too short")
	}
	var rawTag [tag.Size]byte
	copy(rawTag[:], buf[:tag.Size])
	payload := buf[tag.Size : tag.Size+AVDPPayloadSize]

	t, ok := tag.Verify(rawTag, payload, tag.IdentAVDP, block)
	if !ok {
		return AnchorVolumeDescriptorPointer{}, fmt.Errorf("descriptor: AVDP at block %d failed tag verification", block)
	}

	var mveRaw, rveRaw [primitive.ExtentADSize]byte
	copy(mveRaw[:], payload[0:primitive.ExtentADSize])
	copy(rveRaw[:], payload[primitive.ExtentADSize:])

	return AnchorVolumeDescriptorPointer{
		Tag:                     t,
		MainVolDescSeqExtent:    primitive.UnmarshalExtentAD(mveRaw),
		ReserveVolDescSeqExtent: primitive.UnmarshalExtentAD(rveRaw),
	}, nil
}
