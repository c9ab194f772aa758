package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// Integrity types (spec.md §3 "Logical Volume Integrity Descriptor").
const (
	IntegrityTypeOpen   = 0
	IntegrityTypeClosed = 1
)

// LVIDImplUse carries the file/dir counts and revision window that
// the File Entry Engine and Volume Builder consult (spec.md §4.G).
type LVIDImplUse struct {
	ImplementationIdent primitive.Regid
	NumFiles            uint32
	NumDirs             uint32
	MinUDFReadRev       uint16
	MinUDFWriteRev      uint16
	MaxUDFWriteRev      uint16
}

const lvidImplUseSize = primitive.RegidSize + 4 + 4 + 2 + 2 + 2

func (u LVIDImplUse) marshal() ([]byte, error) {
	b := make([]byte, lvidImplUseSize)
	id, err := u.ImplementationIdent.Marshal()
	if err != nil {
		return nil, err
	}
	copy(b[0:primitive.RegidSize], id[:])
	o := primitive.RegidSize
	binary.LittleEndian.PutUint32(b[o:o+4], u.NumFiles)
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], u.NumDirs)
	o += 4
	binary.LittleEndian.PutUint16(b[o:o+2], u.MinUDFReadRev)
	o += 2
	binary.LittleEndian.PutUint16(b[o:o+2], u.MinUDFWriteRev)
	o += 2
	binary.LittleEndian.PutUint16(b[o:o+2], u.MaxUDFWriteRev)
	return b, nil
}

func unmarshalLVIDImplUse(b []byte) (LVIDImplUse, error) {
	if len(b) < lvidImplUseSize {
		return LVIDImplUse{}, fmt.Errorf("descriptor: LVID impl-use too short")
	}
	var u LVIDImplUse
	var id [primitive.RegidSize]byte
	copy(id[:], b[0:primitive.RegidSize])
	u.ImplementationIdent = primitive.UnmarshalRegid(id)
	o := primitive.RegidSize
	u.NumFiles = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	u.NumDirs = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	u.MinUDFReadRev = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	u.MinUDFWriteRev = binary.LittleEndian.Uint16(b[o : o+2])
	o += 2
	u.MaxUDFWriteRev = binary.LittleEndian.Uint16(b[o : o+2])
	return u, nil
}

// LogicalVolumeIntegrityDescriptor (tag identifier LVID) records whether
// the volume is open or closed, the next unique-ID counter, and
// per-partition free-space/size tables.
type LogicalVolumeIntegrityDescriptor struct {
	Tag                   tag.Tag
	RecordingDateAndTime  primitive.Timestamp
	IntegrityType         uint32
	NextIntegrityExtent   primitive.ExtentAD
	LogicalVolContentsUse [32]byte // first 8 bytes hold the 64-bit uniqueID counter
	FreeSpaceTable        []uint32
	SizeTable             []uint32
	ImplUse               LVIDImplUse
}

// UniqueIDCounter reads the 64-bit next-unique-ID counter stored in the
// first 8 bytes of LogicalVolContentsUse.
func (l LogicalVolumeIntegrityDescriptor) UniqueIDCounter() uint64 {
	return binary.LittleEndian.Uint64(l.LogicalVolContentsUse[0:8])
}

// WithUniqueIDCounter returns a copy of l with its uniqueID counter set.
func (l LogicalVolumeIntegrityDescriptor) WithUniqueIDCounter(v uint64) LogicalVolumeIntegrityDescriptor {
	binary.LittleEndian.PutUint64(l.LogicalVolContentsUse[0:8], v)
	return l
}

// Marshal serializes the LVID payload (after the tag).
func (l LogicalVolumeIntegrityDescriptor) Marshal() ([]byte, error) {
	if len(l.FreeSpaceTable) != len(l.SizeTable) {
		return nil, fmt.Errorf("descriptor: LVID freeSpaceTable/sizeTable length mismatch")
	}
	numPartitions := len(l.FreeSpaceTable)
	implBuf, err := l.ImplUse.marshal()
	if err != nil {
		return nil, err
	}

	size := 12 + 4 + primitive.ExtentADSize + 32 + 4 + 4 + numPartitions*4*2 + len(implBuf)
	b := make([]byte, size)
	o := 0

	rdt := l.RecordingDateAndTime.Marshal()
	copy(b[o:o+12], rdt[:])
	o += 12
	binary.LittleEndian.PutUint32(b[o:o+4], l.IntegrityType)
	o += 4
	nie := l.NextIntegrityExtent.Marshal()
	copy(b[o:o+primitive.ExtentADSize], nie[:])
	o += primitive.ExtentADSize
	copy(b[o:o+32], l.LogicalVolContentsUse[:])
	o += 32
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(numPartitions))
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(len(implBuf)))
	o += 4
	for _, v := range l.FreeSpaceTable {
		binary.LittleEndian.PutUint32(b[o:o+4], v)
		o += 4
	}
	for _, v := range l.SizeTable {
		binary.LittleEndian.PutUint32(b[o:o+4], v)
		o += 4
	}
	copy(b[o:], implBuf)

	return b, nil
}

// WithTag returns a copy of l with a freshly built tag over its
// marshaled payload.
func (l LogicalVolumeIntegrityDescriptor) WithTag(serial uint16, block uint32) (LogicalVolumeIntegrityDescriptor, error) {
	payload, err := l.Marshal()
	if err != nil {
		return l, err
	}
	l.Tag = tag.Build(tag.IdentLVID, serial, block, payload)
	return l, nil
}

// UnmarshalLVID parses an LVID payload (not including the tag).
func UnmarshalLVID(b []byte) (LogicalVolumeIntegrityDescriptor, error) {
	const fixed = 12 + 4 + primitive.ExtentADSize + 32 + 4 + 4
	if len(b) < fixed {
		return LogicalVolumeIntegrityDescriptor{}, fmt.Errorf("descriptor: LVID payload too short: %d", len(b))
	}
	var l LogicalVolumeIntegrityDescriptor
	o := 0
	var rdt [12]byte
	copy(rdt[:], b[o:o+12])
	l.RecordingDateAndTime = primitive.UnmarshalTimestamp(rdt)
	o += 12
	l.IntegrityType = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	var nie [primitive.ExtentADSize]byte
	copy(nie[:], b[o:o+primitive.ExtentADSize])
	l.NextIntegrityExtent = primitive.UnmarshalExtentAD(nie)
	o += primitive.ExtentADSize
	copy(l.LogicalVolContentsUse[:], b[o:o+32])
	o += 32
	numPartitions := binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	lengthOfImplUse := binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	needed := int(numPartitions)*4*2 + int(lengthOfImplUse)
	if o+needed > len(b) {
		return l, fmt.Errorf("descriptor: LVID payload truncated")
	}
	for i := 0; i < int(numPartitions); i++ {
		l.FreeSpaceTable = append(l.FreeSpaceTable, binary.LittleEndian.Uint32(b[o:o+4]))
		o += 4
	}
	for i := 0; i < int(numPartitions); i++ {
		l.SizeTable = append(l.SizeTable, binary.LittleEndian.Uint32(b[o:o+4]))
		o += 4
	}
	implUse, err := unmarshalLVIDImplUse(b[o : o+int(lengthOfImplUse)])
	if err != nil {
		return l, fmt.Errorf("descriptor: unmarshal LVID implUse: %w", err)
	}
	l.ImplUse = implUse

	return l, nil
}
