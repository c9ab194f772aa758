package descriptor

import (
	"encoding/binary"
	"fmt"

	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

// PartitionMapKind distinguishes the three LVD partition map shapes
// named in spec.md §4.E.
type PartitionMapKind int

const (
	PartitionMapKindType1 PartitionMapKind = iota
	PartitionMapKindSparable
	PartitionMapKindVirtual
)

// PartitionMap is one entry of the LVD's partition map table.
type PartitionMap struct {
	Kind                   PartitionMapKind
	VolSeqNum              uint16
	PartitionNum           uint16
	PacketLength           uint16 // sparable only
	NumSparingTables       uint8  // sparable only
	SizeOfEachSparingTable uint32 // sparable only
	LocSparingTable        [4]uint32
}

// Marshal serializes the partition map to its on-disc form: 6 bytes for
// type-1, 64 bytes for the sparable/virtual type-2 variants.
func (m PartitionMap) Marshal() ([]byte, error) {
	switch m.Kind {
	case PartitionMapKindType1:
		b := make([]byte, 6)
		b[0] = PartitionMapType1
		b[1] = 6
		binary.LittleEndian.PutUint16(b[2:4], m.VolSeqNum)
		binary.LittleEndian.PutUint16(b[4:6], m.PartitionNum)
		return b, nil
	case PartitionMapKindSparable:
		b := make([]byte, 64)
		b[0] = PartitionMapType2
		b[1] = 64
		id, err := primitive.NewUDFRegid(PartitionMapSparableIdent, 0).Marshal()
		if err != nil {
			return nil, err
		}
		copy(b[2:34], id[:])
		binary.LittleEndian.PutUint16(b[34:36], m.VolSeqNum)
		binary.LittleEndian.PutUint16(b[36:38], m.PartitionNum)
		binary.LittleEndian.PutUint16(b[38:40], m.PacketLength)
		b[40] = m.NumSparingTables
		binary.LittleEndian.PutUint32(b[42:46], m.SizeOfEachSparingTable)
		for i, loc := range m.LocSparingTable {
			binary.LittleEndian.PutUint32(b[46+i*4:50+i*4], loc)
		}
		return b, nil
	case PartitionMapKindVirtual:
		b := make([]byte, 64)
		b[0] = PartitionMapType2
		b[1] = 64
		id, err := primitive.NewUDFRegid(PartitionMapVirtualIdent, 0).Marshal()
		if err != nil {
			return nil, err
		}
		copy(b[2:34], id[:])
		binary.LittleEndian.PutUint16(b[36:38], m.VolSeqNum)
		binary.LittleEndian.PutUint16(b[38:40], m.PartitionNum)
		return b, nil
	default:
		return nil, fmt.Errorf("descriptor: unknown partition map kind %d", m.Kind)
	}
}

// UnmarshalPartitionMap parses one partition map entry from b, returning
// the parsed map and the number of bytes consumed.
func UnmarshalPartitionMap(b []byte) (PartitionMap, int, error) {
	if len(b) < 2 {
		return PartitionMap{}, 0, fmt.Errorf("descriptor: partition map buffer too short")
	}
	mapType := b[0]
	length := int(b[1])
	if length == 0 || len(b) < length {
		return PartitionMap{}, 0, fmt.Errorf("descriptor: partition map length %d exceeds buffer", length)
	}
	switch mapType {
	case PartitionMapType1:
		return PartitionMap{
			Kind:         PartitionMapKindType1,
			VolSeqNum:    binary.LittleEndian.Uint16(b[2:4]),
			PartitionNum: binary.LittleEndian.Uint16(b[4:6]),
		}, length, nil
	case PartitionMapType2:
		var id [primitive.RegidSize]byte
		copy(id[:], b[2:34])
		ident := primitive.UnmarshalRegid(id)
		switch ident.Ident {
		case PartitionMapSparableIdent:
			m := PartitionMap{
				Kind:                   PartitionMapKindSparable,
				VolSeqNum:              binary.LittleEndian.Uint16(b[34:36]),
				PartitionNum:           binary.LittleEndian.Uint16(b[36:38]),
				PacketLength:           binary.LittleEndian.Uint16(b[38:40]),
				NumSparingTables:       b[40],
				SizeOfEachSparingTable: binary.LittleEndian.Uint32(b[42:46]),
			}
			for i := range m.LocSparingTable {
				m.LocSparingTable[i] = binary.LittleEndian.Uint32(b[46+i*4 : 50+i*4])
			}
			return m, length, nil
		case PartitionMapVirtualIdent:
			return PartitionMap{
				Kind:         PartitionMapKindVirtual,
				VolSeqNum:    binary.LittleEndian.Uint16(b[36:38]),
				PartitionNum: binary.LittleEndian.Uint16(b[38:40]),
			}, length, nil
		default:
			return PartitionMap{}, 0, fmt.Errorf("descriptor: unknown type-2 partition map identifier %q", ident.Ident)
		}
	default:
		return PartitionMap{}, 0, fmt.Errorf("descriptor: unknown partition map type %d", mapType)
	}
}

// LogicalVolumeDescriptor (tag identifier LVD) describes one logical
// volume: block size, domain identifier, the file set descriptor
// location, and its partition maps.
type LogicalVolumeDescriptor struct {
	Tag                   tag.Tag
	VolDescSeqNum         uint32
	DescCharSet           CharSpec
	LogicalVolIdent       string // dstring, 128 bytes
	LogicalBlockSize      uint32
	DomainIdent           primitive.Regid
	LogicalVolContentsUse primitive.LongAD // points to the FSD
	ImplementationIdent   primitive.Regid
	ImplementationUse     [128]byte
	IntegritySeqExtent    primitive.ExtentAD
	PartitionMaps         []PartitionMap
}

// Marshal serializes the LVD payload (after the tag).
func (l LogicalVolumeDescriptor) Marshal(codec udfenc.Codec) ([]byte, error) {
	var mapsBuf []byte
	for i, m := range l.PartitionMaps {
		mb, err := m.Marshal()
		if err != nil {
			return nil, fmt.Errorf("descriptor: marshal LVD partition map %d: %w", i, err)
		}
		mapsBuf = append(mapsBuf, mb...)
	}

	b := make([]byte, 440+len(mapsBuf))
	o := 0
	binary.LittleEndian.PutUint32(b[o:o+4], l.VolDescSeqNum)
	o += 4
	dcs := l.DescCharSet.Marshal()
	copy(b[o:o+CharSpecSize], dcs[:])
	o += CharSpecSize

	logID, err := udfenc.Dstring(codec, l.LogicalVolIdent, 128)
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal LVD logicalVolIdent: %w", err)
	}
	copy(b[o:o+128], logID)
	o += 128

	binary.LittleEndian.PutUint32(b[o:o+4], l.LogicalBlockSize)
	o += 4

	domID, err := l.DomainIdent.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal LVD domainIdent: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], domID[:])
	o += primitive.RegidSize

	lvcu := l.LogicalVolContentsUse.Marshal()
	copy(b[o:o+primitive.LongADSize], lvcu[:])
	o += primitive.LongADSize

	binary.LittleEndian.PutUint32(b[o:o+4], uint32(len(mapsBuf)))
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(len(l.PartitionMaps)))
	o += 4

	implID, err := l.ImplementationIdent.Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal LVD implementationIdent: %w", err)
	}
	copy(b[o:o+primitive.RegidSize], implID[:])
	o += primitive.RegidSize

	copy(b[o:o+128], l.ImplementationUse[:])
	o += 128

	ise := l.IntegritySeqExtent.Marshal()
	copy(b[o:o+primitive.ExtentADSize], ise[:])
	o += primitive.ExtentADSize

	copy(b[o:], mapsBuf)

	return b, nil
}

// WithTag returns a copy of l with a freshly built tag over its
// marshaled payload.
func (l LogicalVolumeDescriptor) WithTag(codec udfenc.Codec, serial uint16, block uint32) (LogicalVolumeDescriptor, error) {
	payload, err := l.Marshal(codec)
	if err != nil {
		return l, err
	}
	l.Tag = tag.Build(tag.IdentLVD, serial, block, payload)
	return l, nil
}

// UnmarshalLVD parses an LVD payload (not including the tag).
func UnmarshalLVD(codec udfenc.Codec, b []byte) (LogicalVolumeDescriptor, error) {
	if len(b) < 440 {
		return LogicalVolumeDescriptor{}, fmt.Errorf("descriptor: LVD payload too short: %d", len(b))
	}
	var l LogicalVolumeDescriptor
	o := 0
	l.VolDescSeqNum = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	var dcs [CharSpecSize]byte
	copy(dcs[:], b[o:o+CharSpecSize])
	l.DescCharSet = UnmarshalCharSpec(dcs)
	o += CharSpecSize

	logID, err := udfenc.DecodeDstring(codec, b[o:o+128])
	if err != nil {
		return l, fmt.Errorf("descriptor: unmarshal LVD logicalVolIdent: %w", err)
	}
	l.LogicalVolIdent = logID
	o += 128

	l.LogicalBlockSize = binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	var domID [primitive.RegidSize]byte
	copy(domID[:], b[o:o+primitive.RegidSize])
	l.DomainIdent = primitive.UnmarshalRegid(domID)
	o += primitive.RegidSize

	var lvcu [primitive.LongADSize]byte
	copy(lvcu[:], b[o:o+primitive.LongADSize])
	l.LogicalVolContentsUse = primitive.UnmarshalLongAD(lvcu)
	o += primitive.LongADSize

	mapTableLength := binary.LittleEndian.Uint32(b[o : o+4])
	o += 4
	numPartitionMaps := binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	var implID [primitive.RegidSize]byte
	copy(implID[:], b[o:o+primitive.RegidSize])
	l.ImplementationIdent = primitive.UnmarshalRegid(implID)
	o += primitive.RegidSize

	copy(l.ImplementationUse[:], b[o:o+128])
	o += 128

	var ise [primitive.ExtentADSize]byte
	copy(ise[:], b[o:o+primitive.ExtentADSize])
	l.IntegritySeqExtent = primitive.UnmarshalExtentAD(ise)
	o += primitive.ExtentADSize

	mapsBuf := b[o : o+int(mapTableLength)]
	for i := 0; i < int(numPartitionMaps); i++ {
		m, n, err := UnmarshalPartitionMap(mapsBuf)
		if err != nil {
			return l, fmt.Errorf("descriptor: unmarshal LVD partition map %d: %w", i, err)
		}
		l.PartitionMaps = append(l.PartitionMaps, m)
		mapsBuf = mapsBuf[n:]
	}

	return l, nil
}
