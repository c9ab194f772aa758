package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/tag"
)

var codec = udfenc.Default{}

func TestVolumeRecognitionSequenceRoundTrip(t *testing.T) {
	vrs, err := NewVolumeRecognitionSequence(StdIdentNSR03)
	require.NoError(t, err)
	sectors := vrs.Marshal()

	bea := UnmarshalVolumeStructureDescriptor(sectors[0])
	assert.Equal(t, StdIdentBEA01, bea.StandardIdentifier)
	nsr := UnmarshalVolumeStructureDescriptor(sectors[1])
	assert.Equal(t, StdIdentNSR03, nsr.StandardIdentifier)
}

func TestAVDPRoundTrip(t *testing.T) {
	avdp := AnchorVolumeDescriptorPointer{
		Tag:                     tag.Tag{TagLocation: 256},
		MainVolDescSeqExtent:    primitive.ExtentAD{Length: 32768, Location: 257},
		ReserveVolDescSeqExtent: primitive.ExtentAD{Length: 32768, Location: 289},
	}
	buf, err := avdp.Marshal(512)
	require.NoError(t, err)

	back, err := UnmarshalAVDP(buf, 256)
	require.NoError(t, err)
	assert.Equal(t, avdp.MainVolDescSeqExtent, back.MainVolDescSeqExtent)
	assert.Equal(t, avdp.ReserveVolDescSeqExtent, back.ReserveVolDescSeqExtent)
}

func TestPVDRoundTrip(t *testing.T) {
	pvd := PrimaryVolumeDescriptor{
		VolDescSeqNum:       1,
		PrimaryVolDescNum:   0,
		VolIdentifier:       "MyUDFVolume",
		VolSeqNum:           1,
		MaxVolSeqNum:        1,
		DescCharSet:         CS0,
		ExplanatoryCharSet:  CS0,
		ApplicationIdent:    primitive.NewUDFRegid("*go-udf", 0x0201),
		ImplementationIdent: primitive.NewUDFRegid("*go-udf", 0x0201),
	}
	payload, err := pvd.Marshal(codec)
	require.NoError(t, err)
	assert.Len(t, payload, PVDPayloadSize)

	back, err := UnmarshalPVD(codec, payload)
	require.NoError(t, err)
	assert.Equal(t, "MyUDFVolume", back.VolIdentifier)
	assert.Equal(t, pvd.VolSeqNum, back.VolSeqNum)
}

func TestLVDRoundTripWithPartitionMaps(t *testing.T) {
	lvd := LogicalVolumeDescriptor{
		VolDescSeqNum:    1,
		DescCharSet:      CS0,
		LogicalVolIdent:  "MyUDFVolume",
		LogicalBlockSize: 2048,
		DomainIdent:      primitive.NewUDFRegid("*OSTA UDF Compliant", 0x0201),
		PartitionMaps: []PartitionMap{
			{Kind: PartitionMapKindType1, VolSeqNum: 1, PartitionNum: 0},
		},
	}
	payload, err := lvd.Marshal(codec)
	require.NoError(t, err)

	back, err := UnmarshalLVD(codec, payload)
	require.NoError(t, err)
	assert.Equal(t, "MyUDFVolume", back.LogicalVolIdent)
	require.Len(t, back.PartitionMaps, 1)
	assert.Equal(t, PartitionMapKindType1, back.PartitionMaps[0].Kind)
}

func TestLVDRoundTripSparablePartitionMap(t *testing.T) {
	lvd := LogicalVolumeDescriptor{
		DescCharSet:     CS0,
		LogicalVolIdent: "Sparable",
		DomainIdent:     primitive.NewUDFRegid("*OSTA UDF Compliant", 0x0201),
		PartitionMaps: []PartitionMap{
			{
				Kind:                   PartitionMapKindSparable,
				VolSeqNum:              1,
				PartitionNum:           0,
				PacketLength:           32,
				NumSparingTables:       2,
				SizeOfEachSparingTable: 2048,
				LocSparingTable:        [4]uint32{100, 200, 0, 0},
			},
		},
	}
	payload, err := lvd.Marshal(codec)
	require.NoError(t, err)

	back, err := UnmarshalLVD(codec, payload)
	require.NoError(t, err)
	require.Len(t, back.PartitionMaps, 1)
	m := back.PartitionMaps[0]
	assert.Equal(t, PartitionMapKindSparable, m.Kind)
	assert.Equal(t, uint16(32), m.PacketLength)
	assert.Equal(t, [4]uint32{100, 200, 0, 0}, m.LocSparingTable)
}

func TestPDRoundTrip(t *testing.T) {
	pd := PartitionDescriptor{
		VolDescSeqNum:             1,
		PartitionFlags:            PartitionFlagAllocated,
		PartitionNumber:           0,
		PartitionContents:         primitive.NewUDFRegid("+NSR03", 0),
		AccessType:                AccessTypeOverwritable,
		PartitionStartingLocation: 300,
		PartitionLength:           10000,
		ImplementationIdent:       primitive.NewUDFRegid("*go-udf", 0x0201),
	}
	payload, err := pd.Marshal()
	require.NoError(t, err)
	assert.Len(t, payload, PDPayloadSize)

	back, err := UnmarshalPD(payload)
	require.NoError(t, err)
	assert.Equal(t, pd.PartitionStartingLocation, back.PartitionStartingLocation)
	assert.Equal(t, pd.PartitionLength, back.PartitionLength)
}

func TestUSDRoundTrip(t *testing.T) {
	usd := UnallocatedSpaceDescriptor{
		VolDescSeqNum: 1,
		AllocDescs: []primitive.ExtentAD{
			{Length: 2048, Location: 500},
			{Length: 4096, Location: 600},
		},
	}
	payload := usd.Marshal()
	back, err := UnmarshalUSD(payload)
	require.NoError(t, err)
	assert.Equal(t, usd.AllocDescs, back.AllocDescs)
}

func TestIUVDRoundTrip(t *testing.T) {
	iuvd := ImplementationUseVolumeDescriptor{
		VolDescSeqNum:       1,
		ImplementationIdent: primitive.NewUDFRegid("*UDF LV Info", 0x0201),
		LVICharSet:          CS0,
		LogicalVolIdent:     "MyUDFVolume",
		LVInfo1:             "owner",
		LVInfo2:             "org",
		LVInfo3:             "contact",
	}
	payload, err := iuvd.Marshal(codec)
	require.NoError(t, err)
	assert.Len(t, payload, IUVDPayloadSize)

	back, err := UnmarshalIUVD(codec, payload)
	require.NoError(t, err)
	assert.Equal(t, "owner", back.LVInfo1)
	assert.Equal(t, "contact", back.LVInfo3)
}

func TestLVIDRoundTrip(t *testing.T) {
	lvid := LogicalVolumeIntegrityDescriptor{
		IntegrityType:  IntegrityTypeOpen,
		FreeSpaceTable: []uint32{1000},
		SizeTable:      []uint32{2000},
		ImplUse: LVIDImplUse{
			ImplementationIdent: primitive.NewUDFRegid("*go-udf", 0x0201),
			NumFiles:            3,
			NumDirs:             1,
			MinUDFReadRev:       0x0201,
			MinUDFWriteRev:      0x0201,
			MaxUDFWriteRev:      0x0201,
		},
	}
	lvid = lvid.WithUniqueIDCounter(42)
	payload, err := lvid.Marshal()
	require.NoError(t, err)

	back, err := UnmarshalLVID(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), back.UniqueIDCounter())
	assert.Equal(t, []uint32{1000}, back.FreeSpaceTable)
	assert.Equal(t, uint32(3), back.ImplUse.NumFiles)
}

func TestFSDRoundTrip(t *testing.T) {
	fsd := FileSetDescriptor{
		LogicalVolIdentCharSet: CS0,
		LogicalVolIdent:        "MyUDFVolume",
		FileSetCharSet:         CS0,
		FileSetIdent:           "",
		RootDirectoryICB:       primitive.LongAD{Length: 2048, Block: 310},
		DomainIdent:            primitive.NewUDFRegid("*OSTA UDF Compliant", 0x0201),
	}
	payload, err := fsd.Marshal(codec)
	require.NoError(t, err)
	assert.Len(t, payload, FSDPayloadSize)

	back, err := UnmarshalFSD(codec, payload)
	require.NoError(t, err)
	assert.Equal(t, "MyUDFVolume", back.LogicalVolIdent)
	assert.Equal(t, uint32(310), back.RootDirectoryICB.Block)
}

func TestTerminatorRoundTrip(t *testing.T) {
	term := VolumeDescriptorSetTerminator{Tag: tag.Tag{TagLocation: 320}}
	buf, err := term.Marshal(2048)
	require.NoError(t, err)

	back, err := UnmarshalTerminator(buf, 320)
	require.NoError(t, err)
	assert.Equal(t, uint32(320), back.Tag.TagLocation)
}

func TestSparingTableRoundTripAndLookup(t *testing.T) {
	st := SparingTable{
		SequenceNumber: 1,
		Entries: []SparingEntry{
			{OrigLocation: 100, MappedLocation: 9000},
			{OrigLocation: 200, MappedLocation: 9032},
			{OrigLocation: UnusedOrigLocation, MappedLocation: 9064},
		},
	}
	raw, err := st.Marshal()
	require.NoError(t, err)

	back, err := UnmarshalSparingTable(raw)
	require.NoError(t, err)
	require.Len(t, back.Entries, 3)

	assert.Equal(t, uint32(9000), back.Lookup(100))
	assert.Equal(t, uint32(9032), back.Lookup(200))
	assert.Equal(t, uint32(150), back.Lookup(150), "unmapped location passes through unchanged")
}
