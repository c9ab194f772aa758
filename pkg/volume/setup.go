package volume

import (
	"fmt"

	"github.com/go-udf/udfkit/pkg/descriptor"
	"github.com/go-udf/udfkit/pkg/directory"
	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/fileentry"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/space"
	"github.com/go-udf/udfkit/pkg/tag"
)

// Identity names the per-volume strings a Setup run stamps into the
// descriptor set (spec.md §6 "Volume creator" CLI surface:
// cmd/udfcreate fills all but Contact from its label, vsid, fsid,
// owner, and org values).
type Identity struct {
	VolIdentifier    string
	VolSetIdentifier string
	LogicalVolIdent  string
	Owner            string
	Organization     string
	Contact          string
}

// Setup drives the post-layout passes of spec.md §4.I: setup_vrs,
// setup_anchor, setup_vds (which also builds the PD), setup_lvid, and
// setup_fileset/setup_root. It has no setup_stable pass: a sparable
// layout's STABLE extents get no sparing table written into them.
type Setup struct {
	Builder     *Builder
	Codec       udfenc.Codec
	Clock       Clock
	Identity    Identity
	ImplIdent   primitive.Regid
	DomainIdent primitive.Regid
}

// Result carries every descriptor Setup built, ready for the caller to
// marshal and write through a blockio.Device.
type Result struct {
	VRS        descriptor.VolumeRecognitionSequence
	Anchors    []descriptor.AnchorVolumeDescriptorPointer
	MainVDS    descriptor.VolumeDescriptorSet
	ReserveVDS descriptor.VolumeDescriptorSet
	LVID       descriptor.LogicalVolumeIntegrityDescriptor
	FSD        descriptor.FileSetDescriptor
	RootDir    *directory.Directory
	RootFE     *fileentry.FileEntry
}

func nsrIdentFor(revision uint16) string {
	if revision >= 0x0200 {
		return descriptor.StdIdentNSR03
	}
	return descriptor.StdIdentNSR02
}

// setupVRS implements setup_vrs: stamp BEA01, NSR02/NSR03, TEA01.
func (s *Setup) setupVRS() (descriptor.VolumeRecognitionSequence, error) {
	return descriptor.NewVolumeRecognitionSequence(nsrIdentFor(s.Builder.params.Revision))
}

// setupAnchors implements setup_anchor: for each ANCHOR extent, write
// an AVDP pointing at the Main and Reserve VDS extents.
func (s *Setup) setupAnchors(mainVDS, reserveVDS Extent) []descriptor.AnchorVolumeDescriptorPointer {
	mve := primitive.ExtentAD{Length: mainVDS.Length * uint32(s.Builder.params.BlockSize), Location: mainVDS.Block}
	rve := primitive.ExtentAD{Length: reserveVDS.Length * uint32(s.Builder.params.BlockSize), Location: reserveVDS.Block}

	var avdps []descriptor.AnchorVolumeDescriptorPointer
	for i, loc := range s.Builder.Anchors() {
		avdps = append(avdps, descriptor.AnchorVolumeDescriptorPointer{
			Tag:                     tag.Tag{SerialNumber: uint16(i + 1), TagLocation: loc},
			MainVolDescSeqExtent:    mve,
			ReserveVolDescSeqExtent: rve,
		})
	}
	return avdps
}

// setupVDS implements setup_vds: build PVD, PD, USD, IUVD, LVD, then
// TD for one VDS extent, at consecutive blocks and at sequence numbers
// 1..5 in that order (descriptor.VolumeDescriptorSet.Ordered); Run
// calls it once for the Main and once for the Reserve extent.
func (s *Setup) setupVDS(vds Extent, partition Extent, partitionNum uint16) (descriptor.VolumeDescriptorSet, error) {
	id := s.Identity

	pvd := descriptor.PrimaryVolumeDescriptor{
		VolDescSeqNum:        1,
		PrimaryVolDescNum:    0,
		VolIdentifier:        id.VolIdentifier,
		VolSeqNum:            1,
		MaxVolSeqNum:         1,
		InterchangeLevel:     2,
		MaxInterchangeLevel:  3,
		CharSetList:          1,
		MaxCharSetList:       1,
		VolSetIdentifier:     id.VolSetIdentifier,
		DescCharSet:          descriptor.CS0,
		ExplanatoryCharSet:   descriptor.CS0,
		ApplicationIdent:     primitive.Regid{},
		RecordingDateAndTime: s.Clock.Now(),
		ImplementationIdent:  s.ImplIdent,
	}
	pvd, err := pvd.WithTag(s.Codec, 1, vds.Block+0)
	if err != nil {
		return descriptor.VolumeDescriptorSet{}, fmt.Errorf("volume: setup_vds PVD: %w", err)
	}

	pd := descriptor.PartitionDescriptor{
		VolDescSeqNum:             2,
		PartitionFlags:            descriptor.PartitionFlagAllocated,
		PartitionNumber:           partitionNum,
		PartitionContents:         primitive.NewUDFRegid("+NSR02", 0),
		AccessType:                partitionAccessType(s.Builder.params),
		PartitionStartingLocation: partition.Block,
		PartitionLength:           partition.Length,
		ImplementationIdent:       s.ImplIdent,
	}
	pd, err = pd.WithTag(2, vds.Block+1)
	if err != nil {
		return descriptor.VolumeDescriptorSet{}, fmt.Errorf("volume: setup_vds PD: %w", err)
	}

	usd := descriptor.UnallocatedSpaceDescriptor{VolDescSeqNum: 3}
	usd = usd.WithTag(3, vds.Block+2)

	iuvd := descriptor.ImplementationUseVolumeDescriptor{
		VolDescSeqNum:       4,
		ImplementationIdent: s.ImplIdent,
		LVICharSet:          descriptor.CS0,
		LogicalVolIdent:     id.LogicalVolIdent,
		LVInfo1:             id.Owner,
		LVInfo2:             id.Organization,
		LVInfo3:             id.Contact,
		ImplementationID:    s.ImplIdent,
	}
	iuvd, err = iuvd.WithTag(s.Codec, 4, vds.Block+3)
	if err != nil {
		return descriptor.VolumeDescriptorSet{}, fmt.Errorf("volume: setup_vds IUVD: %w", err)
	}

	lvd := descriptor.LogicalVolumeDescriptor{
		VolDescSeqNum:    5,
		DescCharSet:      descriptor.CS0,
		LogicalVolIdent:  id.LogicalVolIdent,
		LogicalBlockSize: uint32(s.Builder.params.BlockSize),
		DomainIdent:      s.DomainIdent,
		LogicalVolContentsUse: primitive.LongAD{
			Block:        0,
			PartitionRef: partitionNum,
		},
		ImplementationIdent: s.ImplIdent,
		PartitionMaps: []descriptor.PartitionMap{
			{Kind: descriptor.PartitionMapKindType1, VolSeqNum: 1, PartitionNum: partitionNum},
		},
	}
	lvd, err = lvd.WithTag(s.Codec, 5, vds.Block+4)
	if err != nil {
		return descriptor.VolumeDescriptorSet{}, fmt.Errorf("volume: setup_vds LVD: %w", err)
	}

	td := descriptor.VolumeDescriptorSetTerminator{
		Tag: tag.Tag{SerialNumber: 6, TagLocation: vds.Block + 5},
	}

	return descriptor.VolumeDescriptorSet{
		Primary:           pvd,
		Logical:           lvd,
		Partition:         pd,
		Unallocated:       usd,
		ImplementationUse: iuvd,
		Terminator:        td,
	}, nil
}

func partitionAccessType(p Params) uint32 {
	if p.AppendOnly {
		return descriptor.AccessTypeWriteOnce
	}
	if p.Sparable {
		return descriptor.AccessTypeRewritable
	}
	return descriptor.AccessTypeOverwritable
}

// setupLVID implements setup_lvid: write one open LVID. The caller
// re-invokes this (via CloseLVID) once all user data has been written,
// to rewrite it closed.
func (s *Setup) setupLVID(lvidExtent Extent, numPartitions int) (descriptor.LogicalVolumeIntegrityDescriptor, error) {
	l := descriptor.LogicalVolumeIntegrityDescriptor{
		RecordingDateAndTime: s.Clock.Now(),
		IntegrityType:        descriptor.IntegrityTypeOpen,
		FreeSpaceTable:       make([]uint32, numPartitions),
		SizeTable:            make([]uint32, numPartitions),
		ImplUse: descriptor.LVIDImplUse{
			ImplementationIdent: s.ImplIdent,
			MinUDFReadRev:       s.Builder.params.Revision,
			MinUDFWriteRev:      s.Builder.params.Revision,
			MaxUDFWriteRev:      s.Builder.params.Revision,
		},
	}
	return l.WithTag(1, lvidExtent.Block)
}

// CloseLVID rewrites l as closed, following a TD, once all user data is
// persisted (spec.md §5 ordering guarantee 1), and recomputes its tag's
// CRC over the now-changed payload so the closed copy still verifies.
func CloseLVID(l descriptor.LogicalVolumeIntegrityDescriptor) descriptor.LogicalVolumeIntegrityDescriptor {
	l.IntegrityType = descriptor.IntegrityTypeClosed
	if retagged, err := l.WithTag(l.Tag.SerialNumber, l.Tag.TagLocation); err == nil {
		l = retagged
	}
	return l
}

// setupFileSetAndRoot implements setup_fileset + setup_root: the FSD
// at partition-relative block 0, and a root directory whose single FID
// is its own PARENT entry (no name, ICB pointing at the root FE's own
// block). The root FE's ICB tag records parent block 0, the
// self-referential case of the Open Question resolution that only a
// real parent records a real block.
func (s *Setup) setupFileSetAndRoot(alloc space.Allocator, ids fileentry.UniqueIDSource, counters fileentry.Counters, partitionNum uint16) (descriptor.FileSetDescriptor, *directory.Directory, *fileentry.FileEntry, error) {
	now := s.Clock.Now()

	rootResult, err := fileentry.CreateFileEntry(alloc, ids, counters, fileentry.Params{
		FileType:            fileentry.FileTypeDirectory,
		Now:                 now,
		BlockSize:           s.Builder.params.BlockSize,
		ImplementationIdent: s.ImplIdent,
	})
	if err != nil {
		return descriptor.FileSetDescriptor{}, nil, nil, fmt.Errorf("volume: setup_root: %w", err)
	}
	rootResult.FE.ICBTag.ParentICBBlock = 0
	rootResult.FE.ICBTag.ParentICBPartitionRef = partitionNum
	rootResult.FE.FileLinkCount = 1

	rootDir := directory.New(rootResult.Block, []directory.FID{
		{
			FileCharacteristics: directory.CharParent | directory.CharDirectory,
			ICB: primitive.LongAD{
				Block:        rootResult.Block,
				PartitionRef: partitionNum,
			},
		},
	})

	// The root directory's FID stream lives in its own block right
	// after the FE (never embedded), so the FE needs a short_ad
	// pointing at it rather than the default IN_ICB allocation kind.
	_, content, err := rootDir.EmbeddedFit(s.Builder.params.BlockSize, 0, 0)
	if err != nil {
		return descriptor.FileSetDescriptor{}, nil, nil, fmt.Errorf("volume: setup_root: measuring content: %w", err)
	}
	rootResult.FE.ICBTag = rootResult.FE.ICBTag.WithADKind(fileentry.ADKindShort)
	rootResult.FE.InformationLength = uint64(len(content))
	rootResult.FE.LogicalBlocksRecorded = 1
	rootResult.FE.AllocDescs = fileentry.EncodeShortADs([]primitive.ShortAD{
		{Length: uint32(len(content)), Type: primitive.ExtentRecordedAllocated, Block: rootResult.Block + 1},
	})

	fsd := descriptor.FileSetDescriptor{
		RecordingDateAndTime:   now,
		InterchangeLevel:       2,
		MaxInterchangeLevel:    3,
		CharSetList:            1,
		MaxCharSetList:         1,
		LogicalVolIdentCharSet: descriptor.CS0,
		LogicalVolIdent:        s.Identity.LogicalVolIdent,
		FileSetCharSet:         descriptor.CS0,
		RootDirectoryICB: primitive.LongAD{
			Block:        rootResult.Block,
			PartitionRef: partitionNum,
		},
		DomainIdent: s.DomainIdent,
	}
	fsd, err = fsd.WithTag(s.Codec, 1, 0)
	if err != nil {
		return descriptor.FileSetDescriptor{}, nil, nil, fmt.Errorf("volume: setup_fileset: %w", err)
	}

	return fsd, rootDir, rootResult.FE, nil
}

// Run executes the full setup sequence against an already-laid-out
// Builder, returning every descriptor ready to be marshaled and
// written. alloc/ids/counters back the root directory's File Entry
// creation (Component D/G composition, avoiding an import cycle).
func (s *Setup) Run(alloc space.Allocator, ids fileentry.UniqueIDSource, counters fileentry.Counters) (Result, error) {
	partition, ok := s.Builder.PartitionExtent()
	if !ok {
		return Result{}, fmt.Errorf("volume: Setup.Run: Layout has not placed a PSPACE partition")
	}
	mainVDSExtents := s.Builder.extents.OfType(descriptor.SpacePVDS)
	reserveVDSExtents := s.Builder.extents.OfType(descriptor.SpaceRVDS)
	if len(mainVDSExtents) != 1 || len(reserveVDSExtents) != 1 {
		return Result{}, fmt.Errorf("volume: Setup.Run: expected exactly one PVDS/RVDS extent")
	}
	lvidExtents := s.Builder.extents.OfType(descriptor.SpaceLVID)
	if len(lvidExtents) != 1 {
		return Result{}, fmt.Errorf("volume: Setup.Run: expected exactly one LVID extent")
	}

	vrs, err := s.setupVRS()
	if err != nil {
		return Result{}, err
	}

	const partitionNum = 0
	mainVDS, err := s.setupVDS(mainVDSExtents[0], partition, partitionNum)
	if err != nil {
		return Result{}, err
	}
	// The Reserve VDS is a structural duplicate of the Main VDS (same
	// descriptor content and sequence numbers, spec.md §4.K invariant
	// 3), rebuilt at its own blocks so each tag's checksum/CRC covers
	// the right tagLocation.
	reserveVDS, err := s.setupVDS(reserveVDSExtents[0], partition, partitionNum)
	if err != nil {
		return Result{}, err
	}

	avdps := s.setupAnchors(mainVDSExtents[0], reserveVDSExtents[0])

	lvid, err := s.setupLVID(lvidExtents[0], 1)
	if err != nil {
		return Result{}, fmt.Errorf("volume: Setup.Run: setup_lvid: %w", err)
	}

	fsd, rootDir, rootFE, err := s.setupFileSetAndRoot(alloc, ids, counters, partitionNum)
	if err != nil {
		return Result{}, err
	}

	return Result{
		VRS:        vrs,
		Anchors:    avdps,
		MainVDS:    mainVDS,
		ReserveVDS: reserveVDS,
		LVID:       lvid,
		FSD:        fsd,
		RootDir:    rootDir,
		RootFE:     rootFE,
	}, nil
}
