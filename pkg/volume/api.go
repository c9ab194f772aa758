package volume

import (
	"fmt"

	"github.com/go-udf/udfkit/internal/logging"
	"github.com/go-udf/udfkit/pkg/blockio"
	"github.com/go-udf/udfkit/pkg/descriptor"
	"github.com/go-udf/udfkit/pkg/directory"
	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/fileentry"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/space"
	"github.com/go-udf/udfkit/pkg/tag"
)

// Options configures one Create or Open call, mirroring the
// functional-options shape the rest of the module's engines avoid but
// the top-level entry point needs: there are a dozen independent knobs
// (media type, revision, identity strings, clock, logger) and most
// callers only care about two or three of them.
type Options struct {
	blockSize   int
	media       MediaType
	revision    uint16
	sparable    bool
	appendOnly  bool
	closed      bool
	packetAlign uint32
	identity    Identity
	implIdent   primitive.Regid
	domainIdent primitive.Regid
	clock       Clock
	sizing      SizingTable
	codec       udfenc.Codec
	logger      *logging.Logger
}

// Option mutates an Options value.
type Option func(*Options)

// WithBlockSize sets the logical block size in bytes (512, 2048, or
// 4096; 2048 is the common optical-media default).
func WithBlockSize(n int) Option { return func(o *Options) { o.blockSize = n } }

// WithMediaType selects the device category, which drives both the
// write strategy (rewritable/append-only/closed) and the structural
// area sizing table lookup.
func WithMediaType(m MediaType) Option { return func(o *Options) { o.media = m } }

// WithRevision sets the UDF revision to format for (e.g. 0x0201,
// 0x0150), which selects NSR02 vs NSR03 and the LVID's min/max
// read/write revision fields.
func WithRevision(rev uint16) Option { return func(o *Options) { o.revision = rev } }

// WithSparable enables the Sparing Engine's STABLE/SSPACE areas for
// packet-written rewritable media (CD-RW, some DVD-RW).
func WithSparable(align uint32) Option {
	return func(o *Options) {
		o.sparable = true
		o.packetAlign = align
	}
}

// WithAppendOnly selects the VAT write strategy for write-once media
// (DVD-R, CD-R, BD-R).
func WithAppendOnly(enabled bool) Option { return func(o *Options) { o.appendOnly = enabled } }

// WithClosed marks the medium as a closed session, which places a
// second anchor at N-257 in addition to the usual pair.
func WithClosed(closed bool) Option { return func(o *Options) { o.closed = closed } }

// WithIdentity sets the volume/volume-set/logical-volume identifier
// strings and owner/organization/contact info stamped into the PVD,
// IUVD, and FSD.
func WithIdentity(id Identity) Option { return func(o *Options) { o.identity = id } }

// WithImplementationIdent overrides the implementation identifier
// regid stamped into every descriptor this module writes.
func WithImplementationIdent(r primitive.Regid) Option {
	return func(o *Options) { o.implIdent = r }
}

// WithClock injects a Clock, e.g. a FixedClock for reproducible
// builds; defaults to RealClock.
func WithClock(c Clock) Option { return func(o *Options) { o.clock = c } }

// WithSizingTable supplies the media-type size lookup Layout consults.
// There is no default: Create fails without one. internal/mediatab's
// Default() supplies the embedded table.
func WithSizingTable(t SizingTable) Option { return func(o *Options) { o.sizing = t } }

// WithCodec overrides the dstring (CS0) codec used for identifier
// fields; defaults to encoding.Default.
func WithCodec(c udfenc.Codec) Option { return func(o *Options) { o.codec = c } }

// WithLogger attaches a logger; defaults to a discarding logger so
// library use costs nothing unless a caller opts in.
func WithLogger(l *logging.Logger) Option { return func(o *Options) { o.logger = l } }

func defaultOptions() Options {
	return Options{
		blockSize:   2048,
		media:       MediaHD,
		revision:    0x0201,
		domainIdent: primitive.NewUDFRegid("*OSTA UDF Compliant", 0x0201),
		implIdent:   primitive.NewUDFRegid("*go-udf/udfkit", 0x0201),
		clock:       RealClock{},
		codec:       udfenc.Default{},
		logger:      logging.Default(),
	}
}

// Volume is an open or newly created UDF volume: the structural
// layout, the descriptor set, the root directory, and the allocator
// and unique-ID/counter state the Maintenance Engine needs to keep
// writing to it.
type Volume struct {
	device  *blockio.Device
	builder *Builder
	result  Result
	alloc   space.Allocator
	ids     fileentry.UniqueIDSource
	counts  *fileCounters
	opts    Options
}

// fileCounters implements fileentry.Counters/directory.Counters over
// the LVID's per-partition file/dir counts (spec.md §4.G step 4,
// §4.H "LVID file/dir counts").
type fileCounters struct {
	files uint32
	dirs  uint32
}

func (c *fileCounters) BumpFileCount() { c.files++ }
func (c *fileCounters) BumpDirCount()  { c.dirs++ }

// DecrementFileCount/DecrementDirCount satisfy directory.Counters for
// the Maintenance Engine's delete path.
func (c *fileCounters) DecrementFileCount() {
	if c.files > 0 {
		c.files--
	}
}
func (c *fileCounters) DecrementDirCount() {
	if c.dirs > 0 {
		c.dirs--
	}
}

// Create lays out and formats a brand-new volume of blocks logical
// blocks on dev, then writes every structural descriptor to it,
// returning a handle ready for the Maintenance Engine to populate.
func Create(dev *blockio.Device, blocks uint32, opts ...Option) (*Volume, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.sizing == nil {
		return nil, fmt.Errorf("volume: Create requires a SizingTable (see internal/mediatab)")
	}

	params := Params{
		Blocks:      blocks,
		BlockSize:   o.blockSize,
		Media:       o.media,
		Revision:    o.revision,
		Sparable:    o.sparable,
		AppendOnly:  o.appendOnly,
		Closed:      o.closed,
		PacketAlign: o.packetAlign,
	}
	builder := NewBuilder(params, o.sizing)
	if err := builder.Layout(); err != nil {
		return nil, fmt.Errorf("volume: Create: %w", err)
	}

	partition, ok := builder.PartitionExtent()
	if !ok {
		return nil, fmt.Errorf("volume: Create: layout produced no partition extent")
	}

	alloc := newAllocator(params, partition)

	setup := &Setup{
		Builder:     builder,
		Codec:       o.codec,
		Clock:       o.clock,
		Identity:    o.identity,
		ImplIdent:   o.implIdent,
		DomainIdent: o.domainIdent,
	}
	counters := &fileCounters{}
	ids := fileentry.NewCounter(1)
	result, err := setup.Run(alloc, ids, counters)
	if err != nil {
		return nil, fmt.Errorf("volume: Create: %w", err)
	}

	v := &Volume{
		device:  dev,
		builder: builder,
		result:  result,
		alloc:   alloc,
		ids:     ids,
		counts:  counters,
		opts:    o,
	}
	if err := v.writeStructures(); err != nil {
		return nil, fmt.Errorf("volume: Create: %w", err)
	}
	o.logger.Info("created volume", "blocks", blocks, "media", o.media, "partitionBlock", partition.Block, "partitionLength", partition.Length)
	return v, nil
}

// newAllocator picks the Space Manager strategy matching the write
// strategy: VAT for append-only media, a bitmap otherwise (spec.md
// §4.D), seeded with the entire partition free: CreateFileEntry's own
// AllocBlocks call for the root File Entry (inside Setup.Run) already
// marks the blocks it consumes as allocated.
func newAllocator(p Params, partition Extent) space.Allocator {
	if p.AppendOnly {
		return space.NewVATAllocator(0, partition.Length)
	}
	alloc := space.NewBitmapAllocator(partition.Length, space.AllocationAlignment)
	alloc.SetExtent(space.TypeUnallocated, 0, partition.Length)
	return alloc
}

// writeStructures marshals and writes the VRS, every anchor, both VDS
// copies, the LVID, the FSD, and the root directory to the device, in
// that order (spec.md §4.I "write order").
func (v *Volume) writeStructures() error {
	bs := v.device.BlockSize()

	vrsBytes := v.result.VRS.Marshal()
	vrsBlock := v.builder.extents.OfType(descriptor.SpaceVRS)[0].Block
	vsdBlocks := (uint32(descriptor.VolumeStructureDescriptorSize) + uint32(bs) - 1) / uint32(bs)
	for i, b := range vrsBytes {
		start := vrsBlock + uint32(i)*vsdBlocks
		extent := blockio.Extent{Block: start, Length: descriptor.VolumeStructureDescriptorSize}
		if err := v.device.WriteExtents(blockio.AbsolutePartition, []blockio.Extent{extent}, b[:]); err != nil {
			return fmt.Errorf("writing VRS descriptor %d: %w", i, err)
		}
	}

	for _, avdp := range v.result.Anchors {
		buf, err := avdp.Marshal(bs)
		if err != nil {
			return fmt.Errorf("marshaling AVDP at %d: %w", avdp.Tag.TagLocation, err)
		}
		if err := v.device.WriteBlock(avdp.Tag.TagLocation, blockio.AbsolutePartition, padBlock(buf, bs)); err != nil {
			return fmt.Errorf("writing AVDP at %d: %w", avdp.Tag.TagLocation, err)
		}
	}

	if err := v.writeVDS(v.result.MainVDS); err != nil {
		return fmt.Errorf("writing Main VDS: %w", err)
	}
	if err := v.writeVDS(v.result.ReserveVDS); err != nil {
		return fmt.Errorf("writing Reserve VDS: %w", err)
	}

	lvidExtent := v.builder.extents.OfType(descriptor.SpaceLVID)[0]
	lvidBuf, err := withTag(v.result.LVID.Tag, v.result.LVID.Marshal)
	if err != nil {
		return fmt.Errorf("marshaling LVID: %w", err)
	}
	if err := v.device.WriteExtents(blockio.AbsolutePartition, []blockio.Extent{{Block: lvidExtent.Block, Length: uint32(len(lvidBuf))}}, lvidBuf); err != nil {
		return fmt.Errorf("writing LVID: %w", err)
	}

	partition, _ := v.builder.PartitionExtent()
	fsdBuf, err := withTag(v.result.FSD.Tag, func() ([]byte, error) { return v.result.FSD.Marshal(v.opts.codec) })
	if err != nil {
		return fmt.Errorf("marshaling FSD: %w", err)
	}
	if err := v.device.WriteBlock(partition.Block, blockio.AbsolutePartition, padBlock(fsdBuf, bs)); err != nil {
		return fmt.Errorf("writing FSD: %w", err)
	}

	// rootRel is the partition-relative block CreateFileEntry assigned
	// the root File Entry (what its tag's TagLocation carries, per
	// ECMA-167's "relative to the partition" convention); rootAbs is
	// where that block actually lives on the device.
	rootRel := v.rootFEBlock()
	rootAbs := partition.Block + rootRel
	feBuf, err := v.result.RootFE.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling root File Entry: %w", err)
	}
	if err := v.device.WriteBlock(rootAbs, blockio.AbsolutePartition, padBlock(feBuf, bs)); err != nil {
		return fmt.Errorf("writing root File Entry: %w", err)
	}

	dirBuf, err := v.result.RootDir.RestampTagLocations(rootRel+1, 1)
	if err != nil {
		return fmt.Errorf("marshaling root directory: %w", err)
	}
	if err := v.device.WriteBlock(rootAbs+1, blockio.AbsolutePartition, padBlock(dirBuf, bs)); err != nil {
		return fmt.Errorf("writing root directory: %w", err)
	}

	return v.device.Sync()
}

// withTag prepends a descriptor's 16-byte tag to a payload-only
// Marshal result; every Volume Descriptor Set member and the LVID and
// FSD marshal their payload alone and carry the tag as a separate
// field (descriptor.*.Tag), unlike the VRS/AVDP/terminator/FID/File
// Entry encoders, which embed the tag themselves.
func withTag(t tag.Tag, marshalPayload func() ([]byte, error)) ([]byte, error) {
	payload, err := marshalPayload()
	if err != nil {
		return nil, err
	}
	raw := t.Marshal()
	out := make([]byte, tag.Size+len(payload))
	copy(out, raw[:])
	copy(out[tag.Size:], payload)
	return out, nil
}

// readTaggedDescriptor reads the block at the given absolute device
// address, verifies its tag (expecting TagLocation to equal that same
// address), and returns the payload that follows it. For PVD/PD/LVD,
// which live directly on the volume, the device address and the tag
// location coincide.
func readTaggedDescriptor(dev *blockio.Device, block uint32, wantIdentifier uint16) ([]byte, error) {
	return readTaggedDescriptorAt(dev, block, block, wantIdentifier)
}

// readTaggedDescriptorAt reads the block at devBlock (an absolute
// device address) and verifies its tag against tagBlock, which may
// differ when the descriptor lives inside a partition and its tag was
// stamped with a partition-relative location (e.g. the FSD).
func readTaggedDescriptorAt(dev *blockio.Device, devBlock, tagBlock uint32, wantIdentifier uint16) ([]byte, error) {
	buf, err := dev.ReadBlock(devBlock, blockio.AbsolutePartition)
	if err != nil {
		return nil, err
	}
	if len(buf) < tag.Size {
		return nil, fmt.Errorf("block %d too short for a tag", devBlock)
	}
	var rawTag [tag.Size]byte
	copy(rawTag[:], buf[:tag.Size])
	payload := buf[tag.Size:]
	if _, ok := tag.Verify(rawTag, payload, wantIdentifier, tagBlock); !ok {
		return nil, fmt.Errorf("tag verification failed at block %d (identifier %#x)", devBlock, wantIdentifier)
	}
	return payload, nil
}

// readVDSBestEffort reads the five non-terminator Volume Descriptor Set
// members starting at block, at the fixed offsets setupVDS lays them
// out at (PVD+0, PD+1, USD+2, IUVD+3, LVD+4, terminator+5), skipping
// any member whose tag fails to verify rather than failing outright.
// Open uses this for the Reserve sequence, which may legitimately
// disagree with or be missing relative to the Main sequence, and for
// the Main sequence's USD and IUVD.
func readVDSBestEffort(dev *blockio.Device, codec udfenc.Codec, block uint32) descriptor.VolumeDescriptorSet {
	var set descriptor.VolumeDescriptorSet
	if payload, err := readTaggedDescriptor(dev, block, tag.IdentPVD); err == nil {
		if pvd, err := descriptor.UnmarshalPVD(codec, payload); err == nil {
			set.Primary = pvd
		}
	}
	if payload, err := readTaggedDescriptor(dev, block+1, tag.IdentPD); err == nil {
		if pd, err := descriptor.UnmarshalPD(payload); err == nil {
			set.Partition = pd
		}
	}
	if payload, err := readTaggedDescriptor(dev, block+2, tag.IdentUSD); err == nil {
		if usd, err := descriptor.UnmarshalUSD(payload); err == nil {
			set.Unallocated = usd
		}
	}
	if payload, err := readTaggedDescriptor(dev, block+3, tag.IdentIUVD); err == nil {
		if iuvd, err := descriptor.UnmarshalIUVD(codec, payload); err == nil {
			set.ImplementationUse = iuvd
		}
	}
	if payload, err := readTaggedDescriptor(dev, block+4, tag.IdentLVD); err == nil {
		if lvd, err := descriptor.UnmarshalLVD(codec, payload); err == nil {
			set.Logical = lvd
		}
	}
	return set
}

// rootFEBlock recovers the partition-relative block CreateFileEntry
// assigned the root File Entry, which Setup.setupFileSetAndRoot
// already threaded into the FSD's RootDirectoryICB.
func (v *Volume) rootFEBlock() uint32 {
	return v.result.FSD.RootDirectoryICB.Block
}

type vdsMember struct {
	block uint32
	buf   []byte
}

func (v *Volume) writeVDS(set descriptor.VolumeDescriptorSet) error {
	bs := v.device.BlockSize()

	pvdBuf, err := withTag(set.Primary.Tag, func() ([]byte, error) { return set.Primary.Marshal(v.opts.codec) })
	if err != nil {
		return fmt.Errorf("PVD: %w", err)
	}
	pdBuf, err := withTag(set.Partition.Tag, set.Partition.Marshal)
	if err != nil {
		return fmt.Errorf("PD: %w", err)
	}
	usdBuf, err := withTag(set.Unallocated.Tag, func() ([]byte, error) { return set.Unallocated.Marshal(), nil })
	if err != nil {
		return fmt.Errorf("USD: %w", err)
	}
	iuvdBuf, err := withTag(set.ImplementationUse.Tag, func() ([]byte, error) { return set.ImplementationUse.Marshal(v.opts.codec) })
	if err != nil {
		return fmt.Errorf("IUVD: %w", err)
	}
	lvdBuf, err := withTag(set.Logical.Tag, func() ([]byte, error) { return set.Logical.Marshal(v.opts.codec) })
	if err != nil {
		return fmt.Errorf("LVD: %w", err)
	}
	tdBuf, err := set.Terminator.Marshal(bs)
	if err != nil {
		return fmt.Errorf("TD: %w", err)
	}

	members := []vdsMember{
		{set.Primary.Tag.TagLocation, pvdBuf},
		{set.Partition.Tag.TagLocation, pdBuf},
		{set.Unallocated.Tag.TagLocation, usdBuf},
		{set.ImplementationUse.Tag.TagLocation, iuvdBuf},
		{set.Logical.Tag.TagLocation, lvdBuf},
		{set.Terminator.Tag.TagLocation, tdBuf},
	}
	for _, m := range members {
		if err := v.device.WriteBlock(m.block, blockio.AbsolutePartition, padBlock(m.buf, bs)); err != nil {
			return fmt.Errorf("writing descriptor at block %d: %w", m.block, err)
		}
	}
	return nil
}

func padBlock(b []byte, blockSize int) []byte {
	if len(b) == blockSize {
		return b
	}
	if len(b) > blockSize {
		return b[:blockSize]
	}
	out := make([]byte, blockSize)
	copy(out, b)
	return out
}

// RootDirectory returns the in-memory root directory the volume was
// created with.
func (v *Volume) RootDirectory() *directory.Directory {
	return v.result.RootDir
}

// RootFileEntry returns the root directory's File Entry.
func (v *Volume) RootFileEntry() *fileentry.FileEntry {
	return v.result.RootFE
}

// Allocator exposes the partition's Space Manager for the Maintenance
// Engine's create/remove operations.
func (v *Volume) Allocator() space.Allocator {
	return v.alloc
}

// UniqueIDs exposes the volume's uniqueID source for the Maintenance
// Engine's create operations.
func (v *Volume) UniqueIDs() fileentry.UniqueIDSource {
	return v.ids
}

// Counters exposes the LVID's per-partition file/directory counts,
// satisfying both fileentry.Counters (create) and directory.Counters
// (delete) for the Maintenance Engine.
func (v *Volume) Counters() *fileCounters {
	return v.counts
}

// Device exposes the backing block device for the Maintenance Engine's
// content read/write.
func (v *Volume) Device() *blockio.Device {
	return v.device
}

// PartitionStart returns the partition's absolute starting block, the
// offset the Maintenance Engine must add to every partition-relative
// block number before calling Device with blockio.AbsolutePartition.
func (v *Volume) PartitionStart() uint32 {
	partition, _ := v.builder.PartitionExtent()
	return partition.Block
}

// Codec returns the dstring (CS0) codec this volume was opened/created
// with.
func (v *Volume) Codec() udfenc.Codec {
	return v.opts.codec
}

// ImplementationIdent returns the implementation identifier regid
// stamped into descriptors this volume writes.
func (v *Volume) ImplementationIdent() primitive.Regid {
	return v.opts.implIdent
}

// VolumeClock returns the clock this volume was opened/created with,
// for stamping new File Entries and FIDs at the same "now" the rest of
// the volume uses.
func (v *Volume) VolumeClock() Clock {
	return v.opts.clock
}

// BlockSize returns the volume's logical block size in bytes.
func (v *Volume) BlockSize() int {
	return v.opts.blockSize
}

// Anchors returns the Anchor Volume Descriptor Pointers this volume was
// created with, for the Checker's anchor-reachability pass (spec.md
// §4.K invariant 1).
func (v *Volume) Anchors() []descriptor.AnchorVolumeDescriptorPointer {
	return v.result.Anchors
}

// MainVDS returns the Main Volume Descriptor Sequence's parsed members.
func (v *Volume) MainVDS() descriptor.VolumeDescriptorSet {
	return v.result.MainVDS
}

// ReserveVDS returns the Reserve Volume Descriptor Sequence's parsed
// members. After Open it holds only the members whose tags verified,
// since Open reads the Reserve sequence best-effort.
func (v *Volume) ReserveVDS() descriptor.VolumeDescriptorSet {
	return v.result.ReserveVDS
}

// LVIDDescriptor returns the volume's Logical Volume Integrity
// Descriptor as last read or written.
func (v *Volume) LVIDDescriptor() descriptor.LogicalVolumeIntegrityDescriptor {
	return v.result.LVID
}

// FileSetDescriptor returns the volume's File Set Descriptor.
func (v *Volume) FileSetDescriptor() descriptor.FileSetDescriptor {
	return v.result.FSD
}

// TotalBlocks returns the device geometry this volume was laid out
// over, the upper bound the Checker validates every block reference
// against.
func (v *Volume) TotalBlocks() uint32 {
	return v.builder.Blocks()
}

// PartitionLength returns the logical partition's length in blocks.
func (v *Volume) PartitionLength() uint32 {
	partition, _ := v.builder.PartitionExtent()
	return partition.Length
}

// PartitionNumber returns the partition index stamped into ICB tags'
// ParentICBPartitionRef and FID longad PartitionRef fields. This
// module only ever lays out a single partition, so it is always 0.
func (v *Volume) PartitionNumber() uint16 {
	return 0
}

// valueSource is satisfied by fileentry.Counter: it reports the
// current (not-yet-assigned) counter value without advancing it, so
// Close can persist it back into the LVID for the next Open to resume
// from (spec.md §4.K invariant 4, "uniqueID monotonicity").
type valueSource interface {
	Value() uint64
}

// Close rewrites the LVID closed and flushes the device, per the
// ordering guarantee that a volume only claims to be consistent once
// its LVID says CLOSED (spec.md §5).
func (v *Volume) Close() error {
	if vs, ok := v.ids.(valueSource); ok {
		v.result.LVID = v.result.LVID.WithUniqueIDCounter(vs.Value())
	}
	v.result.LVID = CloseLVID(v.result.LVID)
	lvidExtent := v.builder.extents.OfType(descriptor.SpaceLVID)[0]
	buf, err := withTag(v.result.LVID.Tag, v.result.LVID.Marshal)
	if err != nil {
		return fmt.Errorf("volume: Close: marshaling closed LVID: %w", err)
	}
	if err := v.device.WriteExtents(blockio.AbsolutePartition, []blockio.Extent{{Block: lvidExtent.Block, Length: uint32(len(buf))}}, buf); err != nil {
		return fmt.Errorf("volume: Close: writing closed LVID: %w", err)
	}
	return v.device.Sync()
}

// Open parses an existing volume on dev: reads the anchor at block
// 256, follows it to the Main VDS, reads the LVID-adjacent descriptors
// and the FSD, and loads the root directory's FID stream into memory.
func Open(dev *blockio.Device, opts ...Option) (*Volume, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	rawAVDP, err := dev.ReadBlock(256, blockio.AbsolutePartition)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: reading anchor: %w", err)
	}
	anchor, err := descriptor.UnmarshalAVDP(rawAVDP, 256)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: unmarshaling anchor: %w", err)
	}

	mainBlock := anchor.MainVolDescSeqExtent.Location
	pvdPayload, err := readTaggedDescriptor(dev, mainBlock, tag.IdentPVD)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: reading PVD: %w", err)
	}
	pvd, err := descriptor.UnmarshalPVD(o.codec, pvdPayload)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: unmarshaling PVD: %w", err)
	}

	// The Reserve sequence is read best-effort: a Checker wants to see
	// it even when it disagrees with the Main sequence, so a failure
	// here leaves ReserveVDS partially populated rather than aborting
	// the whole Open.
	reserveVDS := readVDSBestEffort(dev, o.codec, anchor.ReserveVolDescSeqExtent.Location)

	pdPayload, err := readTaggedDescriptor(dev, mainBlock+1, tag.IdentPD)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: reading PD: %w", err)
	}
	pd, err := descriptor.UnmarshalPD(pdPayload)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: unmarshaling PD: %w", err)
	}

	lvdPayload, err := readTaggedDescriptor(dev, mainBlock+4, tag.IdentLVD)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: reading LVD: %w", err)
	}
	lvd, err := descriptor.UnmarshalLVD(o.codec, lvdPayload)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: unmarshaling LVD: %w", err)
	}

	lvidPayload, err := readTaggedDescriptor(dev, lvd.IntegritySeqExtent.Location, tag.IdentLVID)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: reading LVID: %w", err)
	}
	lvid, err := descriptor.UnmarshalLVID(lvidPayload)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: unmarshaling LVID: %w", err)
	}
	if lvid, err = lvid.WithTag(1, lvd.IntegritySeqExtent.Location); err != nil {
		return nil, fmt.Errorf("volume: Open: retagging LVID: %w", err)
	}

	// USD and IUVD are not load-bearing for Open itself (nothing else
	// in this package consults them) but the Checker's VDS-duplication
	// pass wants the full Main sequence to compare against Reserve.
	mainVDS := readVDSBestEffort(dev, o.codec, mainBlock)
	mainVDS.Primary, mainVDS.Partition, mainVDS.Logical = pvd, pd, lvd

	// The FSD's tag was stamped at partition-relative block 0 (see
	// Setup.setupFileSetAndRoot), even though it lives at the absolute
	// device address PartitionStartingLocation.
	fsdPayload, err := readTaggedDescriptorAt(dev, pd.PartitionStartingLocation, 0, tag.IdentFSD)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: reading FSD: %w", err)
	}
	fsd, err := descriptor.UnmarshalFSD(o.codec, fsdPayload)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: unmarshaling FSD: %w", err)
	}

	// rootRel is the partition-relative block the root File Entry's tag
	// was stamped with at create time (ECMA-167's "relative to the
	// partition" convention); rootAbs is where it actually lives on the
	// device. Tag verification must use the former, device I/O the latter.
	rootRel := fsd.RootDirectoryICB.Block
	rootAbs := pd.PartitionStartingLocation + rootRel
	feBuf, err := dev.ReadBlock(rootAbs, blockio.AbsolutePartition)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: reading root File Entry: %w", err)
	}
	rootFE, _, err := fileentry.UnmarshalFE(feBuf, rootRel)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: unmarshaling root File Entry: %w", err)
	}

	dirBuf, err := dev.ReadBlock(rootAbs+1, blockio.AbsolutePartition)
	if err != nil {
		return nil, fmt.Errorf("volume: Open: reading root directory: %w", err)
	}
	var fids []directory.FID
	for off := 0; off < len(dirBuf); {
		fid, rest, ferr := directory.UnmarshalFID(dirBuf[off:], rootRel+1)
		if ferr != nil {
			break
		}
		fids = append(fids, fid)
		off = len(dirBuf) - len(rest)
	}
	rootDir := directory.New(rootRel, fids)

	builder := NewBuilder(Params{
		Blocks:    pd.PartitionStartingLocation + pd.PartitionLength,
		BlockSize: o.blockSize,
		Media:     o.media,
	}, o.sizing)
	builder.extents.Place(Extent{Type: descriptor.SpacePVDS, Block: mainBlock, Length: 6})
	builder.extents.Place(Extent{Type: descriptor.SpacePSPACE, Block: pd.PartitionStartingLocation, Length: pd.PartitionLength})
	lvidBlocks := (uint32(tag.Size+len(lvidPayload)) + uint32(o.blockSize) - 1) / uint32(o.blockSize)
	builder.extents.Place(Extent{Type: descriptor.SpaceLVID, Block: lvd.IntegritySeqExtent.Location, Length: lvidBlocks})

	result := Result{
		Anchors:    []descriptor.AnchorVolumeDescriptorPointer{anchor},
		MainVDS:    mainVDS,
		ReserveVDS: reserveVDS,
		LVID:       lvid,
		FSD:        fsd,
		RootDir:    rootDir,
		RootFE:     &rootFE,
	}

	alloc := space.NewBitmapAllocator(pd.PartitionLength, space.AllocationAlignment)
	v := &Volume{
		device:  dev,
		builder: builder,
		result:  result,
		alloc:   alloc,
		ids:     fileentry.NewCounter(lvid.UniqueIDCounter()),
		counts:  &fileCounters{files: lvid.ImplUse.NumFiles, dirs: lvid.ImplUse.NumDirs},
		opts:    o,
	}
	o.logger.Info("opened volume", "volIdentifier", pvd.VolIdentifier, "partitionBlock", pd.PartitionStartingLocation)
	return v, nil
}
