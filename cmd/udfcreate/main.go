// Command udfcreate formats a blank UDF volume image, the way mkudffs
// formats a device, wiring the Volume Builder's media-type sizing
// table, UUID generation, and revision parsing (spec.md §6 "Volume
// creator").
package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"

	"github.com/go-udf/udfkit/internal/config"
	"github.com/go-udf/udfkit/internal/logging"
	"github.com/go-udf/udfkit/internal/mediatab"
	"github.com/go-udf/udfkit/internal/revision"
	"github.com/go-udf/udfkit/internal/volidutil"
	"github.com/go-udf/udfkit/pkg/blockio"
	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/primitive"
	"github.com/go-udf/udfkit/pkg/volume"
)

type singlePartitionLocator struct{}

func (singlePartitionLocator) PartitionStart(partition int) (uint32, error) { return 0, nil }

var mediaNames = map[string]volume.MediaType{
	"hd":     volume.MediaHD,
	"dvd":    volume.MediaDVD,
	"dvdram": volume.MediaDVDRAM,
	"dvdrw":  volume.MediaDVDRW,
	"dvdr":   volume.MediaDVDR,
	"worm":   volume.MediaWORM,
	"mo":     volume.MediaMO,
	"cdrw":   volume.MediaCDRW,
	"cdr":    volume.MediaCDR,
	"cd":     volume.MediaCD,
	"bdr":    volume.MediaBDR,
}

func main() {
	defaults, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "udfcreate: warning: reading ~/.udfkitrc:", err)
	}

	var (
		blocks     uint32
		mediaFlag  string
		blockSize  int
		revFlag    string
		label      string
		uuidFlag   string
		vsid       string
		fsid       string
		owner      string
		org        string
		closed     bool
		sparable   bool
		packetLen  uint32
		appendOnly bool
		verbose    bool
	)

	if defaults.MediaType != "" {
		mediaFlag = defaults.MediaType
	} else {
		mediaFlag = "hd"
	}
	if defaults.BlockSize != 0 {
		blockSize = defaults.BlockSize
	} else {
		blockSize = 2048
	}
	revFlag = defaults.Revision
	if revFlag == "" {
		revFlag = "2.01"
	}
	owner = defaults.Owner
	org = defaults.Organization

	root := &cobra.Command{
		Use:   "udfcreate <device>",
		Short: "Format a blank UDF volume image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], blocks, mediaFlag, blockSize, revFlag, label, uuidFlag, vsid, fsid, owner, org, closed, sparable, packetLen, appendOnly, verbose)
		},
		SilenceUsage: true,
	}

	flags := root.Flags()
	flags.Uint32VarP(&blocks, "blocks", "b", 0, "volume size in logical blocks (required)")
	flags.StringVarP(&mediaFlag, "media-type", "m", mediaFlag, "media type: hd,dvd,dvdram,dvdrw,dvdr,worm,mo,cdrw,cdr,cd,bdr")
	flags.IntVar(&blockSize, "blocksize", blockSize, "logical block size in bytes")
	flags.StringVar(&revFlag, "udfrev", revFlag, "UDF revision, e.g. 2.01")
	flags.StringVarP(&label, "label", "l", "", "logical volume label")
	flags.StringVar(&uuidFlag, "uuid", "", "16 hex character volume uuid (generated if omitted)")
	flags.StringVar(&vsid, "vsid", "", "volume set identifier")
	flags.StringVar(&fsid, "fsid", "", "file set identifier")
	flags.StringVar(&owner, "uid", owner, "owner identifier stamped into the root directory")
	flags.StringVar(&org, "gid", org, "organization identifier stamped into the root directory")
	flags.BoolVar(&closed, "closed", false, "format for closed (finalized) media: add the N-257 anchor")
	flags.BoolVar(&sparable, "spartable", false, "enable the sparing table for packet-rewritable media")
	flags.Uint32Var(&packetLen, "packetlen", 32, "sparing packet alignment in blocks")
	flags.BoolVar(&appendOnly, "vat", false, "use the VAT write strategy for write-once media")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log each layout step to stderr")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "udfcreate:", err)
		os.Exit(1)
	}
}

func run(path string, blocks uint32, mediaFlag string, blockSize int, revFlag, label, uuidFlag, vsid, fsid, owner, org string, closed, sparable bool, packetLen uint32, appendOnly, verbose bool) error {
	if blocks == 0 {
		return fmt.Errorf("--blocks is required")
	}
	media, ok := mediaNames[mediaFlag]
	if !ok {
		return fmt.Errorf("unknown media type %q", mediaFlag)
	}
	rev, err := revision.Parse(revFlag)
	if err != nil {
		return err
	}
	if uuidFlag == "" {
		uuidFlag = volidutil.Generate()
	} else if err := volidutil.Validate(uuidFlag); err != nil {
		return err
	}
	if label == "" {
		label = uuidFlag
	}
	if vsid == "" {
		vsid = uuidFlag
	}
	if fsid == "" {
		fsid = label
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	size := int64(blocks) * int64(blockSize)
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("sizing %s to %d bytes: %w", path, size, err)
	}

	dev := blockio.NewDevice(f, f, blockSize, singlePartitionLocator{})

	verbosity := 0
	if verbose {
		verbosity = logging.LevelDebug
	}
	sink := funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, prefix, args)
	}, funcr.Options{Verbosity: verbosity})
	logger := logging.NewLogger(logr.New(sink))

	opts := []volume.Option{
		volume.WithBlockSize(blockSize),
		volume.WithMediaType(media),
		volume.WithRevision(uint16(rev)),
		volume.WithSizingTable(mediatab.Default()),
		volume.WithCodec(udfenc.Default{}),
		volume.WithLogger(logger),
		volume.WithClosed(closed),
		volume.WithAppendOnly(appendOnly),
		volume.WithIdentity(volume.Identity{
			VolIdentifier:    label,
			VolSetIdentifier: vsid,
			LogicalVolIdent:  fsid,
			Owner:            owner,
			Organization:     org,
		}),
		volume.WithImplementationIdent(primitive.NewUDFRegid("*go-udf/udfkit", uint16(rev))),
	}
	if sparable {
		opts = append(opts, volume.WithSparable(packetLen))
	}

	vol, err := volume.Create(dev, blocks, opts...)
	if err != nil {
		return fmt.Errorf("creating volume: %w", err)
	}
	if err := vol.Close(); err != nil {
		return fmt.Errorf("closing volume: %w", err)
	}

	fmt.Printf("formatted %s: %d blocks, %s, udfrev %s, uuid %s\n", path, blocks, mediaFlag, rev, uuidFlag)
	return nil
}
