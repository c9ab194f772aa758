// Command udfcheck verifies (and optionally repairs) a UDF volume
// image against the seven structural invariants pkg/checker enforces,
// exiting with the taxonomy spec.md §6 defines for the image checker.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"

	"github.com/go-udf/udfkit/internal/logging"
	"github.com/go-udf/udfkit/pkg/blockio"
	"github.com/go-udf/udfkit/pkg/checker"
	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/volume"
)

// Exit codes per spec.md §6's "Image checker" row.
const (
	exitClean         = 0
	exitUnfixed       = 4
	exitProgramError  = 8
	exitBadArgs       = 16
	exitUserInterrupt = 32
)

// singlePartitionLocator resolves every partition index to block 0,
// the layout every volume this toolkit formats uses (spec.md §4.A).
type singlePartitionLocator struct{}

func (singlePartitionLocator) PartitionStart(partition int) (uint32, error) { return 0, nil }

func main() {
	var (
		checkOnly   bool
		fix         bool
		verbose     bool
		veryVerbose bool
		blockSize   int
	)

	root := &cobra.Command{
		Use:   "udfcheck <device>",
		Short: "Verify and optionally repair a UDF volume image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], fix, verbose, veryVerbose, blockSize)
		},
		SilenceUsage: true,
	}
	root.Flags().BoolVarP(&checkOnly, "check", "c", true, "report findings without repairing (default)")
	root.Flags().BoolVarP(&fix, "patch", "p", false, "repair what can be repaired instead of only reporting")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "report warning-level findings in addition to errors")
	root.Flags().BoolVar(&veryVerbose, "vv", false, "report every finding, including info-level observations")
	root.Flags().IntVarP(&blockSize, "block-size", "b", 2048, "logical block size in bytes")

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)
	go func() {
		<-interrupted
		fmt.Fprintln(os.Stderr, "udfcheck: interrupted")
		os.Exit(exitUserInterrupt)
	}()

	if err := root.Execute(); err != nil {
		if _, ok := err.(argError); ok {
			os.Exit(exitBadArgs)
		}
		fmt.Fprintln(os.Stderr, "udfcheck:", err)
		os.Exit(exitProgramError)
	}
}

// argError marks a RunE failure as a bad-arguments condition (exit 16)
// rather than a program error (exit 8).
type argError struct{ error }

func run(path string, fix, verbose, veryVerbose bool, blockSize int) error {
	if blockSize <= 0 {
		return argError{fmt.Errorf("block size must be positive, got %d", blockSize)}
	}

	verbosity := 0
	switch {
	case veryVerbose:
		verbosity = logging.LevelTrace
	case verbose:
		verbosity = logging.LevelDebug
	}
	sink := funcr.New(func(prefix, args string) {
		fmt.Fprintln(os.Stderr, prefix, args)
	}, funcr.Options{Verbosity: verbosity})
	logger := logging.NewLogger(logr.New(sink))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dev := blockio.NewDevice(f, f, blockSize, singlePartitionLocator{})

	vol, err := volume.Open(dev,
		volume.WithBlockSize(blockSize),
		volume.WithCodec(udfenc.Default{}),
		volume.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("opening volume: %w", err)
	}

	c := checker.New(vol)

	var report checker.Report
	if fix {
		report, err = c.Fix()
		if err != nil {
			return fmt.Errorf("fix: %w", err)
		}
	} else {
		report = c.Check()
	}

	threshold := checker.Error
	switch {
	case veryVerbose:
		threshold = checker.Info
	case verbose:
		threshold = checker.Warning
	}

	for _, finding := range report.Findings {
		if finding.Severity < threshold {
			continue
		}
		suffix := ""
		if finding.Fixed {
			suffix = " (fixed)"
		}
		fmt.Println(finding.String() + suffix)
	}

	code := report.ExitCode()
	if code != exitClean {
		os.Exit(code)
	}
	return nil
}
