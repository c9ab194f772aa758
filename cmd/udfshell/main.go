// Command udfshell is an interactive maintenance REPL over an open UDF
// volume: cp, rm, mkdir, rmdir, lsc (list volume), lsh (list host), cdc
// (cd on volume), cdh (cd on host), quit (spec.md §4.J, §6 "Maintenance"
// row).
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bgrewell/usage"
	"github.com/spf13/cobra"
	"github.com/theckman/yacspin"

	"github.com/go-udf/udfkit/internal/logging"
	"github.com/go-udf/udfkit/internal/termwidth"
	"github.com/go-udf/udfkit/pkg/blockio"
	"github.com/go-udf/udfkit/pkg/checker"
	udfenc "github.com/go-udf/udfkit/pkg/encoding"
	"github.com/go-udf/udfkit/pkg/maintenance"
	"github.com/go-udf/udfkit/pkg/volume"
)

type singlePartitionLocator struct{}

func (singlePartitionLocator) PartitionStart(partition int) (uint32, error) { return 0, nil }

func banner() {
	u := usage.NewUsage(
		usage.WithApplicationName("udfshell"),
		usage.WithApplicationDescription("udfshell is an interactive maintenance shell for UDF volume images: copy files in and out, create and remove directories, and browse both the volume and the local host filesystem."),
	)
	u.PrintUsage()
}

func main() {
	var blockSize int

	root := &cobra.Command{
		Use:   "udfshell <device>",
		Short: "Interactive maintenance shell for a UDF volume image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], blockSize)
		},
		SilenceUsage: true,
	}
	root.Flags().IntVarP(&blockSize, "block-size", "b", 2048, "logical block size in bytes")
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		banner()
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "udfshell:", err)
		os.Exit(1)
	}
}

func run(path string, blockSize int) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dev := blockio.NewDevice(f, f, blockSize, singlePartitionLocator{})
	vol, err := volume.Open(dev,
		volume.WithBlockSize(blockSize),
		volume.WithCodec(udfenc.Default{}),
		volume.WithLogger(logging.Default()),
	)
	if err != nil {
		return fmt.Errorf("opening volume: %w", err)
	}

	sh := &shell{
		eng:    maintenance.New(vol),
		vol:    vol,
		hostWd: ".",
		out:    os.Stdout,
	}

	fmt.Fprintln(sh.out, "udfshell: type 'quit' to exit, 'help' for the command list")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprintf(sh.out, "%s> ", sh.eng.Cwd())
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if sh.dispatch(line) {
			break
		}
	}
	return vol.Close()
}

// shell holds the REPL's live state: the maintenance engine driving
// the open volume, and the host-side current working directory cp/ls/
// cd track independently of the volume's cursor.
type shell struct {
	eng    *maintenance.Engine
	vol    *volume.Volume
	hostWd string
	out    io.Writer
}

// dispatch runs one REPL line, returning true when the shell should
// exit.
func (s *shell) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		banner()
	case "cp":
		s.cmdCp(args)
	case "rm":
		s.cmdRm(args)
	case "mkdir":
		s.cmdMkdir(args)
	case "rmdir":
		s.cmdRmdir(args)
	case "ln":
		s.cmdLn(args)
	case "mv":
		s.cmdMv(args)
	case "lsc":
		s.cmdLsc(args)
	case "lsh":
		s.cmdLsh(args)
	case "cdc":
		s.cmdCdc(args)
	case "cdh":
		s.cmdCdh(args)
	case "check":
		s.cmdCheck(args)
	default:
		fmt.Fprintf(s.out, "unknown command %q\n", cmd)
	}
	return false
}

func (s *shell) err(err error) {
	fmt.Fprintln(s.out, "error:", err)
}

// cmdCp copies a host path into the volume. With -r it walks the host
// directory tree recursively, showing a spinner for the duration
// (spec.md §6 "Maintenance" flags; the spinner idiom mirrors isoview's
// long-running-operation feedback).
func (s *shell) cmdCp(args []string) {
	recursive := false
	var rest []string
	for _, a := range args {
		if a == "-r" {
			recursive = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) != 2 {
		fmt.Fprintln(s.out, "usage: cp [-r] <host-src> <volume-dst>")
		return
	}
	src, dst := rest[0], rest[1]

	if !recursive {
		content, err := os.ReadFile(src)
		if err != nil {
			s.err(err)
			return
		}
		if err := s.eng.WriteFile(dst, content, true); err != nil {
			s.err(err)
		}
		return
	}

	spinner, _ := yacspin.New(yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[11],
		Suffix:        " copying",
		Message:       src,
		StopCharacter: "✓",
		StopMessage:   "copy complete",
	})
	if spinner != nil {
		_ = spinner.Start()
	}

	count := 0
	walkErr := filepath.Walk(src, func(hostPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, hostPath)
		if err != nil {
			return err
		}
		volPath := dst
		if rel != "." {
			volPath = dst + "/" + filepath.ToSlash(rel)
		}
		if info.IsDir() {
			if rel == "." {
				return nil
			}
			return s.eng.Mkdir(volPath)
		}
		content, err := os.ReadFile(hostPath)
		if err != nil {
			return err
		}
		if err := s.eng.WriteFile(volPath, content, true); err != nil {
			return err
		}
		count++
		if spinner != nil {
			_ = spinner.Message(fmt.Sprintf("%s (%d files)", hostPath, count))
		}
		return nil
	})

	if spinner != nil {
		if walkErr != nil {
			_ = spinner.StopFail()
		} else {
			_ = spinner.Stop()
		}
	}
	if walkErr != nil {
		s.err(walkErr)
	}
}

func (s *shell) cmdRm(args []string) {
	recursive := false
	var rest []string
	for _, a := range args {
		if a == "-r" || a == "-f" {
			recursive = recursive || a == "-r"
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) != 1 {
		fmt.Fprintln(s.out, "usage: rm [-r] [-f] <volume-path>")
		return
	}
	var err error
	if recursive {
		err = s.eng.RmRecursive(rest[0])
	} else {
		err = s.eng.Rm(rest[0])
	}
	if err != nil {
		s.err(err)
	}
}

func (s *shell) cmdMkdir(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: mkdir <volume-path>")
		return
	}
	if err := s.eng.Mkdir(args[0]); err != nil {
		s.err(err)
	}
}

func (s *shell) cmdRmdir(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: rmdir <volume-path>")
		return
	}
	if err := s.eng.Rmdir(args[0]); err != nil {
		s.err(err)
	}
}

func (s *shell) cmdLn(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "usage: ln <volume-src> <volume-dst>")
		return
	}
	if err := s.eng.Ln(args[0], args[1]); err != nil {
		s.err(err)
	}
}

func (s *shell) cmdMv(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "usage: mv <volume-src> <volume-dst>")
		return
	}
	if err := s.eng.Mv(args[0], args[1]); err != nil {
		s.err(err)
	}
}

func (s *shell) cmdLsc(args []string) {
	path := s.eng.Cwd()
	if len(args) == 1 {
		path = args[0]
	}
	names, err := s.eng.Ls(path)
	if err != nil {
		s.err(err)
		return
	}
	s.printColumns(names)
}

func (s *shell) cmdLsh(args []string) {
	dir := s.hostWd
	if len(args) == 1 {
		dir = args[0]
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.err(err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	s.printColumns(names)
}

func (s *shell) cmdCdc(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: cdc <volume-path>")
		return
	}
	if err := s.eng.Cd(args[0]); err != nil {
		s.err(err)
	}
}

func (s *shell) cmdCdh(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: cdh <host-path>")
		return
	}
	target := args[0]
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.hostWd, target)
	}
	info, err := os.Stat(target)
	if err != nil {
		s.err(err)
		return
	}
	if !info.IsDir() {
		s.err(fmt.Errorf("%s is not a directory", target))
		return
	}
	s.hostWd = target
}

func (s *shell) printColumns(names []string) {
	for _, row := range termwidth.Layout(names, termwidth.Columns()) {
		fmt.Fprintln(s.out, strings.Join(row, "  "))
	}
}

// cmdCheck runs pkg/checker against the open volume, optionally
// repairing what it can with "check --fix" — mirroring wrudf's habit
// of surfacing maintenance diagnostics inline rather than requiring a
// separate tool invocation.
func (s *shell) cmdCheck(args []string) {
	fix := len(args) == 1 && args[0] == "--fix"
	c := checker.New(s.vol)
	spinner, _ := yacspin.New(yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[11],
		Suffix:        " checking volume",
		StopCharacter: "✓",
		StopMessage:   "done",
	})
	if spinner != nil {
		_ = spinner.Start()
	}
	var report checker.Report
	var err error
	if fix {
		report, err = c.Fix()
	} else {
		report = c.Check()
	}
	if spinner != nil {
		if err != nil {
			_ = spinner.StopFail()
		} else {
			_ = spinner.Stop()
		}
	}
	if err != nil {
		s.err(err)
		return
	}
	for _, finding := range report.Findings {
		fmt.Fprintln(s.out, finding.String())
	}
}
