// Package mediatab supplies the Volume Builder's default media-type
// sizing table (spec.md §6 "Media types and default sizings"),
// transcribed from mkudffs' default_sizing[][] (original_source/mkudffs
// /defaults.c) into an embedded YAML document so the numbers live in
// data rather than in a wall of Go struct literals.
package mediatab

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/go-udf/udfkit/pkg/volume"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type row struct {
	Align uint32 `yaml:"align"`
	Num   uint64 `yaml:"num"`
	Denom uint64 `yaml:"denom"`
	Min   uint32 `yaml:"min"`
}

type mediaRows struct {
	VDS    row `yaml:"vds"`
	LVID   row `yaml:"lvid"`
	STABLE row `yaml:"stable"`
	SSPACE row `yaml:"sspace"`
	PSPACE row `yaml:"pspace"`
}

// Table is a volume.SizingTable backed by the embedded defaults
// document, grouping media types the way mkudffs does (HD/DVD/DVDRAM/CD
// share one row, as do CDR/BDR, per defaults.c's media-group comments).
type Table struct {
	groups map[string]mediaRows
}

// Default parses the embedded defaults document. It panics on a
// malformed document, which would mean the embedded YAML itself is
// broken — a build-time defect, not a runtime condition callers can
// recover from.
func Default() *Table {
	var raw map[string]mediaRows
	if err := yaml.Unmarshal(defaultsYAML, &raw); err != nil {
		panic(fmt.Sprintf("mediatab: embedded defaults.yaml is malformed: %v", err))
	}
	return &Table{groups: raw}
}

func groupFor(media volume.MediaType) string {
	switch media {
	case volume.MediaHD, volume.MediaDVD, volume.MediaDVDRAM, volume.MediaCD:
		return "hd"
	case volume.MediaWORM, volume.MediaMO:
		return "worm"
	case volume.MediaCDRW:
		return "cdrw"
	case volume.MediaCDR, volume.MediaBDR:
		return "cdr"
	case volume.MediaDVDRW:
		return "dvdrw"
	case volume.MediaDVDR:
		return "dvdr"
	default:
		return "hd"
	}
}

// Sizing implements volume.SizingTable.
func (t *Table) Sizing(media volume.MediaType, class volume.SizeClass) volume.Sizing {
	rows, ok := t.groups[groupFor(media)]
	if !ok {
		rows = t.groups["hd"]
	}
	var r row
	switch class {
	case volume.SizeClassVDS:
		r = rows.VDS
	case volume.SizeClassLVID:
		r = rows.LVID
	case volume.SizeClassSTABLE:
		r = rows.STABLE
	case volume.SizeClassSSPACE:
		r = rows.SSPACE
	default:
		r = rows.PSPACE
	}
	return volume.Sizing{Align: r.Align, Num: r.Num, Denom: r.Denom, MinLen: r.Min}
}
