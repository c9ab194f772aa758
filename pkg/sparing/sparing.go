// Package sparing implements the UDF Sparing Engine: the sorted remap
// table that redirects defective physical packets on rewritable
// packet-written media to pre-allocated spare packets (spec.md §4.C).
package sparing

import (
	"sort"

	"github.com/go-udf/udfkit/internal/udferr"
	"github.com/go-udf/udfkit/pkg/descriptor"
)

// sentinelRemappedSpare marks a spare entry that was itself remapped,
// preventing recursive remapping (spec.md §4.C).
const sentinelRemappedSpare = 0xFFFFFFF0

// Engine maintains the in-memory sparing table, the pool of
// pre-allocated spare locations, and the redundant table copy
// locations it must be written back to at finalisation.
type Engine struct {
	table     descriptor.SparingTable
	spareLocs []uint32 // pre-allocated spare packet locations, in order of assignment
	nextSpare int
	tableLocs []uint32 // 2-4 redundant physical locations for the table
	dirty     bool
}

// New builds a sparing engine over a pre-allocated pool of spare packet
// locations (such as packets of the SSPACE extent the Volume Builder
// lays out) and
// the table's redundant storage locations.
func New(capacity int, spareLocs []uint32, tableLocs []uint32) *Engine {
	entries := make([]descriptor.SparingEntry, capacity)
	for i := range entries {
		mapped := uint32(0)
		if i < len(spareLocs) {
			mapped = spareLocs[i]
		}
		entries[i] = descriptor.SparingEntry{OrigLocation: descriptor.UnusedOrigLocation, MappedLocation: mapped}
	}
	return &Engine{
		table:     descriptor.SparingTable{Entries: entries},
		spareLocs: spareLocs,
		tableLocs: tableLocs,
	}
}

// Load reconstructs an engine from a previously-read sparing table.
func Load(table descriptor.SparingTable, spareLocs []uint32, tableLocs []uint32) *Engine {
	used := 0
	for _, e := range table.Entries {
		if e.OrigLocation != descriptor.UnusedOrigLocation {
			used++
		}
	}
	return &Engine{table: table, spareLocs: spareLocs, tableLocs: tableLocs, nextSpare: used}
}

// Table returns the current sparing table (used for persistence).
func (e *Engine) Table() descriptor.SparingTable {
	return e.table
}

// Lookup maps a physical packet location through the sparing table,
// returning orig unchanged if it is not currently spared.
func (e *Engine) Lookup(orig uint32) uint32 {
	return e.table.Lookup(orig)
}

// Remap allocates the next unused spare entry for orig, inserts it into
// the sorted table, bumps the sequence number, and marks the table
// dirty. If orig is itself a previously-assigned spare location, its
// entry is marked with the recursion-sentinel mapped location instead
// of a fresh remap, per spec.md §4.C.
func (e *Engine) Remap(orig uint32) (uint32, error) {
	for i, entry := range e.table.Entries {
		if entry.MappedLocation == orig && entry.OrigLocation != descriptor.UnusedOrigLocation {
			e.table.Entries[i].MappedLocation = sentinelRemappedSpare
			e.dirty = true
			return sentinelRemappedSpare, nil
		}
	}

	if e.nextSpare >= len(e.table.Entries) {
		return 0, udferr.New(udferr.SparingExhausted, "Engine.Remap", nil)
	}

	mapped := e.table.Entries[e.nextSpare].MappedLocation
	e.table.Entries[e.nextSpare] = descriptor.SparingEntry{OrigLocation: orig, MappedLocation: mapped}
	e.nextSpare++
	e.table.SequenceNumber++
	e.dirty = true
	e.sort()
	return mapped, nil
}

// sort keeps entries ordered by origLocation ascending, with unused
// (wildcard) entries sorted last, for binary search (spec.md §3).
func (e *Engine) sort() {
	sort.SliceStable(e.table.Entries, func(i, j int) bool {
		a, b := e.table.Entries[i], e.table.Entries[j]
		if a.OrigLocation == descriptor.UnusedOrigLocation {
			return false
		}
		if b.OrigLocation == descriptor.UnusedOrigLocation {
			return true
		}
		return a.OrigLocation < b.OrigLocation
	})
}

// Dirty reports whether the table has unflushed changes.
func (e *Engine) Dirty() bool {
	return e.dirty
}

// TableLocations returns the redundant physical locations the table
// must be flushed to at finalisation.
func (e *Engine) TableLocations() []uint32 {
	return e.tableLocs
}

// MarkClean clears the dirty flag after a successful flush.
func (e *Engine) MarkClean() {
	e.dirty = false
}
