package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/go-udf/udfkit/pkg/primitive"
)

// SparingIdent is the entity identifier at the head of every sparing
// table (UDF 2.2.12), which is not tag-and-CRC protected like the
// ECMA-167 descriptors — it carries its own regid header instead.
const SparingIdent = "*UDF Sparing Table"

// SparingEntrySize is the fixed size of one (origLocation, mapped
// Location) sparing-table entry.
const SparingEntrySize = 16

// SparingEntry is one mapping in a sparing table: a defective original
// packet location remapped to a spare location. An unused entry has
// OrigLocation == 0xFFFFFFFF.
type SparingEntry struct {
	OrigLocation   uint32
	MappedLocation uint32
}

// UnusedOrigLocation marks an unused sparing entry (spec.md §3).
const UnusedOrigLocation = 0xFFFFFFFF

// SparingTable is the sorted-by-origLocation array of remap entries for
// defective packets on rewritable packet media (spec.md §4.C).
type SparingTable struct {
	SequenceNumber uint32
	Entries        []SparingEntry
}

// Marshal serializes the sparing table to its on-disc form: regid
// header, reallocationTableLen, sequence number, then the entries.
func (s SparingTable) Marshal() ([]byte, error) {
	id, err := primitive.NewUDFRegid(SparingIdent, 0).Marshal()
	if err != nil {
		return nil, fmt.Errorf("descriptor: marshal sparing table ident: %w", err)
	}
	b := make([]byte, primitive.RegidSize+8+len(s.Entries)*SparingEntrySize)
	copy(b[0:primitive.RegidSize], id[:])
	o := primitive.RegidSize
	binary.LittleEndian.PutUint16(b[o:o+2], uint16(len(s.Entries)))
	o += 2
	o += 2 // reserved
	binary.LittleEndian.PutUint32(b[o:o+4], s.SequenceNumber)
	o += 4
	for _, e := range s.Entries {
		binary.LittleEndian.PutUint32(b[o:o+4], e.OrigLocation)
		binary.LittleEndian.PutUint32(b[o+4:o+8], e.MappedLocation)
		o += SparingEntrySize
	}
	return b, nil
}

// UnmarshalSparingTable parses a sparing table from its on-disc bytes.
func UnmarshalSparingTable(b []byte) (SparingTable, error) {
	if len(b) < primitive.RegidSize+8 {
		return SparingTable{}, fmt.Errorf("descriptor: sparing table buffer too short")
	}
	var id [primitive.RegidSize]byte
	copy(id[:], b[:primitive.RegidSize])
	regid := primitive.UnmarshalRegid(id)
	if regid.Ident != SparingIdent {
		return SparingTable{}, fmt.Errorf("descriptor: sparing table has unexpected identifier %q", regid.Ident)
	}
	o := primitive.RegidSize
	n := binary.LittleEndian.Uint16(b[o : o+2])
	o += 4
	seq := binary.LittleEndian.Uint32(b[o : o+4])
	o += 4

	st := SparingTable{SequenceNumber: seq}
	for i := 0; i < int(n); i++ {
		if o+SparingEntrySize > len(b) {
			return st, fmt.Errorf("descriptor: sparing table truncated at entry %d", i)
		}
		st.Entries = append(st.Entries, SparingEntry{
			OrigLocation:   binary.LittleEndian.Uint32(b[o : o+4]),
			MappedLocation: binary.LittleEndian.Uint32(b[o+4 : o+8]),
		})
		o += SparingEntrySize
	}
	return st, nil
}

// Lookup returns the mapped location for orig via binary search,
// or orig itself if not present in the table.
func (s SparingTable) Lookup(orig uint32) uint32 {
	lo, hi := 0, len(s.Entries)
	for lo < hi {
		mid := (lo + hi) / 2
		e := s.Entries[mid]
		switch {
		case e.OrigLocation == UnusedOrigLocation || e.OrigLocation > orig:
			hi = mid
		case e.OrigLocation < orig:
			lo = mid + 1
		default:
			return e.MappedLocation
		}
	}
	return orig
}
