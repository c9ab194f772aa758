// Package vat implements the Virtual Allocation Table engine used by
// append-only media: it maps virtual block numbers assigned to every
// persisted object onto their physical location, and rebuilds/extends
// that mapping across write sessions (spec.md §4.F).
package vat

import (
	"encoding/binary"
	"fmt"

	"github.com/go-udf/udfkit/internal/udferr"
	"github.com/go-udf/udfkit/pkg/primitive"
)

// Unmapped marks a VAT slot with no physical location (spec.md §3
// "VAT").
const Unmapped = 0xFFFFFFFF

// VATIdent is the entity identifier carried in the VAT 1.50 trailing
// regid (OSTA UDF 2.2.10).
const VATIdent = "*UDF Virtual Alloc Tbl"

// Format distinguishes the two on-disc VAT encodings.
type Format int

const (
	Format150 Format = iota // UNDEF file type, trailing regid
	Format200               // VAT20 file type, leading header
)

// Header20 is the leading header carried by VAT 2.00+ (spec.md §4.F).
type Header20 struct {
	NumFiles          uint32
	NumDirs           uint32
	LogicalVolIdent   string
	PreviousVATICBLoc uint32
	MinUDFReadRev     uint16
	MinUDFWriteRev    uint16
	MaxUDFWriteRev    uint16
}

const header20FixedSize = 4 + 4 + 128 + 4 + 2 + 2 + 2

// Table is the in-memory virtual-to-physical block map for one
// append-only session, plus the bookkeeping needed to extend or
// re-derive a previous session's table.
type Table struct {
	entries            []uint32 // vbn -> physical block offset from partition start
	newVATIndex        int
	format             Format
	revision           uint16
	previousVATPhysLoc uint32
	header             Header20
}

// New starts a fresh, empty table for the given format/revision. Used
// when initialising a brand-new append-only volume.
func New(format Format, revision uint16) *Table {
	return &Table{format: format, revision: revision}
}

// Load reconstructs a table from a previously-written VAT payload (the
// content of a VAT file entry read back from disc), continuing
// allocation after its last-used slot.
func Load(format Format, revision uint16, payload []byte, previousVATPhysLoc uint32) (*Table, error) {
	t := &Table{format: format, revision: revision, previousVATPhysLoc: previousVATPhysLoc}

	body := payload
	switch format {
	case Format200:
		if len(body) < header20FixedSize {
			return nil, fmt.Errorf("vat: VAT20 payload too short for header")
		}
		hdr, rest, err := unmarshalHeader20(body)
		if err != nil {
			return nil, err
		}
		t.header = hdr
		body = rest
	case Format150:
		if len(body) >= primitive.RegidSize {
			var raw [primitive.RegidSize]byte
			copy(raw[:], body[len(body)-primitive.RegidSize:])
			regid := primitive.UnmarshalRegid(raw)
			t.previousVATPhysLoc = binary.LittleEndian.Uint32(regid.Reserved[:])
			body = body[:len(body)-primitive.RegidSize]
		}
	}

	if len(body)%4 != 0 {
		return nil, fmt.Errorf("vat: payload length %d not a multiple of 4", len(body))
	}
	t.entries = make([]uint32, len(body)/4)
	for i := range t.entries {
		t.entries[i] = binary.LittleEndian.Uint32(body[i*4 : i*4+4])
	}
	t.newVATIndex = len(t.entries)
	return t, nil
}

func unmarshalHeader20(b []byte) (Header20, []byte, error) {
	h := Header20{
		NumFiles:          binary.LittleEndian.Uint32(b[0:4]),
		NumDirs:           binary.LittleEndian.Uint32(b[4:8]),
		PreviousVATICBLoc: binary.LittleEndian.Uint32(b[136:140]),
		MinUDFReadRev:     binary.LittleEndian.Uint16(b[140:142]),
		MinUDFWriteRev:    binary.LittleEndian.Uint16(b[142:144]),
		MaxUDFWriteRev:    binary.LittleEndian.Uint16(b[144:146]),
	}
	h.LogicalVolIdent = trimNulString(b[8:136])
	return h, b[header20FixedSize:], nil
}

func trimNulString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// AllocVBN assigns the next unused virtual block number to a physical
// block located at physical-partition-start + physOffset, and returns
// that vbn.
func (t *Table) AllocVBN(physOffset uint32) (uint32, error) {
	if t.newVATIndex >= 0xFFFFFFFF {
		return 0, udferr.New(udferr.VatFull, "Table.AllocVBN", fmt.Errorf("virtual block number space exhausted"))
	}
	vbn := uint32(t.newVATIndex)
	if t.newVATIndex < len(t.entries) {
		t.entries[t.newVATIndex] = physOffset
	} else {
		t.entries = append(t.entries, physOffset)
	}
	t.newVATIndex++
	return vbn, nil
}

// Translate maps a virtual block number to its physical offset from
// partition start, reporting ok=false if the vbn is out of range or
// unmapped.
func (t *Table) Translate(vbn uint32) (uint32, bool) {
	if int(vbn) >= len(t.entries) {
		return 0, false
	}
	phys := t.entries[vbn]
	return phys, phys != Unmapped
}

// Unmap marks a vbn as unused, for delete of a file whose FE block
// cannot be freed on append-only media (spec.md §4.H "delete").
func (t *Table) Unmap(vbn uint32) {
	if int(vbn) < len(t.entries) {
		t.entries[vbn] = Unmapped
	}
}

// Len returns the number of slots currently in the table.
func (t *Table) Len() int {
	return len(t.entries)
}

// SetHeader20 sets the VAT 2.00+ leading header fields; ignored for
// Format150.
func (t *Table) SetHeader20(h Header20) {
	t.header = h
}

// Marshal serializes the table to its on-disc payload: leading header
// for Format200, trailing regid for Format150.
func (t *Table) Marshal() ([]byte, error) {
	body := make([]byte, len(t.entries)*4)
	for i, e := range t.entries {
		binary.LittleEndian.PutUint32(body[i*4:i*4+4], e)
	}

	switch t.format {
	case Format200:
		hdr := marshalHeader20(t.header)
		return append(hdr, body...), nil
	case Format150:
		regid := primitive.NewUDFRegid(VATIdent, t.revision)
		// The previous VAT's physical location rides in the regid's
		// reserved suffix, per spec.md §4.F step 4.
		binary.LittleEndian.PutUint32(regid.Reserved[:], t.previousVATPhysLoc)
		trailer, err := regid.Marshal()
		if err != nil {
			return nil, fmt.Errorf("vat: marshal trailer regid: %w", err)
		}
		return append(body, trailer[:]...), nil
	default:
		return nil, fmt.Errorf("vat: unknown format %d", t.format)
	}
}

func marshalHeader20(h Header20) []byte {
	b := make([]byte, header20FixedSize)
	binary.LittleEndian.PutUint32(b[0:4], h.NumFiles)
	binary.LittleEndian.PutUint32(b[4:8], h.NumDirs)
	copy(b[8:136], []byte(h.LogicalVolIdent))
	binary.LittleEndian.PutUint32(b[136:140], h.PreviousVATICBLoc)
	binary.LittleEndian.PutUint16(b[140:142], h.MinUDFReadRev)
	binary.LittleEndian.PutUint16(b[142:144], h.MinUDFWriteRev)
	binary.LittleEndian.PutUint16(b[144:146], h.MaxUDFWriteRev)
	return b
}

// PreviousVATPhysLoc returns the physical location recorded for the
// prior session's VAT, used to chain sessions together on open.
func (t *Table) PreviousVATPhysLoc() uint32 {
	return t.previousVATPhysLoc
}

// SetPreviousVATPhysLoc records where this session's VAT is about to
// be written, so the next session's trailer/header can reference it.
func (t *Table) SetPreviousVATPhysLoc(loc uint32) {
	t.previousVATPhysLoc = loc
}
