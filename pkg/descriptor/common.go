// Package descriptor implements the canonical in-memory forms of every
// ECMA-167 / OSTA-UDF volume and logical descriptor: the Volume
// Recognition Sequence, anchors, PVD/LVD/PD/USD/IUVD/LVID/FSD, the VDS
// terminator, the sparing table, and LVD partition map variants.
package descriptor

// SpaceType classifies an extent in a volume's extent list (spec.md §3
// "Extent list").
type SpaceType int

const (
	SpaceReserved SpaceType = iota
	SpaceVRS
	SpaceAnchor
	SpacePVDS
	SpaceRVDS
	SpaceLVID
	SpaceSTABLE
	SpaceSSPACE
	SpacePSPACE
	SpaceUSPACE
	SpaceBAD
)

func (s SpaceType) String() string {
	switch s {
	case SpaceReserved:
		return "RESERVED"
	case SpaceVRS:
		return "VRS"
	case SpaceAnchor:
		return "ANCHOR"
	case SpacePVDS:
		return "PVDS"
	case SpaceRVDS:
		return "RVDS"
	case SpaceLVID:
		return "LVID"
	case SpaceSTABLE:
		return "STABLE"
	case SpaceSSPACE:
		return "SSPACE"
	case SpacePSPACE:
		return "PSPACE"
	case SpaceUSPACE:
		return "USPACE"
	case SpaceBAD:
		return "BAD"
	default:
		return "UNKNOWN"
	}
}

// Partition map types carried in the LVD (spec.md §4.E).
const (
	PartitionMapType1         = 1
	PartitionMapType2         = 2
	PartitionMapSparableIdent = "*UDF Sparable Partition"
	PartitionMapVirtualIdent  = "*UDF Virtual Partition"
)

// Access types for a Partition Descriptor's accessType field.
const (
	AccessTypeRead         = 1
	AccessTypeWriteOnce    = 2
	AccessTypeRewritable   = 3
	AccessTypeOverwritable = 4
)

// CharSpecSize is the fixed size of a charspec field (ECMA-167 1/7.2.1).
const CharSpecSize = 64

// CDCharSpecType is the CS0 charset type used throughout UDF.
const CDCharSpecType = 0

// CharSpec identifies a character set: a type byte plus 63 bytes of
// charset-specific information.
type CharSpec struct {
	Type uint8
	Info string
}

// CS0 is the standard OSTA-compressed-Unicode charspec every UDF
// descriptor uses.
var CS0 = CharSpec{Type: CDCharSpecType, Info: "OSTA Compressed Unicode"}

// Marshal serializes the charspec to its 64-byte on-disc form.
func (c CharSpec) Marshal() [CharSpecSize]byte {
	var b [CharSpecSize]byte
	b[0] = c.Type
	copy(b[1:CharSpecSize], c.Info)
	return b
}

// UnmarshalCharSpec parses a 64-byte charspec field.
func UnmarshalCharSpec(b [CharSpecSize]byte) CharSpec {
	end := CharSpecSize
	for end > 1 && b[end-1] == 0 {
		end--
	}
	return CharSpec{Type: b[0], Info: string(b[1:end])}
}
