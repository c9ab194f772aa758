// Package revision names the UDF revisions the Volume creator's
// --udfrev flag accepts (spec.md §6) and the comparisons the Volume
// Builder and LVID need against a volume's min/max write-revision
// window (spec.md §4.K invariant 4).
package revision

import "fmt"

// Revision is an ECMA-167/OSTA-UDF revision number in its packed BCD
// form (e.g. 0x0201 for UDF 2.01).
type Revision uint16

const (
	R102 Revision = 0x0102
	R150 Revision = 0x0150
	R200 Revision = 0x0200
	R201 Revision = 0x0201
	R250 Revision = 0x0250
)

// Supported lists every revision the Volume creator can format for,
// in ascending order.
var Supported = []Revision{R102, R150, R200, R201, R250}

// Parse looks up a revision by its conventional "2.01"-style string or
// its packed-hex form ("0x0201"), as accepted by --udfrev.
func Parse(s string) (Revision, error) {
	for _, r := range Supported {
		if s == r.String() || s == fmt.Sprintf("%#04x", uint16(r)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("revision: unsupported UDF revision %q", s)
}

// String renders the conventional "major.minor" form, e.g. "2.01".
func (r Revision) String() string {
	return fmt.Sprintf("%x.%02x", uint16(r)>>8, uint16(r)&0xff)
}

// Within reports whether r falls within [min, max], such as a volume's
// MinUDFWriteRev/MaxUDFWriteRev window.
func (r Revision) Within(min, max Revision) bool {
	return r >= min && r <= max
}
