// Package volidutil generates and validates the 16-lowercase-hex
// volume UUID the Volume creator CLI's --uuid flag accepts (spec.md
// §6 CLI surface table).
package volidutil

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generate returns a fresh 16-lowercase-hex-character volume UUID,
// the first 8 bytes of a random UUIDv4 (UDF's uniqueID-style identifiers
// are 16 hex chars, not the full 36-char dashed form).
func Generate() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}

// Validate reports whether s is exactly 16 lowercase hex characters.
func Validate(s string) error {
	if len(s) != 16 {
		return fmt.Errorf("volidutil: volume uuid must be 16 hex characters, got %d", len(s))
	}
	if s != strings.ToLower(s) {
		return fmt.Errorf("volidutil: volume uuid must be lowercase")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("volidutil: volume uuid must be hex: %w", err)
	}
	return nil
}
