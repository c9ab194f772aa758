package volume

import (
	"time"

	"github.com/go-udf/udfkit/pkg/primitive"
)

// RealClock stamps descriptors with the actual wall-clock time.
type RealClock struct{}

// Now returns the current time as a UDF Timestamp.
func (RealClock) Now() primitive.Timestamp {
	return primitive.NewTimestamp(time.Now())
}

// FixedClock always returns the same instant, for reproducible test
// and build-pipeline discs (mkudffs's recording-time-reuse behaviour,
// generalized into an injectable knob per SPEC_FULL.md).
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant as a UDF Timestamp.
func (f FixedClock) Now() primitive.Timestamp {
	return primitive.NewTimestamp(f.At)
}
