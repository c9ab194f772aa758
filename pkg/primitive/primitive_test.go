package primitive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	loc := time.FixedZone("", 3600)
	in := time.Date(2023, time.March, 14, 9, 26, 53, 123456000, loc)
	ts := NewTimestamp(in)
	raw := ts.Marshal()

	back := UnmarshalTimestamp(raw)
	assert.Equal(t, ts, back)

	out := back.Time()
	assert.Equal(t, in.Year(), out.Year())
	assert.Equal(t, in.Month(), out.Month())
	assert.Equal(t, in.Day(), out.Day())
	assert.Equal(t, in.Hour(), out.Hour())
	assert.Equal(t, in.Minute(), out.Minute())
	assert.Equal(t, in.Second(), out.Second())
}

func TestRegidRoundTrip(t *testing.T) {
	r := NewUDFRegid("*OSTA UDF Compliant", 0x0201)
	raw, err := r.Marshal()
	require.NoError(t, err)

	back := UnmarshalRegid(raw)
	assert.Equal(t, "*OSTA UDF Compliant", back.Ident)
	assert.Equal(t, uint8(OSClassUnix), back.OSClass)
	assert.Equal(t, uint16(0x0201), back.UDFRev)
}

func TestRegidIdentTooLong(t *testing.T) {
	r := Regid{Ident: "this identifier is far too long to fit in 23 bytes"}
	_, err := r.Marshal()
	assert.Error(t, err)
}

func TestExtentADPacksTypeInTopBits(t *testing.T) {
	e := ExtentAD{Length: 2048, Location: 100, Type: ExtentNotRecordedAllocated}
	raw := e.Marshal()

	back := UnmarshalExtentAD(raw)
	assert.Equal(t, e, back)
}

func TestShortADRoundTrip(t *testing.T) {
	s := ShortAD{Length: 4096, Block: 55, Type: ExtentRecordedAllocated}
	back := UnmarshalShortAD(s.Marshal())
	assert.Equal(t, s, back)
}

func TestLongADRoundTripAndUniqueID(t *testing.T) {
	l := LongAD{Length: 2048, Block: 42, PartitionRef: 0}
	l = l.WithUniqueID(0xDEADBEEF)
	raw := l.Marshal()

	back := UnmarshalLongAD(raw)
	assert.Equal(t, l, back)
	assert.Equal(t, uint32(0xDEADBEEF), back.UniqueID())
}
