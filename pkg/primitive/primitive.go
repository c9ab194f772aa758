// Package primitive implements the small fixed-width on-disc types
// shared by every descriptor: timestamps, entity identifiers (regid),
// and the three allocation-descriptor shapes (extent/short/long ad).
package primitive

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Timestamp is the ECMA-167 Timestamp (12 bytes): type+timezone, then
// year/month/day/hour/minute/second/centiseconds/hundredths-of-a-
// centisecond/microseconds (spec.md §3).
type Timestamp struct {
	TypeAndZone     uint16
	Year            int16
	Month           uint8
	Day             uint8
	Hour            uint8
	Minute          uint8
	Second          uint8
	Centiseconds    uint8
	HundredsOfMicro uint8
	Microseconds    uint8
}

const TimestampSize = 12

// TimestampType constants (ECMA-167 1/7.3).
const (
	TimestampTypeCutOrNetworkTime = 0
	TimestampTypeLocalTime        = 1
	TimestampTypeAgreementTime    = 2
)

// NewTimestamp builds a Timestamp from a time.Time, using local-time type
// with the zone expressed in 15-minute increments (ECMA-167 1/7.3.1).
func NewTimestamp(t time.Time) Timestamp {
	_, offsetSec := t.Zone()
	offset15 := offsetSec / 900
	typeAndZone := uint16(TimestampTypeLocalTime) | (uint16(int16(offset15)&0x0FFF) << 4)

	nsec := t.Nanosecond()
	cs := nsec / 10_000_000
	rem := nsec - cs*10_000_000
	hundredsOfMicro := rem / 100_000 // 1/100 centisecond unit
	rem -= hundredsOfMicro * 100_000
	micro := rem / 1000

	return Timestamp{
		TypeAndZone:     typeAndZone,
		Year:            int16(t.Year()),
		Month:           uint8(t.Month()),
		Day:             uint8(t.Day()),
		Hour:            uint8(t.Hour()),
		Minute:          uint8(t.Minute()),
		Second:          uint8(t.Second()),
		Centiseconds:    uint8(cs),
		HundredsOfMicro: uint8(hundredsOfMicro),
		Microseconds:    uint8(micro),
	}
}

// Time converts the Timestamp back to a time.Time.
func (ts Timestamp) Time() time.Time {
	offset15 := int16(ts.TypeAndZone) >> 4
	loc := time.FixedZone("UDF", int(offset15)*900)
	nsec := int(ts.Centiseconds)*10_000_000 + int(ts.HundredsOfMicro)*100_000 + int(ts.Microseconds)*1000
	return time.Date(int(ts.Year), time.Month(ts.Month), int(ts.Day), int(ts.Hour), int(ts.Minute), int(ts.Second), nsec, loc)
}

// Marshal serializes the timestamp to its 12-byte on-disc form.
func (ts Timestamp) Marshal() [TimestampSize]byte {
	var b [TimestampSize]byte
	binary.LittleEndian.PutUint16(b[0:2], ts.TypeAndZone)
	binary.LittleEndian.PutUint16(b[2:4], uint16(ts.Year))
	b[4] = ts.Month
	b[5] = ts.Day
	b[6] = ts.Hour
	b[7] = ts.Minute
	b[8] = ts.Second
	b[9] = ts.Centiseconds
	b[10] = ts.HundredsOfMicro
	b[11] = ts.Microseconds
	return b
}

// UnmarshalTimestamp parses a 12-byte timestamp field.
func UnmarshalTimestamp(b [TimestampSize]byte) Timestamp {
	return Timestamp{
		TypeAndZone:     binary.LittleEndian.Uint16(b[0:2]),
		Year:            int16(binary.LittleEndian.Uint16(b[2:4])),
		Month:           b[4],
		Day:             b[5],
		Hour:            b[6],
		Minute:          b[7],
		Second:          b[8],
		Centiseconds:    b[9],
		HundredsOfMicro: b[10],
		Microseconds:    b[11],
	}
}

// RegidSize is the fixed size of an entity identifier (spec.md §3).
const RegidSize = 32

// UDF OS classes (OSTA UDF 2.1.5.3).
const (
	OSClassUndefined = 0
	OSClassDOS       = 1
	OSClassOS2       = 2
	OSClassMac       = 3
	OSClassUnix      = 4
	OSClassWin9x     = 5
	OSClassWinNT     = 6
	OSClassOS400     = 7
	OSClassBeOS      = 8
	OSClassWinCE     = 9
)

// Regid is the 32-byte entity identifier: flags, 23-char ident, 8-byte
// implementation-use suffix (OS class/id and UDF revision here).
type Regid struct {
	Flags    uint8
	Ident    string // up to 23 bytes
	OSClass  uint8
	OSIdent  uint8
	UDFRev   uint16 // only meaningful for UDF_ID_* idents
	Reserved [4]byte
}

// NewUDFRegid builds a Regid for a UDF-domain entity with the given
// identifier string and UDF revision stamped into the suffix.
func NewUDFRegid(ident string, rev uint16) Regid {
	return Regid{Ident: ident, OSClass: OSClassUnix, UDFRev: rev}
}

// Marshal serializes the Regid to its 32-byte on-disc form.
func (r Regid) Marshal() ([RegidSize]byte, error) {
	var b [RegidSize]byte
	if len(r.Ident) > 23 {
		return b, fmt.Errorf("primitive: regid identifier %q exceeds 23 bytes", r.Ident)
	}
	b[0] = r.Flags
	copy(b[1:24], r.Ident)
	b[24] = r.OSClass
	b[25] = r.OSIdent
	binary.LittleEndian.PutUint16(b[26:28], r.UDFRev)
	copy(b[28:32], r.Reserved[:])
	return b, nil
}

// UnmarshalRegid parses a 32-byte entity identifier.
func UnmarshalRegid(b [RegidSize]byte) Regid {
	end := 24
	for end > 1 && b[end-1] == 0 {
		end--
	}
	r := Regid{
		Flags:   b[0],
		Ident:   string(b[1:end]),
		OSClass: b[24],
		OSIdent: b[25],
		UDFRev:  binary.LittleEndian.Uint16(b[26:28]),
	}
	copy(r.Reserved[:], b[28:32])
	return r
}

// Extent type bits packed into the top 2 bits of an extent_ad's length
// field (spec.md §3).
const (
	ExtentRecordedAllocated       = 0
	ExtentNotRecordedAllocated    = 1
	ExtentNotRecordedNotAllocated = 2
	ExtentNextExtent              = 3
)

// ExtentAD is an 8-byte ECMA-167 extent descriptor: length (bytes) +
// location, with the top 2 length bits carrying the extent type.
type ExtentAD struct {
	Length   uint32 // bytes, top 2 bits excluded
	Location uint32
	Type     uint8 // one of the Extent* constants
}

const ExtentADSize = 8

func (e ExtentAD) Marshal() [ExtentADSize]byte {
	var b [ExtentADSize]byte
	packed := (e.Length & 0x3FFFFFFF) | (uint32(e.Type&0x3) << 30)
	binary.LittleEndian.PutUint32(b[0:4], packed)
	binary.LittleEndian.PutUint32(b[4:8], e.Location)
	return b
}

func UnmarshalExtentAD(b [ExtentADSize]byte) ExtentAD {
	packed := binary.LittleEndian.Uint32(b[0:4])
	return ExtentAD{
		Length:   packed & 0x3FFFFFFF,
		Type:     uint8(packed >> 30),
		Location: binary.LittleEndian.Uint32(b[4:8]),
	}
}

// ShortAD is a short allocation descriptor: length + block number within
// the owning partition.
type ShortAD struct {
	Length uint32
	Type   uint8
	Block  uint32
}

const ShortADSize = 8

func (s ShortAD) Marshal() [ShortADSize]byte {
	var b [ShortADSize]byte
	packed := (s.Length & 0x3FFFFFFF) | (uint32(s.Type&0x3) << 30)
	binary.LittleEndian.PutUint32(b[0:4], packed)
	binary.LittleEndian.PutUint32(b[4:8], s.Block)
	return b
}

func UnmarshalShortAD(b [ShortADSize]byte) ShortAD {
	packed := binary.LittleEndian.Uint32(b[0:4])
	return ShortAD{
		Length: packed & 0x3FFFFFFF,
		Type:   uint8(packed >> 30),
		Block:  binary.LittleEndian.Uint32(b[4:8]),
	}
}

// LongAD is a long allocation descriptor: length + {block, partition
// reference number} + 6 impl-use bytes, which carry a 32-bit uniqueID
// suffix in the last 4 bytes.
type LongAD struct {
	Length       uint32
	Type         uint8
	Block        uint32
	PartitionRef uint16
	ImplUse      [6]byte
}

const LongADSize = 16

func (l LongAD) Marshal() [LongADSize]byte {
	var b [LongADSize]byte
	packed := (l.Length & 0x3FFFFFFF) | (uint32(l.Type&0x3) << 30)
	binary.LittleEndian.PutUint32(b[0:4], packed)
	binary.LittleEndian.PutUint32(b[4:8], l.Block)
	binary.LittleEndian.PutUint16(b[8:10], l.PartitionRef)
	copy(b[10:16], l.ImplUse[:])
	return b
}

func UnmarshalLongAD(b [LongADSize]byte) LongAD {
	packed := binary.LittleEndian.Uint32(b[0:4])
	l := LongAD{
		Length:       packed & 0x3FFFFFFF,
		Type:         uint8(packed >> 30),
		Block:        binary.LittleEndian.Uint32(b[4:8]),
		PartitionRef: binary.LittleEndian.Uint16(b[8:10]),
	}
	copy(l.ImplUse[:], b[10:16])
	return l
}

// UniqueID returns the 32-bit uniqueID suffix carried in a long_ad's
// impl-use area (spec.md §3 "Long ad").
func (l LongAD) UniqueID() uint32 {
	return binary.LittleEndian.Uint32(l.ImplUse[2:6])
}

// WithUniqueID returns a copy of l with its impl-use uniqueID suffix set.
func (l LongAD) WithUniqueID(id uint32) LongAD {
	binary.LittleEndian.PutUint32(l.ImplUse[2:6], id)
	return l
}
