// Package encoding defines the Codec interface the core consumes for
// converting between host strings and OSTA CS0 compressed-Unicode
// dstrings (spec.md §1: "core consumes an encoder/decoder interface").
// Locale/charset conversion itself is an external collaborator; this
// package only owns the CS0 compression format, which is part of the
// on-disc wire format and therefore in scope.
package encoding

import (
	"fmt"
	"unicode/utf16"
)

// CompressionID identifies the CS0 compression byte that prefixes every
// dstring field (OSTA UDF 2.1.3).
type CompressionID uint8

const (
	CompressionID8  CompressionID = 8  // one byte per character
	CompressionID16 CompressionID = 16 // two bytes per character, big-endian
)

// Codec converts between a host string and OSTA CS0 bytes. Locale-aware
// implementations live outside the core; Default below implements only
// the mechanical 8/16-bit compression, which is what every CS0 field on
// disc actually uses.
type Codec interface {
	// Encode compresses s into CS0 bytes sized to fit maxBytes (including
	// the leading compression-ID byte).
	Encode(s string, maxBytes int) ([]byte, error)
	// Decode decompresses CS0 bytes (compression ID byte included) back
	// into a host string.
	Decode(b []byte) (string, error)
}

// Default is the mechanical CS0 codec: it never consults locale tables,
// it only implements the compression scheme itself. This is the
// "decoder interface" the core owns per spec.md §1; a host may swap in a
// locale-aware Codec without the core changing.
type Default struct{}

// Encode implements Codec. It prefers 8-bit compression and only spills
// to 16-bit when a rune doesn't fit in a byte.
func (Default) Encode(s string, maxBytes int) ([]byte, error) {
	runes := []rune(s)
	wide := false
	for _, r := range runes {
		if r > 0xFF {
			wide = true
			break
		}
	}

	if !wide {
		if len(runes)+1 > maxBytes {
			return nil, fmt.Errorf("encoding: string too long for %d-byte CS0 field", maxBytes)
		}
		out := make([]byte, 1+len(runes))
		out[0] = byte(CompressionID8)
		for i, r := range runes {
			out[1+i] = byte(r)
		}
		return out, nil
	}

	units := utf16.Encode(runes)
	if 1+2*len(units) > maxBytes {
		return nil, fmt.Errorf("encoding: string too long for %d-byte CS0 field", maxBytes)
	}
	out := make([]byte, 1+2*len(units))
	out[0] = byte(CompressionID16)
	for i, u := range units {
		out[1+2*i] = byte(u >> 8)
		out[1+2*i+1] = byte(u & 0xFF)
	}
	return out, nil
}

// Decode implements Codec.
func (Default) Decode(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	switch CompressionID(b[0]) {
	case CompressionID8:
		return string(asRunes8(b[1:])), nil
	case CompressionID16:
		if (len(b)-1)%2 != 0 {
			return "", fmt.Errorf("encoding: malformed 16-bit CS0 field")
		}
		units := make([]uint16, (len(b)-1)/2)
		for i := range units {
			units[i] = uint16(b[1+2*i])<<8 | uint16(b[1+2*i+1])
		}
		return string(utf16.Decode(units)), nil
	default:
		return "", fmt.Errorf("encoding: unknown CS0 compression id %d", b[0])
	}
}

func asRunes8(b []byte) []rune {
	out := make([]rune, len(b))
	for i, c := range b {
		out[i] = rune(c)
	}
	return out
}

// Dstring encodes s as a fixed-width dstring field: CS0 bytes padded with
// zeroes, with the final byte holding the number of content bytes used
// (spec.md §3 "dstring").
func Dstring(codec Codec, s string, fieldLen int) ([]byte, error) {
	if fieldLen < 2 {
		return nil, fmt.Errorf("encoding: dstring field too small")
	}
	content, err := codec.Encode(s, fieldLen-1)
	if err != nil {
		return nil, err
	}
	out := make([]byte, fieldLen)
	copy(out, content)
	out[fieldLen-1] = byte(len(content))
	return out, nil
}

// DecodeDstring reads a fixed-width dstring field back into a string.
func DecodeDstring(codec Codec, b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	n := int(b[len(b)-1])
	if n == 0 {
		return "", nil
	}
	if n > len(b)-1 {
		return "", fmt.Errorf("encoding: dstring length byte %d exceeds field", n)
	}
	return codec.Decode(b[:n])
}
