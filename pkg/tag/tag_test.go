package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndVerifyRoundTrip(t *testing.T) {
	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}

	tg := Build(IdentFE, 1, 768, payload)
	raw := tg.Marshal()

	parsed, ok := Unmarshal(raw)
	require.True(t, ok, "checksum must verify")
	assert.Equal(t, tg.Identifier, parsed.Identifier)
	assert.Equal(t, tg.CRC, parsed.CRC)
	assert.Equal(t, uint16(len(payload)), parsed.CRCLength)

	verified, ok := Verify(raw, payload, IdentFE, 768)
	assert.True(t, ok)
	assert.Equal(t, uint32(768), verified.TagLocation)
}

func TestVerifyRejectsWrongLocation(t *testing.T) {
	payload := []byte("some descriptor payload bytes")
	tg := Build(IdentFID, 1, 10, payload)
	raw := tg.Marshal()

	_, ok := Verify(raw, payload, IdentFID, 11)
	assert.False(t, ok, "tag location mismatch must fail verification")
}

func TestVerifyRejectsCorruptedChecksum(t *testing.T) {
	payload := []byte("payload")
	tg := Build(IdentPVD, 1, 32, payload)
	raw := tg.Marshal()
	raw[0] ^= 0xFF // corrupt identifier byte, invalidating checksum coverage

	_, ok := Verify(raw, payload, IdentPVD, 32)
	assert.False(t, ok)
}

func TestVerifyRejectsCRCMismatch(t *testing.T) {
	payload := []byte("original payload")
	tg := Build(IdentLVD, 1, 40, payload)
	raw := tg.Marshal()

	tampered := []byte("tampered payload")
	_, ok := Verify(raw, tampered, IdentLVD, 40)
	assert.False(t, ok)
}

func TestChecksumExcludesItself(t *testing.T) {
	tg := Tag{Identifier: IdentTD, Version: 2, SerialNumber: 3, TagLocation: 99}
	raw := tg.Marshal()
	// Changing the checksum byte directly must not affect re-verification
	// of a freshly rebuilt tag (regression guard for byte-index bugs).
	tg.Checksum = 0xAB
	again := tg.Marshal()
	assert.Equal(t, raw, again)
}

func TestCRC16KnownVector(t *testing.T) {
	// CCITT CRC-16 of an empty buffer is 0.
	assert.Equal(t, uint16(0), CRC16(nil))
}
