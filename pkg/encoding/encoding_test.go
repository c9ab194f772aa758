package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCodecRoundTripASCII(t *testing.T) {
	codec := Default{}
	encoded, err := codec.Encode("LinuxUDF", 64)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionID8), encoded[0])

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "LinuxUDF", decoded)
}

func TestDefaultCodecRoundTripWide(t *testing.T) {
	codec := Default{}
	s := "日本語"
	encoded, err := codec.Encode(s, 64)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionID16), encoded[0])

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestEncodeTooLong(t *testing.T) {
	codec := Default{}
	_, err := codec.Encode("a very long volume label indeed", 8)
	assert.Error(t, err)
}

func TestDstringRoundTrip(t *testing.T) {
	codec := Default{}
	field, err := Dstring(codec, "LinuxUDF", 32)
	require.NoError(t, err)
	assert.Len(t, field, 32)
	assert.Equal(t, byte(9), field[31]) // compression byte + 8 chars

	back, err := DecodeDstring(codec, field)
	require.NoError(t, err)
	assert.Equal(t, "LinuxUDF", back)
}

func TestDstringEmpty(t *testing.T) {
	codec := Default{}
	field, err := Dstring(codec, "", 16)
	require.NoError(t, err)
	back, err := DecodeDstring(codec, field)
	require.NoError(t, err)
	assert.Equal(t, "", back)
}
