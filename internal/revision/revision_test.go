package revision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKnownRevision(t *testing.T) {
	r, err := Parse("2.01")
	require.NoError(t, err)
	assert.Equal(t, R201, r)
}

func TestParseUnknownRevision(t *testing.T) {
	_, err := Parse("9.99")
	require.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	for _, r := range Supported {
		parsed, err := Parse(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
}

func TestWithin(t *testing.T) {
	assert.True(t, R200.Within(R150, R250))
	assert.False(t, R102.Within(R150, R250))
}
