package volidutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidUUID(t *testing.T) {
	id := Generate()
	assert.Len(t, id, 16)
	require.NoError(t, Validate(id))
}

func TestValidateRejectsWrongLength(t *testing.T) {
	require.Error(t, Validate("abc123"))
}

func TestValidateRejectsUppercase(t *testing.T) {
	require.Error(t, Validate("ABCDEF0123456789"))
}

func TestValidateRejectsNonHex(t *testing.T) {
	require.Error(t, Validate("zzzzzzzzzzzzzzzz"))
}
