package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReturnsZeroValueWhenAbsent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	d, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults{}, d)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	content := "media_type: cdrw\nblock_size: 2048\nudfrev: \"2.01\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, ".udfkitrc"), []byte(content), 0o644))

	d, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cdrw", d.MediaType)
	assert.Equal(t, 2048, d.BlockSize)
	assert.Equal(t, "2.01", d.Revision)
}
