package mediatab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-udf/udfkit/pkg/volume"
)

func TestDefaultHDSizing(t *testing.T) {
	table := Default()
	sizing := table.Sizing(volume.MediaHD, volume.SizeClassVDS)
	assert.Equal(t, uint32(16), sizing.MinLen)
	assert.Equal(t, uint32(1), sizing.Align)
}

func TestDefaultCDRWSizingUsesAlignedGroup(t *testing.T) {
	table := Default()
	sizing := table.Sizing(volume.MediaCDRW, volume.SizeClassSSPACE)
	assert.Equal(t, uint32(32), sizing.Align)
	assert.Equal(t, uint32(1024), sizing.MinLen)
}

func TestUnknownMediaFallsBackToHD(t *testing.T) {
	table := Default()
	sizing := table.Sizing(volume.MediaType(999), volume.SizeClassVDS)
	require.Equal(t, table.Sizing(volume.MediaHD, volume.SizeClassVDS), sizing)
}
