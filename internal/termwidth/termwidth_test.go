package termwidth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutFitsWithinWidth(t *testing.T) {
	names := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	grid := Layout(names, 24)
	require := assert.New(t)
	require.NotEmpty(grid)
	for _, row := range grid {
		width := 0
		for _, n := range row {
			width += len(n) + 2
		}
		require.LessOrEqual(width, 24+2)
	}
}

func TestLayoutEmpty(t *testing.T) {
	assert.Nil(t, Layout(nil, 80))
}

func TestLayoutSingleColumnWhenNarrow(t *testing.T) {
	grid := Layout([]string{"verylongfilenamehere"}, 5)
	assert.Len(t, grid, 1)
	assert.Len(t, grid[0], 1)
}
