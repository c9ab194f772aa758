// Package termwidth detects the interactive terminal's column width so
// the shell's "lsc"/"lsh" listings can wrap into multiple columns the
// way a real ls does, falling back to a fixed width when stdout isn't
// a terminal (piped output, redirected logs).
package termwidth

import (
	"os"

	"golang.org/x/term"
)

// Fallback is the column width assumed when stdout is not a terminal.
const Fallback = 80

// Columns returns the current terminal width in columns, or Fallback
// if stdout isn't a terminal or the ioctl fails.
func Columns() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return Fallback
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return Fallback
	}
	return width
}

// Layout lays names out into as many columns as fit within width,
// filling column by column the way ls(1) packs a directory listing.
// Column count assumes every name takes the widest name's length plus
// two; the names themselves are returned unpadded.
func Layout(names []string, width int) [][]string {
	if len(names) == 0 {
		return nil
	}
	longest := 0
	for _, n := range names {
		if len(n) > longest {
			longest = len(n)
		}
	}
	colWidth := longest + 2
	cols := width / colWidth
	if cols < 1 {
		cols = 1
	}
	rows := (len(names) + cols - 1) / cols

	grid := make([][]string, rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := c*rows + r
			if i >= len(names) {
				continue
			}
			grid[r] = append(grid[r], names[i])
		}
	}
	return grid
}
