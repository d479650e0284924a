// Package console implements the kernel's text console collaborator: an
// 80x25 character grid with cursor arithmetic, tab stops, backspace, and
// scroll-at-bottom, rendered onto an io.Writer instead of video memory.
package console

import (
	"io"
)

// Console is the sink the shell and kernel log print through.
type Console interface {
	PutChar(ch byte)
	Clear()
	Scroll()
}

// Grid is the default Console: a fixed-size cell grid mirroring every
// printable byte to an underlying writer. The grid keeps the cursor
// arithmetic observable for tests; the writer is what the user sees.
type Grid struct {
	out    io.Writer
	width  int
	height int
	tab    int

	cells   [][]byte
	cursorX int
	cursorY int
}

// NewGrid creates a width x height console writing through to out.
func NewGrid(out io.Writer, width, height, tabStop int) *Grid {
	g := &Grid{
		out:    out,
		width:  width,
		height: height,
		tab:    tabStop,
	}
	g.cells = make([][]byte, height)
	for i := range g.cells {
		g.cells[i] = blankRow(width)
	}
	return g
}

func blankRow(width int) []byte {
	row := make([]byte, width)
	for i := range row {
		row[i] = ' '
	}
	return row
}

func (g *Grid) emit(b []byte) {
	if g.out != nil {
		_, _ = g.out.Write(b)
	}
}

// PutChar renders one byte at the cursor. Newline advances a line and
// scrolls at the bottom; tab aligns to the next tab-stop multiple; 0x08
// erases the previous cell; any other byte below 0x20 is ignored.
func (g *Grid) PutChar(ch byte) {
	switch {
	case ch == '\n':
		g.cursorX = 0
		g.cursorY++
		g.emit([]byte{'\n'})
	case ch == '\t':
		next := (g.cursorX/g.tab + 1) * g.tab
		for g.cursorX < next && g.cursorX < g.width {
			g.cells[g.cursorY][g.cursorX] = ' '
			g.cursorX++
			g.emit([]byte{' '})
		}
	case ch == 0x08:
		if g.cursorX > 0 {
			g.cursorX--
			g.cells[g.cursorY][g.cursorX] = ' '
			g.emit([]byte{0x08, ' ', 0x08})
		}
	case ch < 0x20:
		// opaque control byte
	default:
		g.cells[g.cursorY][g.cursorX] = ch
		g.cursorX++
		g.emit([]byte{ch})
	}

	if g.cursorX >= g.width {
		g.cursorX = 0
		g.cursorY++
		g.emit([]byte{'\n'})
	}
	if g.cursorY >= g.height {
		g.Scroll()
		g.cursorY = g.height - 1
	}
}

// Clear blanks the grid and homes the cursor.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = blankRow(g.width)
	}
	g.cursorX = 0
	g.cursorY = 0
	g.emit([]byte("\x1b[2J\x1b[H"))
}

// Scroll shifts every row up by one and blanks the bottom row. The
// underlying terminal scrolls itself; only the grid needs the shift.
func (g *Grid) Scroll() {
	copy(g.cells, g.cells[1:])
	g.cells[g.height-1] = blankRow(g.width)
}

// Print renders a string byte-by-byte through PutChar.
func (g *Grid) Print(s string) {
	for i := 0; i < len(s); i++ {
		g.PutChar(s[i])
	}
}

// Row returns the grid contents of row y, for tests that assert on
// cursor arithmetic.
func (g *Grid) Row(y int) string {
	if y < 0 || y >= g.height {
		return ""
	}
	return string(g.cells[y])
}

// Cursor returns the current cursor position.
func (g *Grid) Cursor() (x, y int) {
	return g.cursorX, g.cursorY
}

var _ Console = (*Grid)(nil)
