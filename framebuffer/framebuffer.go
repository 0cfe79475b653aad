/*
 * amxos - Text-mode framebuffer surface.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package framebuffer models the external VGA text-mode surface: an
// 80x25 grid of {ASCII byte, attribute byte} cells at a fixed MMIO
// address. Rendering the grid to a real display and the shell's line
// editor live outside the nucleus; the kernel core only ever writes
// status and diagnostic lines to it.
package framebuffer

import "sync"

const (
	Columns = 80
	Rows    = 25

	// AttrNormal is the attribute for ordinary status text.
	AttrNormal uint8 = 0x0F
	// AttrCursor is the attribute for the block cursor.
	AttrCursor uint8 = 0x7F
	// AttrAccent1 and AttrAccent2 are diagnostic accent attributes.
	AttrAccent1 uint8 = 0x2E
	AttrAccent2 uint8 = 0x2F
)

// Cell is one character cell: an ASCII byte and a VGA attribute byte
// (foreground nibble low, background nibble high).
type Cell struct {
	Char byte
	Attr uint8
}

// Buffer is an in-memory stand-in for the linear framebuffer at the
// fixed physical address the boot contract maps.
type Buffer struct {
	mu    sync.Mutex
	cells [Rows][Columns]Cell
}

// New returns a framebuffer cleared to blanks with the normal attribute.
func New() *Buffer {
	b := &Buffer{}
	b.Clear()
	return b
}

// Clear fills every cell with a space at the normal attribute.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for r := range b.cells {
		for c := range b.cells[r] {
			b.cells[r][c] = Cell{Char: ' ', Attr: AttrNormal}
		}
	}
}

// WriteLine writes s left-justified into row, padding/truncating to
// Columns, at the given attribute. Rows outside [0,Rows) are ignored.
func (b *Buffer) WriteLine(row int, s string, attr uint8) {
	if row < 0 || row >= Rows {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := 0; c < Columns; c++ {
		if c < len(s) {
			b.cells[row][c] = Cell{Char: s[c], Attr: attr}
		} else {
			b.cells[row][c] = Cell{Char: ' ', Attr: AttrNormal}
		}
	}
}

// WriteAt writes a single cell at (row, col).
func (b *Buffer) WriteAt(row, col int, ch byte, attr uint8) {
	if row < 0 || row >= Rows || col < 0 || col >= Columns {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cells[row][col] = Cell{Char: ch, Attr: attr}
}

// Line returns the row as a string, trimmed of trailing spaces.
func (b *Buffer) Line(row int) string {
	if row < 0 || row >= Rows {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	end := Columns
	for end > 0 && b.cells[row][end-1].Char == ' ' {
		end--
	}
	buf := make([]byte, end)
	for c := 0; c < end; c++ {
		buf[c] = b.cells[row][c].Char
	}
	return string(buf)
}
