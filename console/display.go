package console

// Grid geometry of the emulated text mode.
const (
	Width  = 80
	Height = 25

	scrollRow = Height - 1 // cursor entering this row scrolls the grid
	gridSize  = Width * Height
)

// defaultAttr is the one display attribute the console writes: light
// gray on black.
const defaultAttr = 0x07

// Cell is one character cell of the display grid.
type Cell struct {
	Glyph byte
	Attr  byte
}

// Display owns the emulated character grid and hardware cursor. All
// mutation happens through putc with the console lock held; frontends
// only ever see copies taken by Console.Snapshot.
type Display struct {
	cells [gridSize]Cell
	pos   int
	ops   int // mutation count, for frontend dirty tracking

	halt func(string)
}

func (d *Display) init() {
	d.clearCells(0, gridSize)
}

func (d *Display) getCursor() int    { return d.pos }
func (d *Display) setCursor(pos int) { d.pos = pos }

func (d *Display) writeCell(i int, glyph byte) {
	d.cells[i] = Cell{Glyph: glyph, Attr: defaultAttr}
}

// shiftCells copies count cells from srcStart to dstStart. The ranges
// may overlap.
func (d *Display) shiftCells(dstStart, srcStart, count int) {
	copy(d.cells[dstStart:dstStart+count], d.cells[srcStart:srcStart+count])
}

func (d *Display) clearCells(start, count int) {
	for i := start; i < start+count; i++ {
		d.cells[i] = Cell{Glyph: ' ', Attr: defaultAttr}
	}
}

// scrollIfNeeded shifts the whole grid up one row and blanks the last
// row once the cursor has entered the scroll threshold row.
func (d *Display) scrollIfNeeded() {
	if d.pos/Width < scrollRow {
		return
	}
	d.shiftCells(0, Width, (Height-1)*Width)
	d.pos -= Width
	d.clearCells((Height-1)*Width, Width)
}

// putc renders one output code at the hardware cursor.
func (d *Display) putc(code int) {
	pos := d.getCursor()
	switch {
	case code == '\n':
		pos += Width - pos%Width
	case code == backspace:
		if pos > 0 {
			pos--
			// The erase compacts the entire remaining grid, not just
			// the current row, so content below the cursor line is
			// dragged upward. Kept from the hardware driver this
			// models; see TestBackspaceDragsNextRow.
			d.shiftCells(pos, pos+1, gridSize-pos-1)
		}
	case code == CodeLeft:
		if pos > 0 {
			pos--
		}
	case code == CodeRight:
		// No upper clamp here; the range check below is the backstop.
		pos++
	case code == CodeUp || code == CodeDown:
		// Reserved; no movement.
	default:
		d.shiftCells(pos+1, pos, gridSize-pos-1)
		d.writeCell(pos, byte(code))
		pos++
	}

	if pos < 0 || pos > gridSize {
		d.halt("display cursor out of range")
	}
	d.setCursor(pos)
	d.scrollIfNeeded()
	d.ops++
}
