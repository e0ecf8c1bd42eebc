package console

import (
	"testing"
)

func TestPrintf(t *testing.T) {
	for _, c := range []struct {
		format string
		args   []any
		want   string
	}{
		{"plain", nil, "plain"},
		{"%d", []any{42}, "42"},
		{"%d", []any{-7}, "-7"},
		{"%d", []any{uint64(1 << 40)}, "1099511627776"},
		{"%x", []any{255}, "ff"},
		{"%x", []any{0}, "0"},
		{"%s world", []any{"hello"}, "hello world"},
		{"%s", nil, "(null)"},
		{"100%%", nil, "100%"},
		{"%v", []any{1}, "%v"}, // unknown verb printed to draw attention
		{"%p", []any{uintptr(0xdeadbeef)}, "00000000deadbeef"},
		{"r=%d w=%d", []any{uint64(3), uint64(5)}, "r=3 w=5"},
		{"trailing %", nil, "trailing "},
	} {
		cons, serial := newTestConsole()
		cons.Printf(c.format, c.args...)
		if got := serial.String(); got != c.want {
			t.Errorf("Printf(%q, %v) = %q, want %q", c.format, c.args, got, c.want)
		}
	}
}

func TestPrintfReachesDisplay(t *testing.T) {
	c, _ := newTestConsole()
	c.Printf("boot %d", 1)
	cells := make([]Cell, gridSize)
	c.Snapshot(cells)
	want := "boot 1"
	for i := 0; i < len(want); i++ {
		if cells[i].Glyph != want[i] {
			t.Fatalf("cell %d = %q, want %q", i, cells[i].Glyph, want[i])
		}
	}
}

func TestSerialBackspaceTranslation(t *testing.T) {
	c, serial := newTestConsole()
	feedString(c, "a")
	feed(c, ctrlBS)
	if got := serial.String(); got != "a\b \b" {
		t.Errorf("serial = %q, want %q", got, "a\b \b")
	}
}

func TestSerialSkipsCursorMovement(t *testing.T) {
	c, serial := newTestConsole()
	feedString(c, "ab")
	feed(c, CodeLeft, CodeRight, CodeUp, CodeDown)
	if got := serial.String(); got != "ab" {
		t.Errorf("serial = %q, want %q", got, "ab")
	}
}

func TestNilSerialSink(t *testing.T) {
	c := New(nil)
	feedString(c, "ok\n") // must not panic
	if pos := c.Cursor(); pos != Width {
		t.Errorf("cursor = %d, want %d", pos, Width)
	}
}
