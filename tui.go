package main

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/kmcq/crt/console"
)

// runTUI drives the machine inside the hosting terminal, drawing the
// character grid with tcell. Ctrl-\ detaches from the machine and
// exits.
func runTUI(r *console.Runner, script []byte) (int, error) {
	scr, err := tcell.NewScreen()
	if err != nil {
		return 0, fmt.Errorf("tui: %v", err)
	}
	if err := scr.Init(); err != nil {
		return 0, fmt.Errorf("tui: %v", err)
	}
	defer scr.Fini()
	scr.HideCursor()

	exit := make(chan int, 1)
	go func() { exit <- r.Run(script, shellMain) }()

	quit := make(chan bool)
	go pollKeys(scr, r, quit)

	t := &tui{scr: scr, ops: -1}
	update := time.NewTicker(time.Second / 60)
	defer update.Stop()
	for {
		select {
		case code := <-exit:
			return code, nil
		case <-quit:
			r.Stop()
			select {
			case code := <-exit:
				return code, nil
			case <-time.After(time.Second):
				// Frozen after a halt; nothing left to collect.
				return 1, nil
			}
		case <-update.C:
			t.render(r.Console())
		}
	}
}

type tui struct {
	scr    tcell.Screen
	cells  [console.Width * console.Height]console.Cell
	ops    int
	cursor int
}

func (t *tui) render(c *console.Console) {
	if c == nil {
		return
	}
	pos, ops := c.Snapshot(t.cells[:])
	if ops == t.ops && pos == t.cursor {
		return
	}
	t.ops, t.cursor = ops, pos
	for i, cell := range t.cells {
		g := cell.Glyph
		if g == 0 {
			g = ' '
		}
		t.scr.SetContent(i%console.Width, i/console.Width,
			rune(g), nil, cgaStyle(cell.Attr))
	}
	if pos >= 0 && pos < len(t.cells) {
		t.scr.ShowCursor(pos%console.Width, pos/console.Width)
	} else {
		t.scr.HideCursor()
	}
	t.scr.Show()
}

// pollKeys translates terminal key events into keyboard interrupts
// until Ctrl-\ is pressed.
func pollKeys(scr tcell.Screen, r *console.Runner, quit chan bool) {
	for {
		ev := scr.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventResize:
			scr.Sync()
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyCtrlBackslash {
				close(quit)
				return
			}
			if b, ok := keyByte(ev); ok {
				c := r.Console()
				if c == nil {
					continue
				}
				sent := false
				c.Intr(func() int {
					if sent {
						return -1
					}
					sent = true
					return b
				})
			}
		}
	}
}

func keyByte(ev *tcell.EventKey) (int, bool) {
	switch k := ev.Key(); k {
	case tcell.KeyRune:
		r := ev.Rune()
		if r > 0 && r < 0x80 {
			return int(r), true
		}
	case tcell.KeyEnter:
		return '\r', true
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return 0x7f, true
	case tcell.KeyTab:
		return '\t', true
	case tcell.KeyUp:
		return console.CodeUp, true
	case tcell.KeyDown:
		return console.CodeDown, true
	case tcell.KeyLeft:
		return console.CodeLeft, true
	case tcell.KeyRight:
		return console.CodeRight, true
	default:
		if k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ {
			return int(k), true
		}
	}
	return 0, false
}

// cgaPalette maps the sixteen PC text mode colors.
var cgaPalette = [16]tcell.Color{
	tcell.ColorBlack, tcell.ColorNavy, tcell.ColorGreen, tcell.ColorTeal,
	tcell.ColorMaroon, tcell.ColorPurple, tcell.ColorOlive, tcell.ColorSilver,
	tcell.ColorGray, tcell.ColorBlue, tcell.ColorLime, tcell.ColorAqua,
	tcell.ColorRed, tcell.ColorFuchsia, tcell.ColorYellow, tcell.ColorWhite,
}

func cgaStyle(attr byte) tcell.Style {
	return tcell.StyleDefault.
		Foreground(cgaPalette[attr&0xf]).
		Background(cgaPalette[attr>>4&0x7])
}
