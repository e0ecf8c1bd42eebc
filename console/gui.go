package console

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"sync"
	"time"

	"golang.org/x/exp/shiny/driver"
	"golang.org/x/exp/shiny/screen"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/mobile/event/key"
	"golang.org/x/mobile/event/lifecycle"
	"golang.org/x/mobile/event/mouse"
	"golang.org/x/mobile/event/paint"
	"golang.org/x/mobile/event/size"
)

// Cell metrics of basicfont.Face7x13.
const (
	cellW      = 7
	cellH      = 13
	cellAscent = 11
)

var (
	guiFg = color.RGBA{0xc0, 0xc0, 0xc0, 0xff}
	guiBg = color.RGBA{0x00, 0x00, 0x00, 0xff}
)

// gui is the shiny frontend: a window showing the rendered character
// grid, with key events feeding the console's interrupt path.
type gui struct {
	mu sync.Mutex
	c  *Console

	cells  []Cell
	ops    int
	cursor int
	dirty  bool

	buf screen.Buffer
	tex screen.Texture
}

func newGUI() *gui {
	return &gui{
		cells: make([]Cell, gridSize),
		ops:   -1,
	}
}

// Swap attaches the frontend to a freshly booted machine.
func (g *gui) Swap(c *Console) {
	g.mu.Lock()
	g.c = c
	g.ops = -1
	g.mu.Unlock()
}

func (g *gui) console() *Console {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.c
}

func (g *gui) Run(exit <-chan bool) error {
	driver.Main(func(s screen.Screen) {
		w, err := s.NewWindow(&screen.NewWindowOptions{
			Title:  "crt",
			Width:  Width * cellW,
			Height: Height * cellH,
		})
		if err != nil {
			log.Fatal(err)
		}
		defer w.Release()

		type update struct{}
		go func() {
			t := time.NewTicker(time.Second / 60)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					w.Send(update{})
				case <-exit:
					return
				}
			}
		}()

		defer g.release()

		var sz size.Event
		for {
			e := w.NextEvent()

			switch e := e.(type) {
			case update:
			case paint.Event:
			case key.Event:
			case mouse.Event:
			default:
				format := "got %#v\n"
				if _, ok := e.(fmt.Stringer); ok {
					format = "got %v\n"
				}
				log.Printf(format, e)
			}

			select {
			case <-exit:
				return
			default:
			}

			switch e := e.(type) {
			case size.Event:
				sz = e
				if sz.WidthPx+sz.HeightPx == 0 {
					return
				}

			case lifecycle.Event:
				if e.To == lifecycle.StageDead {
					return
				}

			case key.Event:
				g.key(e)

			case update:
				if err := g.render(s); err != nil {
					log.Fatalf("render: %v", err)
				}
				if g.dirty {
					g.tex.Upload(image.Point{}, g.buf, g.buf.Bounds())
					w.Scale(sz.Bounds(), g.tex, g.tex.Bounds(), draw.Src, nil)
					w.Publish()
					g.dirty = false
				}

			case error:
				log.Print(e)
			}
		}
	})
	return nil
}

// key translates a window key event into an input byte and feeds it to
// the console.
func (g *gui) key(e key.Event) {
	if e.Direction == key.DirRelease {
		return
	}
	b := -1
	switch e.Code {
	case key.CodeReturnEnter:
		b = '\r'
	case key.CodeDeleteBackspace:
		b = ctrlDel
	case key.CodeTab:
		b = '\t'
	case key.CodeUpArrow:
		b = CodeUp
	case key.CodeDownArrow:
		b = CodeDown
	case key.CodeLeftArrow:
		b = CodeLeft
	case key.CodeRightArrow:
		b = CodeRight
	default:
		r := e.Rune
		if r <= 0 || r > 0xff {
			return
		}
		if e.Modifiers&key.ModControl != 0 {
			r &= 0x1f
		}
		b = int(r)
	}
	c := g.console()
	if c == nil || c.Halted() {
		return
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

// render rasterizes the grid into the screen buffer when it has
// changed since the last frame.
func (g *gui) render(s screen.Screen) (err error) {
	c := g.console()
	if c == nil {
		return nil
	}
	if g.buf == nil {
		dim := image.Point{Width * cellW, Height * cellH}
		if g.buf, err = s.NewBuffer(dim); err != nil {
			return err
		}
		if g.tex, err = s.NewTexture(dim); err != nil {
			return err
		}
	}
	pos, ops := c.Snapshot(g.cells)
	if ops == g.ops && pos == g.cursor {
		return nil
	}
	g.ops, g.cursor = ops, pos

	m := g.buf.RGBA()
	drawer := font.Drawer{Dst: m, Face: basicfont.Face7x13}
	fg, bg := image.NewUniform(guiFg), image.NewUniform(guiBg)
	for i, cell := range g.cells {
		x := (i % Width) * cellW
		y := (i / Width) * cellH
		cfg, cbg := fg, bg
		if i == pos {
			cfg, cbg = bg, fg
		}
		draw.Draw(m, image.Rect(x, y, x+cellW, y+cellH), cbg, image.Point{}, draw.Src)
		if cell.Glyph > ' ' && cell.Glyph < 0x7f {
			drawer.Src = cfg
			drawer.Dot = fixed.P(x, y+cellAscent)
			drawer.DrawString(string(rune(cell.Glyph)))
		}
	}
	g.dirty = true
	return nil
}

func (g *gui) release() {
	if g.tex != nil {
		g.tex.Release()
	}
	if g.buf != nil {
		g.buf.Release()
	}
}
