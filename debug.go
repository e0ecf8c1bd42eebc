package main

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/kmcq/crt/console"
)

// debugView is a terminal debugger for the machine: a log pane (which
// also receives serial output), a watch pane showing line discipline
// counters, a state line, and a command input.
//
// Commands:
//
//	i TEXT    inject TEXT and a newline as keyboard input
//	eof       inject an end-of-input byte
//	kill      inject a kill-line byte
//	dump      inject a status dump byte (^P)
//	w NAME    watch a counter (r, w, e, max, pos, ops, halted)
//	halt MSG  take the machine down the fail-stop path
//	exit      quit
type debugView struct {
	run *console.Runner

	log   *tview.TextView
	watch *tview.TextView
	state *tview.TextView
	input *tview.InputField
	cols  *tview.Flex
	rows  *tview.Flex
	app   *tview.Application

	mu      sync.Mutex
	watches []string
}

var watchNames = []string{"r", "w", "e", "max", "pos", "ops", "halted"}

func newDebugView() *debugView {
	d := &debugView{
		log: tview.NewTextView().
			SetMaxLines(1000),
		watch: tview.NewTextView().
			SetWrap(false).
			SetTextAlign(tview.AlignRight),
		state: tview.NewTextView().
			SetWrap(false),
		input: tview.NewInputField(),
		cols:  tview.NewFlex(),
		rows: tview.NewFlex().
			SetDirection(tview.FlexRow),
		app: tview.NewApplication(),
	}
	d.log.SetChangedFunc(func() { d.app.Draw() })
	d.watch.SetBackgroundColor(tcell.ColorDarkBlue)
	d.state.SetBackgroundColor(tcell.ColorDarkGrey)
	d.cols.
		AddItem(d.watch, 0, 1, false).
		AddItem(d.log, 0, 2, false)
	d.rows.
		AddItem(d.cols, 0, 1, false).
		AddItem(d.state, 3, 0, false).
		AddItem(d.input, 1, 0, true)
	d.app.SetRoot(d.rows, true)

	d.input.SetAutocompleteFunc(func(t string) (entries []string) {
		if cmd, arg, ok := strings.Cut(t, " "); ok {
			switch cmd {
			case "w", "watch":
				for _, n := range watchNames {
					if strings.HasPrefix(n, arg) {
						entries = append(entries, cmd+" "+n)
					}
				}
			}
		}
		return
	})
	d.input.SetAutocompletedFunc(func(t string, index, src int) bool {
		if src != tview.AutocompletedNavigate {
			d.input.SetText(t)
		}
		return src == tview.AutocompletedEnter || src == tview.AutocompletedClick
	})
	d.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		cmd := d.input.GetText()
		if cmd == "" {
			return
		}
		d.input.SetText("")
		d.command(cmd)
	})
	return d
}

func (d *debugView) command(cmd string) {
	name, arg, _ := strings.Cut(cmd, " ")
	switch name {
	case "exit":
		d.app.Stop()

	case "i", "inject":
		d.run.Input(append([]byte(arg), '\n'))

	case "eof":
		d.run.Input([]byte{0x04})

	case "kill":
		d.run.Input([]byte{0x15})

	case "dump":
		d.run.Input([]byte{0x10})

	case "w", "watch":
		if !validWatch(arg) {
			log.Printf("invalid counter %q", arg)
			return
		}
		d.mu.Lock()
		d.watches = append(d.watches, arg)
		d.mu.Unlock()
		log.Printf("watching %s", arg)

	case "halt":
		if arg == "" {
			arg = "halted by debugger"
		}
		c := d.run.Console()
		if c == nil {
			return
		}
		// Halt freezes the calling goroutine; keep the UI alive.
		go c.Halt(arg)

	default:
		log.Printf("unknown command %q", name)
	}
}

func validWatch(name string) bool {
	for _, n := range watchNames {
		if n == name {
			return true
		}
	}
	return false
}

func (d *debugView) Run() error { return d.app.Run() }

func (d *debugView) StateFunc(c *console.Console, k console.StateKind) {
	var (
		watch = d.watchContent(c)
		state = stateMsg(c, k)
	)
	d.app.QueueUpdateDraw(func() {
		switch k {
		case console.ClearState, console.InputState:
			d.state.SetTextColor(tcell.ColorBlack)
			d.state.SetBackgroundColor(tcell.ColorDarkGrey)
		case console.CommitState:
			d.state.SetTextColor(tcell.ColorWhite)
			d.state.SetBackgroundColor(tcell.ColorDarkBlue)
		case console.HaltState:
			d.state.SetTextColor(tcell.ColorWhite)
			d.state.SetBackgroundColor(tcell.ColorDarkRed)
		}
		d.watch.SetText(watch)
		d.state.SetText(state)
	})
}

func stateMsg(c *console.Console, k console.StateKind) string {
	kind := "        "
	switch k {
	case console.ClearState:
		kind = "[clear] "
	case console.InputState:
		kind = "[input] "
	case console.CommitState:
		kind = "[commit]"
	case console.HaltState:
		kind = "[HALT!] "
	}
	r, w, e, max := c.Counters()
	return fmt.Sprintf("%s r=%d w=%d e=%d max=%d\ncursor %d\n",
		kind, r, w, e, max, c.Cursor())
}

func (d *debugView) watchContent(c *console.Console) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, w, e, max := c.Counters()
	var b strings.Builder
	for _, name := range d.watches {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		switch name {
		case "r":
			fmt.Fprintf(&b, "r %d", r)
		case "w":
			fmt.Fprintf(&b, "w %d", w)
		case "e":
			fmt.Fprintf(&b, "e %d", e)
		case "max":
			fmt.Fprintf(&b, "max %d", max)
		case "pos":
			fmt.Fprintf(&b, "pos %d", c.Cursor())
		case "ops":
			var cells [console.Width * console.Height]console.Cell
			_, ops := c.Snapshot(cells[:])
			fmt.Fprintf(&b, "ops %d", ops)
		case "halted":
			fmt.Fprintf(&b, "halted %v", c.Halted())
		}
	}
	return b.String()
}
