package console

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// GuestFunc is the machine's guest program: it runs on its own
// goroutine, reads and writes the console, and returns an exit code.
// The context is cancelled when the machine is stopped or swapped.
type GuestFunc func(ctx context.Context, c *Console) int

// Runner manages the lifecycle of a console and its guest program: it
// boots the machine, feeds it a boot script, drives the GUI frontend
// when one is enabled, and supports swapping in a fresh machine in dev
// mode.
type Runner struct {
	gui   bool
	dev   bool
	state StateFunc

	// Serial is the sink for raw console output on machines the
	// runner boots. Set it before calling Run.
	Serial io.Writer

	swap     chan []byte
	swapDone chan bool
	exitReq  chan bool

	mu     sync.Mutex
	cur    *Console
	cancel context.CancelFunc
	code   int
}

// NewRunner returns a runner. If enableGUI is set, Run drives the
// shiny GUI frontend until the machine exits. StateFunc may be nil.
func NewRunner(enableGUI, devMode bool, state StateFunc) *Runner {
	return &Runner{
		gui:      enableGUI,
		dev:      devMode,
		state:    state,
		Serial:   os.Stdout,
		swap:     make(chan []byte),
		swapDone: make(chan bool),
		exitReq:  make(chan bool),
	}
}

// Console returns the machine currently attached to the runner, or nil
// before the first boot.
func (r *Runner) Console() *Console {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// Swap resets the machine with a new boot script and blocks until the
// replacement is running. Dev mode only.
func (r *Runner) Swap(script []byte) {
	if !r.dev {
		panic("Swap called while not running in dev mode")
	}
	r.swap <- script
	<-r.swapDone
}

// Stop interrupts the guest program; blocked readers fail with
// ErrInterrupted. A halted (frozen) machine cannot be stopped.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Exit shuts the runner down: the guest is interrupted and Run
// returns with the last recorded exit code. Dev mode only.
func (r *Runner) Exit() {
	if !r.dev {
		panic("Exit called while not running in dev mode")
	}
	r.exitReq <- true
}

// Input feeds p into the current machine's keyboard path, pacing the
// bytes so none are dropped by ring backpressure.
func (r *Runner) Input(p []byte) {
	c := r.Console()
	if c == nil {
		return
	}
	go r.replay(c, p)
}

// Run boots a console, feeds it script as initial keyboard input,
// starts the guest, and returns the guest's exit code. In dev mode it
// keeps running across Swap calls until the runner's frontend exits.
func (r *Runner) Run(script []byte, guest GuestFunc) (exitCode int) {
	var g *gui
	if r.gui {
		g = newGUI()
	}
	exit := make(chan bool)
	go func() {
		var (
			execErr = make(chan int)
			running = true
		)
		ctx, c := r.boot(script)
		if g != nil {
			g.Swap(c)
		}
		go func() { execErr <- guest(ctx, c) }()
		for {
			select {
			case s := <-r.swap:
				if running {
					r.Stop()
					<-execErr
				}
				ctx, c = r.boot(s)
				if g != nil {
					g.Swap(c)
				}
				go func() { execErr <- guest(ctx, c) }()
				running = true
				r.swapDone <- true
			case <-r.exitReq:
				// Do not wait on execErr: a halted guest is
				// frozen and will never report.
				r.Stop()
				close(exit)
				return
			case code := <-execErr:
				r.mu.Lock()
				r.code = code
				r.mu.Unlock()
				if r.dev {
					log.Printf("guest: exit code %d", code)
					running = false
				} else {
					close(exit)
					return
				}
			}
		}
	}()
	if r.gui {
		if err := g.Run(exit); err != nil {
			log.Fatalf("gui: %v", err)
		}
	} else {
		<-exit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// boot builds a fresh console, registers it in the device switch, and
// starts the boot script replay.
func (r *Runner) boot(script []byte) (context.Context, *Console) {
	c := New(r.Serial)
	c.state = r.state
	c.DumpFunc = func() { dumpStatus(c) }
	c.Install()

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cur = c
	r.cancel = cancel
	r.mu.Unlock()

	c.notify(ClearState)
	if len(script) > 0 {
		go r.replay(c, script)
	}
	return ctx, c
}

// replay feeds script into the keyboard path one byte at a time,
// yielding while the ring is full so nothing is dropped.
func (r *Runner) replay(c *Console, script []byte) {
	for i := 0; i < len(script); {
		if c.Halted() || r.Console() != c {
			return
		}
		if c.inputFull() {
			time.Sleep(time.Millisecond)
			continue
		}
		b := script[i]
		i++
		sent := false
		c.Intr(func() int {
			if sent {
				return -1
			}
			sent = true
			return int(b)
		})
	}
}

// dumpStatus is the ^P handler: a one-line report of the line
// discipline counters and display cursor.
func dumpStatus(c *Console) {
	rr, w, e, max := c.Counters()
	c.Printf("\nconsole: r=%d w=%d e=%d max=%d cursor=%d\n",
		rr, w, e, max, c.Cursor())
}
