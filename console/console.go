// Package console implements the crt machine's console subsystem: a
// line-disciplined keyboard input buffer and an 80x25 character grid
// display, shared by every guest thread under a single lock.
//
// Input bytes arrive through Intr, are edited in place by the line
// discipline, and become visible to blocked ReadLine callers when a
// line commits. Output bytes flow through the output gate to both the
// display grid and a byte-oriented serial sink. Any detected corruption
// of shared state takes the fail-stop path in Halt.
package console

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
)

// Control bytes recognized by the line discipline.
const (
	ctrlEOF  = 0x04 // ^D: end of input
	ctrlBS   = 0x08 // ^H: backspace
	ctrlDump = 0x10 // ^P: machine status dump
	ctrlKill = 0x15 // ^U: kill line
	ctrlDel  = 0x7f // delete, treated as backspace
)

// Cursor movement codes. Frontends deliver these in place of escape
// sequences; they sit outside printable text and are never stored in
// the input ring.
const (
	CodeUp    = 226
	CodeDown  = 227
	CodeLeft  = 228
	CodeRight = 229
)

// backspace is the erase token understood by the output gate. It is
// wider than a byte so it can never collide with guest output.
const backspace = 0x100

// Input ring capacity. Must be a power of two: the r/w/e/max counters
// only ever increase and are masked on indexing.
const (
	bufSize = 128
	bufMask = bufSize - 1
)

// ErrInterrupted is returned by ReadLine when the reader's context is
// cancelled while it waits for input. No input is consumed.
var ErrInterrupted = errors.New("console: read interrupted")

// StateKind describes a machine state change reported to a StateFunc.
type StateKind int

const (
	ClearState  StateKind = iota // machine (re)booted
	InputState                   // input buffer edited
	CommitState                  // a line was committed to readers
	HaltState                    // the machine took the fail-stop path
)

// StateFunc observes machine state changes. It is called without the
// console lock held and may inspect the console freely.
type StateFunc func(*Console, StateKind)

// Console is the machine console: input ring, display grid, serial
// sink, and the one lock that covers them. The zero value is not
// usable; call New.
type Console struct {
	// CPU identifies the processor in halt diagnostics.
	CPU int

	// DumpFunc, if set, runs after ^P is received. It is invoked with
	// the console lock released and may call back into the console.
	DumpFunc func()

	// InodeLock, if set, is released for the duration of each Read and
	// Write call and reacquired before returning, mirroring the
	// storage layer's locking discipline around device I/O.
	InodeLock sync.Locker

	mu      sync.Mutex
	wake    *sync.Cond // readers waiting for input.r != input.w
	locking atomic.Bool
	halted  atomic.Bool

	input struct {
		buf [bufSize]byte
		r   uint64 // next byte for readers
		w   uint64 // end of committed bytes
		e   uint64 // edit cursor, within [w, max]
		max uint64 // end of the uncommitted line
	}
	disp Display

	serial io.Writer
	state  StateFunc

	// freeze spins forever; tests substitute it. callers is the native
	// backtrace capability used by Halt.
	freeze  func()
	callers func(int, []uintptr) int
}

// New returns an initialized console writing raw output to serial,
// which may be nil to discard it.
func New(serial io.Writer) *Console {
	c := &Console{serial: serial}
	c.wake = sync.NewCond(&c.mu)
	c.locking.Store(true)
	c.freeze = func() { select {} }
	c.callers = runtime.Callers
	c.disp.init()
	c.disp.halt = c.Halt
	return c
}

// Install registers the console's read and write entry points in the
// device switch under ConsoleID.
func (c *Console) Install() {
	RegisterDevice(ConsoleID, Device{Read: c.Read, Write: c.Write})
}

// Intr drains the keyboard collaborator: getc returns the next
// available input byte, or a negative value when none remain. It is
// the sole producer entry point and may run from any goroutine.
func (c *Console) Intr(getc func() int) {
	if c.halted.Load() {
		// The halting processor masked its interrupt sources.
		return
	}
	var (
		dump bool
		got  bool
	)
	c.mu.Lock()
	w := c.input.w
	for b := getc(); b >= 0; b = getc() {
		got = true
		if c.feed(byte(b)) {
			dump = true
		}
	}
	committed := c.input.w != w
	c.mu.Unlock()

	if dump && c.DumpFunc != nil {
		// DumpFunc may take the console lock itself.
		c.DumpFunc()
	}
	switch {
	case committed:
		c.notify(CommitState)
	case got:
		c.notify(InputState)
	}
}

// feed advances the line discipline by one byte. It reports whether a
// status dump was requested. Caller holds mu.
func (c *Console) feed(b byte) bool {
	in := &c.input
	switch b {
	case ctrlDump:
		return true
	case ctrlKill:
		// A terminator always commits, so the uncommitted region can
		// never contain one; the byte test matches the committed tail
		// after a force-commit.
		for in.max != in.w && in.buf[(in.max-1)&bufMask] != '\n' {
			in.max--
			c.emit(backspace)
		}
		in.e = in.max
	case ctrlBS, ctrlDel:
		if in.e != in.w {
			in.e--
			in.max--
			for i := in.e; i < in.max; i++ {
				in.buf[i&bufMask] = in.buf[(i+1)&bufMask]
			}
			c.emit(backspace)
		}
	case CodeLeft:
		if in.e != in.w {
			in.e--
			c.emit(CodeLeft)
		}
	case CodeRight:
		if in.e < in.max {
			in.e++
			c.emit(CodeRight)
		}
	case CodeUp, CodeDown:
		// Reserved for history navigation.
		c.emit(int(b))
	default:
		if b == 0 || in.max-in.r >= bufSize {
			break // NUL, or the ring is full: dropped
		}
		if b == '\r' {
			b = '\n'
		}
		switch b {
		case '\n':
			// Terminators close the line at max regardless of the
			// edit cursor.
			in.buf[in.max&bufMask] = b
			in.max++
			c.emit('\n')
			c.commit()
		case ctrlEOF:
			in.buf[in.max&bufMask] = b
			in.max++
			c.commit()
		default:
			for i := in.max; i > in.e; i-- {
				in.buf[i&bufMask] = in.buf[(i-1)&bufMask]
			}
			in.buf[in.e&bufMask] = b
			in.e++
			in.max++
			c.emit(int(b))
			if in.max-in.r == bufSize {
				// Ring full: force the line out so the producer can
				// keep moving.
				c.commit()
			}
		}
	}
	c.checkInput()
	return false
}

// commit publishes the uncommitted region to readers. Caller holds mu.
func (c *Console) commit() {
	in := &c.input
	in.w = in.max
	in.e = in.max
	c.wake.Broadcast()
}

// checkInput verifies the counter ordering invariant. A violation
// means shared state is corrupt and the only safe response is a halt.
func (c *Console) checkInput() {
	in := &c.input
	if in.r > in.w || in.w > in.e || in.e > in.max || in.max > in.r+bufSize {
		c.Halt("input counters out of order")
	}
}

// ReadLine copies one committed line, or the remainder of one, into
// dst, blocking until input is available. It returns the number of
// bytes copied; 0 means the reader saw end-of-input. If ctx is
// cancelled while waiting it returns ErrInterrupted.
func (c *Console) ReadLine(ctx context.Context, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	// Cancellation is observed at wake time only; make sure a wake
	// arrives when the context dies.
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.wake.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	in := &c.input
	n := 0
	for n < len(dst) {
		for in.r == in.w {
			if ctx.Err() != nil {
				return 0, ErrInterrupted
			}
			c.wake.Wait()
		}
		b := in.buf[in.r&bufMask]
		in.r++
		if b == ctrlEOF {
			if n > 0 {
				// Save the marker so the next call returns 0 bytes.
				in.r--
			}
			break
		}
		dst[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return n, nil
}

// Read implements the device read entry point.
func (c *Console) Read(ctx context.Context, dst []byte) (int, error) {
	if l := c.InodeLock; l != nil {
		l.Unlock()
		defer l.Lock()
	}
	return c.ReadLine(ctx, dst)
}

// Write implements the device write entry point: each byte of src is
// emitted in order to the display and serial sink. It cannot fail;
// after a halt it freezes the calling goroutine instead.
func (c *Console) Write(src []byte) (int, error) {
	if l := c.InodeLock; l != nil {
		l.Unlock()
		defer l.Lock()
	}
	c.mu.Lock()
	for _, b := range src {
		c.emit(int(b))
	}
	c.mu.Unlock()
	return len(src), nil
}

// Counters returns the line discipline counters (read, write, edit,
// max). After a halt it reads without the lock, best effort.
func (c *Console) Counters() (r, w, e, max uint64) {
	if c.locking.Load() {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	in := &c.input
	return in.r, in.w, in.e, in.max
}

// Snapshot copies the display grid into cells, which must hold
// Width*Height entries, and returns the cursor position and mutation
// count at the time of the copy. After a halt it reads without the
// lock so frontends can still show the final diagnostic.
func (c *Console) Snapshot(cells []Cell) (pos, ops int) {
	if c.locking.Load() {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	copy(cells, c.disp.cells[:])
	return c.disp.pos, c.disp.ops
}

// Cursor returns the display cursor position.
func (c *Console) Cursor() int {
	if c.locking.Load() {
		c.mu.Lock()
		defer c.mu.Unlock()
	}
	return c.disp.pos
}

// Halted reports whether the machine has taken the fail-stop path.
func (c *Console) Halted() bool { return c.halted.Load() }

func (c *Console) inputFull() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input.max-c.input.r >= bufSize
}

func (c *Console) notify(k StateKind) {
	if c.state != nil {
		c.state(c, k)
	}
}
