package console

// haltFrames is how many saved return addresses a halt diagnostic
// includes.
const haltFrames = 10

// Halt is the fail-stop path: it abandons the locking discipline,
// emits one best-effort diagnostic with a backtrace, marks the machine
// halted and freezes the calling goroutine. It never returns (outside
// tests, which substitute the freeze hook).
//
// Halt is the only path allowed to bypass the console lock. The lock
// may be held by an abandoned critical section, so from here on every
// output and state read is unsynchronized.
func (c *Console) Halt(msg string) {
	c.locking.Store(false)
	if msg == "" {
		// Halting over a missing diagnostic must not recurse; name
		// the omission and carry on halting.
		msg = "halt with no diagnostic"
	}
	c.Printf("cpu%d: halt: ", c.CPU)
	c.Printf(msg)
	c.Printf("\n")
	var pcs [haltFrames]uintptr
	n := c.callers(2, pcs[:])
	for i := 0; i < n; i++ {
		c.Printf(" %p\n", pcs[i])
	}
	c.halted.Store(true)
	c.notify(HaltState)
	c.freeze()
}
