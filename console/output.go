package console

// emit routes one output code to the serial sink and the display.
// Caller holds mu unless the locking discipline has been abandoned by
// a halt. Once a halt has begun no further output may occur: callers
// freeze here instead.
func (c *Console) emit(code int) {
	if c.halted.Load() {
		c.freeze()
		return
	}
	switch code {
	case backspace:
		// The serial side has no cursor; erase with the classic
		// rub-out sequence.
		c.serialWrite('\b', ' ', '\b')
	case CodeUp, CodeDown, CodeLeft, CodeRight:
		// Cursor movement is a display-only affair.
	default:
		c.serialWrite(byte(code))
	}
	c.disp.putc(code)
}

// serialWrite sends raw bytes to the secondary sink, best effort.
func (c *Console) serialWrite(b ...byte) {
	if c.serial != nil {
		c.serial.Write(b)
	}
}

// Printf writes formatted output to the console. It understands only
// the verbs %d, %x, %p, %s and %%: just enough for boot messages and
// halt diagnostics, built directly on the output gate so that every
// character honors the halt protocol. It takes the console lock only
// while the locking discipline is still in force.
func (c *Console) Printf(format string, args ...any) {
	locking := c.locking.Load()
	if locking {
		c.mu.Lock()
	}
	ai := 0
	next := func() any {
		if ai < len(args) {
			a := args[ai]
			ai++
			return a
		}
		return nil
	}
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			c.emit(int(ch))
			continue
		}
		i++
		if i == len(format) {
			break
		}
		switch format[i] {
		case 'd':
			c.printInt(next(), 10)
		case 'x':
			c.printInt(next(), 16)
		case 'p':
			c.printPtr(next())
		case 's':
			s, ok := next().(string)
			if !ok {
				s = "(null)"
			}
			for j := 0; j < len(s); j++ {
				c.emit(int(s[j]))
			}
		case '%':
			c.emit('%')
		default:
			// Print unknown % sequence to draw attention.
			c.emit('%')
			c.emit(int(format[i]))
		}
	}
	if locking {
		c.mu.Unlock()
	}
}

const hexDigits = "0123456789abcdef"

func (c *Console) printInt(a any, base uint64) {
	var (
		v   uint64
		neg bool
	)
	switch n := a.(type) {
	case int:
		if base == 10 && n < 0 {
			neg = true
			v = uint64(-n)
		} else {
			v = uint64(n)
		}
	case int64:
		if base == 10 && n < 0 {
			neg = true
			v = uint64(-n)
		} else {
			v = uint64(n)
		}
	case uint64:
		v = n
	case uintptr:
		v = uint64(n)
	default:
		c.emit('?')
		return
	}
	var buf [20]byte
	i := 0
	for {
		buf[i] = hexDigits[v%base]
		i++
		v /= base
		if v == 0 {
			break
		}
	}
	if neg {
		buf[i] = '-'
		i++
	}
	for i--; i >= 0; i-- {
		c.emit(int(buf[i]))
	}
}

// printPtr emits a fixed-width hexadecimal address, wide enough for a
// 64-bit program counter.
func (c *Console) printPtr(a any) {
	var v uint64
	switch n := a.(type) {
	case uintptr:
		v = uint64(n)
	case uint64:
		v = n
	case int:
		v = uint64(n)
	default:
		c.emit('?')
		return
	}
	for shift := 60; shift >= 0; shift -= 4 {
		c.emit(int(hexDigits[(v>>uint(shift))&0xf]))
	}
}
