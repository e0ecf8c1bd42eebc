package console

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

func newTestConsole() (*Console, *bytes.Buffer) {
	serial := new(bytes.Buffer)
	c := New(serial)
	return c, serial
}

// feed delivers the given bytes through the interrupt path, one drain
// loop per call, like a burst of keystrokes.
func feed(c *Console, p ...byte) {
	i := 0
	c.Intr(func() int {
		if i == len(p) {
			return -1
		}
		b := p[i]
		i++
		return int(b)
	})
}

func feedString(c *Console, s string) { feed(c, []byte(s)...) }

func wantCounters(t *testing.T, c *Console, r, w, e, max uint64) {
	t.Helper()
	gr, gw, ge, gmax := c.Counters()
	if gr != r || gw != w || ge != e || gmax != max {
		t.Errorf("counters = %d/%d/%d/%d, want %d/%d/%d/%d",
			gr, gw, ge, gmax, r, w, e, max)
	}
}

func assertInvariant(t *testing.T, c *Console) {
	t.Helper()
	r, w, e, max := c.Counters()
	if r > w || w > e || e > max || max > r+bufSize {
		t.Fatalf("invariant violated: r=%d w=%d e=%d max=%d", r, w, e, max)
	}
}

func TestFeedInvariant(t *testing.T) {
	c, _ := newTestConsole()
	script := []byte("hello\rworld")
	script = append(script, ctrlBS, ctrlBS, CodeLeft, CodeLeft, CodeRight, 'X')
	script = append(script, ctrlKill, ctrlEOF, CodeUp, CodeDown, 0, ctrlDel)
	script = append(script, []byte("final line\n")...)
	for _, b := range script {
		feed(c, b)
		assertInvariant(t, c)
	}
}

func TestReadLine(t *testing.T) {
	c, _ := newTestConsole()
	feedString(c, "abc\n")
	wantCounters(t, c, 0, 4, 4, 4)

	dst := make([]byte, 16)
	n, err := c.ReadLine(context.Background(), dst)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if got := string(dst[:n]); got != "abc\n" {
		t.Errorf("read %q, want %q", got, "abc\n")
	}
	wantCounters(t, c, 4, 4, 4, 4)
}

func TestCarriageReturnNormalized(t *testing.T) {
	c, _ := newTestConsole()
	feedString(c, "a\r")
	dst := make([]byte, 4)
	n, _ := c.ReadLine(context.Background(), dst)
	if got := string(dst[:n]); got != "a\n" {
		t.Errorf("read %q, want %q", got, "a\n")
	}
}

func TestKillLine(t *testing.T) {
	c, serial := newTestConsole()
	feedString(c, "hello")
	serial.Reset()
	feed(c, ctrlKill)
	wantCounters(t, c, 0, 0, 0, 0)
	if n := strings.Count(serial.String(), "\b \b"); n != 5 {
		t.Errorf("got %d backspace echoes, want 5", n)
	}
}

func TestKillLineAfterCursorLeft(t *testing.T) {
	c, serial := newTestConsole()
	feedString(c, "abc")
	feed(c, CodeLeft, CodeLeft)
	serial.Reset()
	feed(c, ctrlKill)
	wantCounters(t, c, 0, 0, 0, 0)
	assertInvariant(t, c)
	if n := strings.Count(serial.String(), "\b \b"); n != 3 {
		t.Errorf("got %d backspace echoes, want 3", n)
	}
}

func TestBackspace(t *testing.T) {
	for _, bs := range []byte{ctrlBS, ctrlDel} {
		c, _ := newTestConsole()
		feedString(c, "abcd")
		feed(c, CodeLeft, CodeLeft) // cursor between b and c
		feed(c, bs)                 // erase b
		feedString(c, "\n")
		dst := make([]byte, 8)
		n, _ := c.ReadLine(context.Background(), dst)
		if got := string(dst[:n]); got != "acd\n" {
			t.Errorf("byte %#x: read %q, want %q", bs, got, "acd\n")
		}
	}
}

func TestBackspaceAtLineStart(t *testing.T) {
	c, serial := newTestConsole()
	feed(c, ctrlBS)
	wantCounters(t, c, 0, 0, 0, 0)
	if serial.Len() != 0 {
		t.Errorf("backspace at line start echoed %q", serial.String())
	}
}

func TestCursorLeftAtLineStart(t *testing.T) {
	c, _ := newTestConsole()
	feedString(c, "ab")
	feed(c, CodeLeft, CodeLeft, CodeLeft) // third is a no-op
	_, _, e, _ := c.Counters()
	if e != 0 {
		t.Errorf("e = %d, want 0", e)
	}
	if pos := c.Cursor(); pos != 0 {
		t.Errorf("cursor = %d, want 0", pos)
	}
}

func TestCursorRightBoundedByMax(t *testing.T) {
	c, _ := newTestConsole()
	feedString(c, "ab")
	feed(c, CodeLeft)
	feed(c, CodeRight, CodeRight) // second is a no-op
	_, _, e, max := c.Counters()
	if e != max {
		t.Errorf("e = %d, want %d", e, max)
	}
}

func TestInsertMidLine(t *testing.T) {
	c, _ := newTestConsole()
	feedString(c, "ad")
	feed(c, CodeLeft)
	feedString(c, "bc")
	feedString(c, "\n")
	dst := make([]byte, 8)
	n, _ := c.ReadLine(context.Background(), dst)
	if got := string(dst[:n]); got != "abcd\n" {
		t.Errorf("read %q, want %q", got, "abcd\n")
	}
}

func TestUpDownReserved(t *testing.T) {
	c, serial := newTestConsole()
	feed(c, CodeUp, CodeDown)
	wantCounters(t, c, 0, 0, 0, 0)
	if serial.Len() != 0 {
		t.Errorf("cursor codes reached the serial sink: %q", serial.String())
	}
}

func TestEndOfInputEmpty(t *testing.T) {
	c, _ := newTestConsole()
	feed(c, ctrlEOF)
	n, err := c.ReadLine(context.Background(), make([]byte, 8))
	if err != nil || n != 0 {
		t.Fatalf("ReadLine = %d, %v, want 0, nil", n, err)
	}
	// The marker was consumed; later input is untouched.
	feedString(c, "hi\n")
	dst := make([]byte, 8)
	n, _ = c.ReadLine(context.Background(), dst)
	if got := string(dst[:n]); got != "hi\n" {
		t.Errorf("read %q, want %q", got, "hi\n")
	}
}

func TestEndOfInputAfterPartialLine(t *testing.T) {
	c, _ := newTestConsole()
	feedString(c, "ab")
	feed(c, ctrlEOF)
	dst := make([]byte, 8)
	n, _ := c.ReadLine(context.Background(), dst)
	if got := string(dst[:n]); got != "ab" {
		t.Fatalf("read %q, want %q", got, "ab")
	}
	// The marker is saved so this call observes a zero-length result.
	n, err := c.ReadLine(context.Background(), dst)
	if err != nil || n != 0 {
		t.Errorf("ReadLine = %d, %v, want 0, nil", n, err)
	}
}

func TestForceCommitOnFullRing(t *testing.T) {
	c, _ := newTestConsole()
	got := make(chan []byte, 1)
	go func() {
		dst := make([]byte, bufSize)
		n, err := c.ReadLine(context.Background(), dst)
		if err != nil {
			t.Errorf("ReadLine: %v", err)
		}
		got <- dst[:n]
	}()

	line := bytes.Repeat([]byte{'x'}, bufSize)
	feed(c, line[:bufSize-1]...)
	if _, w, _, _ := c.Counters(); w != 0 {
		t.Fatalf("committed after %d bytes, want commit only at %d", bufSize-1, bufSize)
	}
	feed(c, line[bufSize-1])
	if _, w, _, _ := c.Counters(); w != bufSize {
		t.Fatalf("w = %d after filling the ring, want %d", w, bufSize)
	}

	select {
	case b := <-got:
		if !bytes.Equal(b, line) {
			t.Errorf("reader got %d bytes, want the %d force-committed bytes", len(b), bufSize)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reader was not woken by the force-commit")
	}
}

func TestFullRingDropsInput(t *testing.T) {
	c, _ := newTestConsole()
	feed(c, bytes.Repeat([]byte{'x'}, bufSize)...) // force-commits, ring now full
	feed(c, 'y')
	wantCounters(t, c, 0, bufSize, bufSize, bufSize)
}

func TestInterruptedRead(t *testing.T) {
	c, _ := newTestConsole()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.ReadLine(ctx, make([]byte, 8))
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrInterrupted) {
			t.Fatalf("ReadLine error = %v, want ErrInterrupted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled reader did not wake")
	}
	// Nothing was consumed; the next reader gets the next line whole.
	feedString(c, "ok\n")
	dst := make([]byte, 8)
	n, err := c.ReadLine(context.Background(), dst)
	if err != nil || string(dst[:n]) != "ok\n" {
		t.Errorf("ReadLine after interrupt = %q, %v", dst[:n], err)
	}
}

func TestConcurrentReaders(t *testing.T) {
	c, _ := newTestConsole()
	const readers = 4
	results := make(chan string, readers)
	for i := 0; i < readers; i++ {
		go func() {
			dst := make([]byte, 16)
			n, err := c.ReadLine(context.Background(), dst)
			if err != nil {
				t.Errorf("ReadLine: %v", err)
			}
			results <- string(dst[:n])
		}()
	}
	time.Sleep(10 * time.Millisecond)

	want := []string{"l0\n", "l1\n", "l2\n", "l3\n"}
	for _, line := range want {
		feedString(c, line)
	}

	var got []string
	for i := 0; i < readers; i++ {
		select {
		case s := <-results:
			got = append(got, s)
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d readers completed", i, readers)
		}
	}
	sort.Strings(got)
	if strings.Join(got, "") != strings.Join(want, "") {
		t.Errorf("lines delivered %q, want each of %q exactly once", got, want)
	}
}

func TestShortDestination(t *testing.T) {
	c, _ := newTestConsole()
	feedString(c, "abcdef\n")
	dst := make([]byte, 3)
	n, _ := c.ReadLine(context.Background(), dst)
	if got := string(dst[:n]); got != "abc" {
		t.Fatalf("read %q, want %q", got, "abc")
	}
	n, _ = c.ReadLine(context.Background(), dst)
	if got := string(dst[:n]); got != "def" {
		t.Fatalf("read %q, want %q", got, "def")
	}
	n, _ = c.ReadLine(context.Background(), dst)
	if got := string(dst[:n]); got != "\n" {
		t.Fatalf("read %q, want %q", got, "\n")
	}
}

func TestDeviceWrite(t *testing.T) {
	c, serial := newTestConsole()
	n, err := c.Write([]byte("hi\n"))
	if n != 3 || err != nil {
		t.Fatalf("Write = %d, %v, want 3, nil", n, err)
	}
	if serial.String() != "hi\n" {
		t.Errorf("serial = %q, want %q", serial.String(), "hi\n")
	}
	cells := make([]Cell, gridSize)
	pos, _ := c.Snapshot(cells)
	if cells[0].Glyph != 'h' || cells[1].Glyph != 'i' {
		t.Errorf("grid row 0 = %q%q, want \"hi\"", cells[0].Glyph, cells[1].Glyph)
	}
	if pos != Width {
		t.Errorf("cursor = %d, want %d", pos, Width)
	}
}

type countingLocker struct {
	locks, unlocks int
}

func (l *countingLocker) Lock()   { l.locks++ }
func (l *countingLocker) Unlock() { l.unlocks++ }

func TestInodeLockBracketing(t *testing.T) {
	c, _ := newTestConsole()
	l := new(countingLocker)
	c.InodeLock = l

	feedString(c, "x\n")
	if _, err := c.Read(context.Background(), make([]byte, 8)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if l.unlocks != 1 || l.locks != 1 {
		t.Errorf("after Read: %d unlocks, %d locks, want 1 and 1", l.unlocks, l.locks)
	}
	if _, err := c.Write([]byte("y")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if l.unlocks != 2 || l.locks != 2 {
		t.Errorf("after Write: %d unlocks, %d locks, want 2 and 2", l.unlocks, l.locks)
	}
}

func TestStatusDump(t *testing.T) {
	c, _ := newTestConsole()
	called := 0
	c.DumpFunc = func() { called++ }
	feed(c, 'a', ctrlDump, 'b')
	if called != 1 {
		t.Errorf("DumpFunc called %d times, want 1", called)
	}
	// ^P is not input: only a and b are buffered.
	wantCounters(t, c, 0, 0, 2, 2)
}
