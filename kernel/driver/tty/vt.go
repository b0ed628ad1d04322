package tty

import "sos/kernel/driver/video/console"

const (
	defaultFg = console.LightGrey
	defaultBg = console.Black
)

// Vt implements a simple terminal that can process LF and CR characters. The
// terminal uses a text console for its output and implements io.Writer so it
// can be used as the kfmt output sink.
type Vt struct {
	// Interfaces are avoided since this code runs before the Go allocator
	// is available.
	cons *console.Text

	width  uint16
	height uint16

	curX    uint16
	curY    uint16
	curAttr console.Attr
}

// AttachTo links the terminal with the specified console and clears it.
func (t *Vt) AttachTo(cons *console.Text) {
	t.cons = cons
	t.width, t.height = cons.Dimensions()
	t.curX, t.curY = 0, 0
	t.curAttr = console.MakeAttr(defaultFg, defaultBg)
	t.cons.Clear(0, 0, t.width, t.height, t.curAttr)
}

// Position returns the current cursor position (x, y).
func (t *Vt) Position() (uint16, uint16) {
	t.cons.Lock()
	defer t.cons.Unlock()

	return t.curX, t.curY
}

// Write implements io.Writer.
func (t *Vt) Write(data []byte) (int, error) {
	t.cons.Lock()
	defer t.cons.Unlock()

	for _, b := range data {
		switch b {
		case '\r':
			t.curX = 0
		case '\n':
			t.curX = 0
			t.lf()
		case '\t':
			for n := 4 - t.curX%4; n > 0; n-- {
				t.put(' ')
			}
		default:
			t.put(b)
		}
	}

	return len(data), nil
}

func (t *Vt) put(b byte) {
	t.cons.Write(b, t.curAttr, t.curX, t.curY)
	t.curX++
	if t.curX == t.width {
		t.curX = 0
		t.lf()
	}
}

// lf advances the y coordinate of the terminal cursor by one line scrolling
// the terminal contents if the end of the last terminal line is reached.
func (t *Vt) lf() {
	if t.curY+1 < t.height {
		t.curY++
		return
	}

	t.cons.ScrollUp(1)
	t.cons.Clear(0, t.height-1, t.width, 1, t.curAttr)
}
