package console

import (
	"sync"
	"unsafe"
)

// Attr defines a VGA text mode color.
type Attr uint8

// The 16 colors supported by VGA text mode.
const (
	Black Attr = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGrey
	Grey
	LightBlue
	LightGreen
	LightCyan
	LightRed
	LightMagenta
	LightBrown
	White
)

// MakeAttr combines a foreground and a background color into a cell attribute.
func MakeAttr(fg, bg Attr) Attr {
	return (bg << 4) | (fg & 0xf)
}

// Text is a VGA-compatible text mode console. Each screen cell is a 16-bit
// value holding the character in the low byte and its attribute in the high
// byte. The framebuffer must stay mapped for as long as the console is used.
type Text struct {
	sync.Mutex

	width  uint16
	height uint16
	fb     []uint16
}

// Init sets up the console to use the framebuffer at fbAddr.
func (cons *Text) Init(width, height uint16, fbAddr uintptr) {
	cons.width = width
	cons.height = height
	cons.fb = unsafe.Slice((*uint16)(unsafe.Pointer(fbAddr)), int(width)*int(height))
}

// Dimensions returns the console width and height in characters.
func (cons *Text) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Clear fills the specified rectangular region with blanks using attr.
// The region is clipped to the console dimensions.
func (cons *Text) Clear(x, y, width, height uint16, attr Attr) {
	if x >= cons.width || y >= cons.height {
		return
	}

	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	blank := cell(' ', attr)
	for row := y; row < y+height; row++ {
		offset := int(row)*int(cons.width) + int(x)
		for col := 0; col < int(width); col++ {
			cons.fb[offset+col] = blank
		}
	}
}

// ScrollUp moves the console contents up by the given number of lines. The
// contents of the bottom lines are left as-is.
func (cons *Text) ScrollUp(lines uint16) {
	if lines == 0 || lines >= cons.height {
		return
	}

	copy(cons.fb, cons.fb[int(lines)*int(cons.width):])
}

// Write places ch at the specified location. Writes outside the console
// are ignored.
func (cons *Text) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	cons.fb[int(y)*int(cons.width)+int(x)] = cell(ch, attr)
}

func cell(ch byte, attr Attr) uint16 {
	return uint16(attr)<<8 | uint16(ch)
}
