package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// numFmtBuf holds the digits of the number being formatted. Digits are
	// written right to left starting from the end of the buffer.
	numFmtBuf [maxBufSize]byte

	// singleByte is used as a shared buffer for passing single characters
	// to doWrite.
	singleByte = []byte(" ")

	// earlyPrintBuffer is a ring buffer that stores Printf output before an
	// output sink is installed.
	earlyPrintBuffer ringBuffer

	// outputSink is an io.Writer where Printf sends its output. If set to
	// nil, the output is redirected to earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the writer that Printf currently sends its output to.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf provides a minimal Printf implementation that can be safely used
// while the paging code runs and the Go allocator is not yet available. This
// implementation does not allocate any memory.
//
// The following subset of formatting verbs is supported:
//
//	%s the uninterpreted bytes of a string or byte slice
//	%o base 8
//	%d base 10
//	%x base 16, with lower-case letters for a-f
//	%t "true" or "false"
//
// Width is specified by an optional decimal number immediately preceding the
// verb. Strings and base-10 integers are left-padded with spaces while base-8
// and base-16 integers are left-padded with zeroes.
//
// Printf does not support %p or %v; both would require reflection which makes
// the compiler emit heap allocations when assembling the argument slice.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		padLen   int
		fmtLen   = len(format)
	)

	for i := 0; i < fmtLen; i++ {
		if format[i] != '%' {
			writeByte(w, format[i])
			continue
		}

		padLen = 0
		for i++; i < fmtLen && format[i] >= '0' && format[i] <= '9'; i++ {
			padLen = (padLen * 10) + int(format[i]-'0')
		}

		// reached end of formatting string without finding a verb
		if i == fmtLen {
			doWrite(w, errNoVerb)
			break
		}

		switch verb := format[i]; verb {
		case '%':
			writeByte(w, '%')
		case 'd', 'x', 'o', 's', 't':
			if argIndex >= len(args) {
				doWrite(w, errMissingArg)
				continue
			}

			switch verb {
			case 'o':
				fmtInt(w, args[argIndex], 8, padLen)
			case 'd':
				fmtInt(w, args[argIndex], 10, padLen)
			case 'x':
				fmtInt(w, args[argIndex], 16, padLen)
			case 's':
				fmtString(w, args[argIndex], padLen)
			case 't':
				fmtBool(w, args[argIndex])
			}
			argIndex++
		default:
			doWrite(w, errNoVerb)
		}
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

// fmtBool prints a formatted version of boolean value v.
func fmtBool(w io.Writer, v interface{}) {
	bVal, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case bVal:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

// fmtString prints a formatted version of string or []byte value v, applying
// the padding specified by padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		// converting the string to a byte slice triggers a memory
		// allocation so it is written one byte at a time.
		for i := 0; i < len(castedVal); i++ {
			writeByte(w, castedVal[i])
		}
	case []byte:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		doWrite(w, castedVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtRepeat writes count bytes with value ch.
func fmtRepeat(w io.Writer, ch byte, count int) {
	for i := 0; i < count; i++ {
		writeByte(w, ch)
	}
}

// fmtInt prints out a formatted version of v in the requested base, applying
// the padding specified by padLen. All built-in signed and unsigned integer
// types are supported.
func fmtInt(w io.Writer, v interface{}, base uint64, padLen int) {
	var (
		uval  uint64
		neg   bool
		padCh = byte('0')
		end   = maxBufSize
		pos   = maxBufSize
	)

	switch t := v.(type) {
	case uint8:
		uval = uint64(t)
	case uint16:
		uval = uint64(t)
	case uint32:
		uval = uint64(t)
	case uint64:
		uval = t
	case uint:
		uval = uint64(t)
	case uintptr:
		uval = uint64(t)
	case int8:
		uval, neg = absInt(int64(t))
	case int16:
		uval, neg = absInt(int64(t))
	case int32:
		uval, neg = absInt(int64(t))
	case int64:
		uval, neg = absInt(t)
	case int:
		uval, neg = absInt(int64(t))
	default:
		doWrite(w, errWrongArgType)
		return
	}

	if base == 10 {
		padCh = ' '
	}

	// leave room for the sign
	if padLen > maxBufSize-1 {
		padLen = maxBufSize - 1
	}

	for {
		pos--
		if digit := uval % base; digit < 10 {
			numFmtBuf[pos] = byte(digit) + '0'
		} else {
			numFmtBuf[pos] = byte(digit-10) + 'a'
		}

		if uval /= base; uval == 0 {
			break
		}
	}

	// Space padding goes before the sign; zero padding after it. In both
	// cases the sign counts towards the requested width.
	if neg && padCh == ' ' {
		pos--
		numFmtBuf[pos] = '-'
		neg = false
	}

	signLen := 0
	if neg {
		signLen = 1
	}
	for end-pos+signLen < padLen {
		pos--
		numFmtBuf[pos] = padCh
	}

	if neg {
		pos--
		numFmtBuf[pos] = '-'
	}

	doWrite(w, numFmtBuf[pos:end])
}

func absInt(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func writeByte(w io.Writer, ch byte) {
	singleByte[0] = ch
	doWrite(w, singleByte)
}

// doWrite is a proxy that uses the runtime.noescape hack to hide p from the
// compiler's escape analysis. Without this hack, the compiler cannot detect
// that p does not escape (due to the call to the yet unknown io.Writer) and
// flags it as escaping. This would make every call to Printf allocate.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		_, _ = w.Write(p)
	} else {
		_, _ = earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
