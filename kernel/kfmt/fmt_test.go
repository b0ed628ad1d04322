package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{func() { printfn("no args") }, "no args"},
		// bool values
		{func() { printfn("%t", true) }, "true"},
		{func() { printfn("%41t", false) }, "false"},
		// strings and byte slices
		{func() { printfn("%s arg", "STRING") }, "STRING arg"},
		{func() { printfn("%s arg", []byte("BYTE SLICE")) }, "BYTE SLICE arg"},
		{func() { printfn("'%4s' arg with padding", "ABC") }, "' ABC' arg with padding"},
		{func() { printfn("'%4s' arg longer than padding", "ABCDE") }, "'ABCDE' arg longer than padding"},
		// unsigned integers
		{func() { printfn("uint arg: %d", uint8(10)) }, "uint arg: 10"},
		{func() { printfn("uint arg: %o", uint16(0777)) }, "uint arg: 777"},
		{func() { printfn("uint arg: 0x%x", uint32(0xbadf00d)) }, "uint arg: 0xbadf00d"},
		{func() { printfn("frame at 0x%8x", uintptr(0xb8000)) }, "frame at 0x000b8000"},
		{func() { printfn("0x%16x", uint64(0xfffffffffffff000)) }, "0xfffffffffffff000"},
		{func() { printfn("'%3d'", uint(7)) }, "'  7'"},
		{func() { printfn("%d", uint64(0)) }, "0"},
		// signed integers
		{func() { printfn("int arg: %d", -42) }, "int arg: -42"},
		{func() { printfn("'%5d'", int8(-9)) }, "'   -9'"},
		{func() { printfn("'%6x'", int64(-255)) }, "'-000ff'"},
		{func() { printfn("%d", int16(1024)) }, "1024"},
		{func() { printfn("%x", int32(-1)) }, "-1"},
		// escaped percent
		{func() { printfn("100%%") }, "100%"},
		// errors
		{func() { printfn("missing %d") }, "missing (MISSING)"},
		{func() { printfn("%d", "not a number") }, "%!(WRONGTYPE)"},
		{func() { printfn("%s", 5) }, "%!(WRONGTYPE)"},
		{func() { printfn("%t", 1) }, "%!(WRONGTYPE)"},
		{func() { printfn("trailing %") }, "trailing %!(NOVERB)"},
		{func() { printfn("%q", 1) }, "%!(NOVERB)%!(EXTRA)"},
		{func() { printfn("%d", 1, 2) }, "1%!(EXTRA)"},
	}

	var buf bytes.Buffer
	outputSink = &buf

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer.rIndex, earlyPrintBuffer.wIndex = 0, 0
	}()

	outputSink = nil
	earlyPrintBuffer.rIndex, earlyPrintBuffer.wIndex = 0, 0

	Printf("[vmm] mapped %d pages", 3)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "[vmm] mapped 3 pages", buf.String(); got != exp {
		t.Fatalf("expected SetOutputSink to flush %q; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the installed sink")
	}

	Printf("!")
	if exp, got := "[vmm] mapped 3 pages!", buf.String(); got != exp {
		t.Fatalf("expected Printf to write to the sink; got %q", got)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer
	Fprintf(&buf, "[%s] 0x%x -> 0x%x", "vmm", uintptr(0x400000), uintptr(0x1000))

	if exp, got := "[vmm] 0x400000 -> 0x1000", buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}
}
