package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	var (
		buf    bytes.Buffer
		expStr = "the big brown fox jumped over the lazy dog"
		rb     ringBuffer
	)

	t.Run("read/write", func(t *testing.T) {
		rb.wIndex, rb.rIndex = 0, 0
		n, err := rb.Write([]byte(expStr))
		if err != nil {
			t.Fatal(err)
		}

		if n != len(expStr) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(expStr), n)
		}

		if got := readByteByByte(&buf, &rb); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("write moves read pointer", func(t *testing.T) {
		rb.wIndex, rb.rIndex = ringBufferSize-1, 0
		if _, err := rb.Write([]byte{'!'}); err != nil {
			t.Fatal(err)
		}

		if exp := 1; rb.rIndex != exp {
			t.Fatalf("expected write to push rIndex to %d; got %d", exp, rb.rIndex)
		}
	})

	t.Run("wrap around", func(t *testing.T) {
		rb.wIndex, rb.rIndex = ringBufferSize-5, ringBufferSize-5
		if _, err := rb.Write([]byte(expStr)); err != nil {
			t.Fatal(err)
		}

		if got := readByteByByte(&buf, &rb); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("bulk read of wrapped buffer", func(t *testing.T) {
		rb.wIndex, rb.rIndex = ringBufferSize-5, ringBufferSize-5
		if _, err := rb.Write([]byte(expStr)); err != nil {
			t.Fatal(err)
		}

		buf.Reset()
		if _, err := io.Copy(&buf, &rb); err != nil {
			t.Fatal(err)
		}

		if got := buf.String(); got != expStr {
			t.Fatalf("expected to read %q; got %q", expStr, got)
		}
	})

	t.Run("empty buffer", func(t *testing.T) {
		rb.wIndex, rb.rIndex = 0, 0
		if _, err := rb.Read(make([]byte, 1)); err != io.EOF {
			t.Fatalf("expected io.EOF; got %v", err)
		}
	})
}

func readByteByByte(buf *bytes.Buffer, r io.Reader) string {
	buf.Reset()
	b := make([]byte, 1)
	for {
		_, err := r.Read(b)
		if err == io.EOF {
			break
		}
		buf.Write(b)
	}
	return buf.String()
}
