package kfmt

import "io"

// ringBufferSize defines the size of the ring buffer that captures early
// Printf output. It is large enough to hold the memory map and remap log of
// a typical boot. The ring buffer size must always be a power of 2.
const ringBufferSize = 2048

// ringBuffer captures the output of Printf until an output sink is installed.
// When full, the oldest bytes are overwritten.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns io.EOF once all buffered
// bytes have been consumed.
func (rb *ringBuffer) Read(p []byte) (n int, err error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// Read the contiguous block that starts at rIndex; a wrapped buffer
	// needs a second Read call to return the rest.
	limit := rb.wIndex
	if rb.rIndex > rb.wIndex {
		limit = ringBufferSize
	}

	n = copy(p, rb.buffer[rb.rIndex:limit])
	rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
	return n, nil
}
