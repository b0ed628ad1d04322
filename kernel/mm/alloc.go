package mm

import "sos/kernel"

// FrameAllocator is implemented by physical frame allocators. The paging code
// never holds on to an allocator; it is handed one explicitly by every caller
// that may need to allocate or release frames.
type FrameAllocator interface {
	// AllocFrame reserves a free physical frame. It returns an error if
	// physical memory is exhausted.
	AllocFrame() (Frame, *kernel.Error)

	// FreeFrame releases a frame previously returned by AllocFrame. The
	// caller guarantees that the frame is no longer in use.
	FreeFrame(Frame) *kernel.Error
}
