package mm

import "math"

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// PhysAddr returns the physical base address of this Frame.
func (f Frame) PhysAddr() PhysAddr {
	return PhysAddr(f.Address())
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// VirtAddr returns the virtual base address of this Page.
func (p Page) VirtAddr() VirtAddr {
	return VirtAddr(p.Address())
}

// PML4Index returns the index (bits 39-47) of the PML4 entry covering this page.
func (p Page) PML4Index() uint { return p.tableIndex(39) }

// PDPTIndex returns the index (bits 30-38) of the PDPT entry covering this page.
func (p Page) PDPTIndex() uint { return p.tableIndex(30) }

// PDIndex returns the index (bits 21-29) of the PD entry covering this page.
func (p Page) PDIndex() uint { return p.tableIndex(21) }

// PTIndex returns the index (bits 12-20) of the PT entry that maps this page.
func (p Page) PTIndex() uint { return p.tableIndex(12) }

func (p Page) tableIndex(shift uintptr) uint {
	return uint((p.Address() >> shift) & tableIndexMask)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}
