package mm

import "sos/kernel"

var (
	// ErrNonCanonicalAddr is returned when a virtual address has bits 48-63
	// that do not match bit 47.
	ErrNonCanonicalAddr = &kernel.Error{Module: "mm", Message: "virtual address is not canonical"}
)

// PhysAddr is an address in physical memory.
type PhysAddr uintptr

// AlignDown rounds the address down to the nearest page boundary.
func (a PhysAddr) AlignDown() PhysAddr {
	return a &^ PhysAddr(PageSize-1)
}

// AlignUp rounds the address up to the nearest page boundary.
func (a PhysAddr) AlignUp() PhysAddr {
	return (a + PhysAddr(PageSize-1)) &^ PhysAddr(PageSize-1)
}

// IsAligned returns true if the address lies on a page boundary.
func (a PhysAddr) IsAligned() bool {
	return a&PhysAddr(PageSize-1) == 0
}

// PageOffset returns the offset of the address within its frame.
func (a PhysAddr) PageOffset() uintptr {
	return uintptr(a) & (PageSize - 1)
}

// Frame returns the frame that contains this address.
func (a PhysAddr) Frame() Frame {
	return FrameFromAddress(uintptr(a))
}

// VirtAddr is a canonical address in virtual memory.
type VirtAddr uintptr

// NewVirtAddr validates that addr is canonical and returns it as a VirtAddr.
func NewVirtAddr(addr uintptr) (VirtAddr, *kernel.Error) {
	if CanonicalVirtAddr(addr) != VirtAddr(addr) {
		return 0, ErrNonCanonicalAddr
	}

	return VirtAddr(addr), nil
}

// CanonicalVirtAddr returns addr with bit 47 copied into bits 48-63. It is
// used when an address is produced by arithmetic that may shift bits out of
// the significant range.
func CanonicalVirtAddr(addr uintptr) VirtAddr {
	const signShift = 64 - canonicalBits
	return VirtAddr(uintptr(int64(addr<<signShift) >> signShift))
}

// AlignDown rounds the address down to the nearest page boundary.
func (a VirtAddr) AlignDown() VirtAddr {
	return a &^ VirtAddr(PageSize-1)
}

// AlignUp rounds the address up to the nearest page boundary. The result is
// made canonical again in case rounding crossed bit 47.
func (a VirtAddr) AlignUp() VirtAddr {
	return CanonicalVirtAddr((uintptr(a) + PageSize - 1) &^ (PageSize - 1))
}

// IsAligned returns true if the address lies on a page boundary.
func (a VirtAddr) IsAligned() bool {
	return a&VirtAddr(PageSize-1) == 0
}

// PageOffset returns the offset of the address within its page.
func (a VirtAddr) PageOffset() uintptr {
	return uintptr(a) & (PageSize - 1)
}

// Page returns the virtual page that contains this address.
func (a VirtAddr) Page() Page {
	return PageFromAddress(uintptr(a))
}
