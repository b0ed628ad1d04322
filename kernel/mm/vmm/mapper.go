package vmm

import (
	"sos/kernel"
	"sos/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errPageAlreadyMapped = &kernel.Error{Module: "vmm", Message: "page is already mapped"}
	errOutOfFrames       = &kernel.Error{Module: "vmm", Message: "out of physical frames"}
)

// ActivePML4 manipulates the page table hierarchy that is reachable through
// the recursive PML4 entry. While the recursive entry points back to the
// PML4 loaded in CR3 this is the active hierarchy. Inside
// ActivePageTable.Using it is the hierarchy of an inactive page table.
type ActivePML4 struct {
	pml4 PML4
	regs ControlRegisters
}

// PML4 returns the handle of the PML4 reachable through the recursive mapping.
func (m *ActivePML4) PML4() PML4 {
	return m.pml4
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or false if the virtual address does not correspond to a
// mapped physical address.
func (m *ActivePML4) Translate(virtAddr mm.VirtAddr) (mm.PhysAddr, bool) {
	frame, ok := m.TranslatePage(virtAddr.Page())
	if !ok {
		return 0, false
	}

	return frame.PhysAddr() + mm.PhysAddr(virtAddr.PageOffset()), true
}

// TranslatePage returns the physical frame that page is mapped to. Pages
// that are part of a 2Mb or 1Gb mapping are resolved to the matching frame
// inside the huge page.
func (m *ActivePML4) TranslatePage(page mm.Page) (mm.Frame, bool) {
	pdpt, ok := m.pml4.NextTable(page)
	if !ok {
		return mm.InvalidFrame, false
	}

	if frame, ok := pdpt.HugeFrame(page); ok {
		return frame, true
	}

	pd, ok := pdpt.NextTable(page)
	if !ok {
		return mm.InvalidFrame, false
	}

	if frame, ok := pd.HugeFrame(page); ok {
		return frame, true
	}

	pt, ok := pd.NextTable(page)
	if !ok {
		return mm.InvalidFrame, false
	}

	return pt.Entry(page.PTIndex()).Frame()
}

// IsMapped returns true if page is mapped to a frame.
func (m *ActivePML4) IsMapped(page mm.Page) bool {
	_, ok := m.TranslatePage(page)
	return ok
}

// Map establishes a mapping between a virtual page and a physical memory
// frame. Calls to Map will use the supplied physical frame allocator to
// initialize missing page tables at each paging level supported by the MMU.
// Mapping a page that is already mapped is fatal.
func (m *ActivePML4) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	pt := m.pml4.CreateNextTable(page, alloc).
		CreateNextTable(page, alloc).
		CreateNextTable(page, alloc)

	entry := pt.Entry(page.PTIndex())
	if !entry.IsUnused() {
		panic(errPageAlreadyMapped)
	}

	entry.Set(frame, flags|FlagPresent)
	m.regs.FlushTLBEntry(page.Address())
}

// IdentityMap maps frame to the page with the same number.
func (m *ActivePML4) IdentityMap(frame mm.Frame, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	m.Map(mm.Page(frame), frame, flags, alloc)
}

// MapToAny maps page to a frame obtained from alloc and returns that frame.
func (m *ActivePML4) MapToAny(page mm.Page, flags PageTableEntryFlag, alloc mm.FrameAllocator) mm.Frame {
	frame, err := alloc.AllocFrame()
	if err != nil {
		panic(errOutOfFrames)
	}

	m.Map(page, frame, flags, alloc)
	return frame
}

// MapRegion establishes a mapping to the physical memory region which starts
// at the given frame and ends at frame + pages(size). The size argument is
// always rounded up to the nearest page boundary.
func (m *ActivePML4) MapRegion(startPage mm.Page, frame mm.Frame, size uintptr, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	count := pageCount(size)
	for page := startPage; count > 0; count, page, frame = count-1, page+1, frame+1 {
		m.Map(page, frame, flags, alloc)
	}
}

// IdentityMapRegion establishes an identity mapping to the physical memory
// region which starts at the given frame and ends at frame + pages(size). The
// size argument is always rounded up to the nearest page boundary.
// IdentityMapRegion returns back the Page that corresponds to the region
// start.
func (m *ActivePML4) IdentityMapRegion(startFrame mm.Frame, size uintptr, flags PageTableEntryFlag, alloc mm.FrameAllocator) mm.Page {
	m.MapRegion(mm.Page(startFrame), startFrame, size, flags, alloc)
	return mm.Page(startFrame)
}

// Unmap removes the mapping for page, invalidates its TLB entry and returns
// the frame it pointed to back to alloc. Unmapping a page that is not
// mapped or that is part of a huge page is fatal.
func (m *ActivePML4) Unmap(page mm.Page, alloc mm.FrameAllocator) {
	frame := m.unmap(page)
	if err := alloc.FreeFrame(frame); err != nil {
		panic(err)
	}
}

// unmap clears the PT entry for page and returns the frame it pointed to
// without releasing it.
func (m *ActivePML4) unmap(page mm.Page) mm.Frame {
	entry, err := m.leafEntry(page)
	if err != nil {
		panic(err)
	}

	frame, ok := entry.Frame()
	if !ok {
		panic(ErrInvalidMapping)
	}

	entry.SetUnused()
	m.regs.FlushTLBEntry(page.Address())
	return frame
}

// leafEntry returns the PT entry for page without creating any tables.
func (m *ActivePML4) leafEntry(page mm.Page) (*Entry, *kernel.Error) {
	pdpt, ok := m.pml4.NextTable(page)
	if !ok {
		return nil, ErrInvalidMapping
	}

	if _, huge := pdpt.HugeFrame(page); huge {
		return nil, errNoHugePageSupport
	}

	pd, ok := pdpt.NextTable(page)
	if !ok {
		return nil, ErrInvalidMapping
	}

	if _, huge := pd.HugeFrame(page); huge {
		return nil, errNoHugePageSupport
	}

	pt, ok := pd.NextTable(page)
	if !ok {
		return nil, ErrInvalidMapping
	}

	return pt.Entry(page.PTIndex()), nil
}

func pageCount(size uintptr) uintptr {
	return ((size + (mm.PageSize - 1)) & ^(mm.PageSize - 1)) >> mm.PageShift
}
