package vmm

import (
	"sos/kernel"
	"sos/kernel/cpu"
	"sos/kernel/mm"
	"unsafe"
)

var (
	// tablePtrFn converts the virtual address of a page table into a
	// pointer to its entries. Tests override it to run the table code
	// against a simulated MMU. When compiling the kernel this function
	// will be automatically inlined.
	tablePtrFn = func(tableAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(tableAddr)
	}

	// maskInterruptsFn and restoreInterruptsFn are used by tests to
	// override calls to the cli/popfq instructions which will cause a
	// fault if executed in user-mode.
	maskInterruptsFn    = cpu.SaveFlagsAndDisableInterrupts
	restoreInterruptsFn = cpu.RestoreFlags

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errTableAllocFailed  = &kernel.Error{Module: "vmm", Message: "out of physical frames while creating page table"}
)

// entries is the memory layout shared by all page table levels.
type entries [entriesPerTable]Entry

// Table is a level-agnostic handle to a page table that is reachable at
// a known virtual address.
type Table struct {
	addr uintptr
}

// Addr returns the virtual address through which the table is accessed.
func (t Table) Addr() uintptr {
	return t.addr
}

// Entry returns a pointer to the entry at the given index.
func (t Table) Entry(index uint) *Entry {
	return &(*entries)(tablePtrFn(t.addr))[index]
}

// Zero marks all table entries as unused.
func (t Table) Zero() {
	tbl := (*entries)(tablePtrFn(t.addr))
	for i := range tbl {
		tbl[i].SetUnused()
	}
}

// hugeLeaf returns the entry at index if it is a present huge page leaf.
func (t Table) hugeLeaf(index uint) (*Entry, bool) {
	entry := t.Entry(index)
	return entry, entry.HasFlags(FlagPresent | FlagHugePage)
}

// nextTable returns the address of the table referenced by the entry at
// index, or false if the entry is unused or maps a huge page.
func (t Table) nextTable(index uint) (uintptr, bool) {
	entry := t.Entry(index)
	if !entry.HasFlags(FlagPresent) || entry.HasFlags(FlagHugePage) {
		return 0, false
	}

	return nextTableAddr(t.addr, index), true
}

// createNextTable works like nextTable but allocates, links and clears a
// new table if the entry at index is unused. Running out of frames or
// finding a huge page leaf is fatal.
func (t Table) createNextTable(index uint, alloc mm.FrameAllocator) uintptr {
	if addr, ok := t.nextTable(index); ok {
		return addr
	}

	entry := t.Entry(index)
	if entry.HasFlags(FlagPresent | FlagHugePage) {
		panic(errNoHugePageSupport)
	}

	flags := maskInterruptsFn()
	frame, err := alloc.AllocFrame()
	if err != nil {
		restoreInterruptsFn(flags)
		panic(errTableAllocFailed)
	}

	entry.Set(frame, FlagPresent|FlagRW)

	// The new frame may contain junk from a previous user.
	next := Table{nextTableAddr(t.addr, index)}
	next.Zero()
	restoreInterruptsFn(flags)

	return next.addr
}

// nextTableAddr returns the virtual address of the table referenced by the
// entry at index of the table living at tableAddr. Under the recursive
// mapping, shifting a table address left by one level and appending the
// index selects the next level.
func nextTableAddr(tableAddr uintptr, index uint) uintptr {
	return uintptr(mm.CanonicalVirtAddr((tableAddr << 9) | (uintptr(index) << mm.PageShift)))
}

// PML4 is the top level page table.
type PML4 struct{ Table }

// PDPT is a page directory pointer table; its entries map 1Gb of memory.
type PDPT struct{ Table }

// PD is a page directory; its entries map 2Mb of memory.
type PD struct{ Table }

// PT is the last level page table; its entries map 4K pages.
type PT struct{ Table }

// NextTable returns the PDPT that covers page.
func (t PML4) NextTable(page mm.Page) (PDPT, bool) {
	addr, ok := t.nextTable(page.PML4Index())
	return PDPT{Table{addr}}, ok
}

// CreateNextTable returns the PDPT that covers page, creating it if needed.
func (t PML4) CreateNextTable(page mm.Page, alloc mm.FrameAllocator) PDPT {
	return PDPT{Table{t.createNextTable(page.PML4Index(), alloc)}}
}

// NextTable returns the PD that covers page.
func (t PDPT) NextTable(page mm.Page) (PD, bool) {
	addr, ok := t.nextTable(page.PDPTIndex())
	return PD{Table{addr}}, ok
}

// CreateNextTable returns the PD that covers page, creating it if needed.
func (t PDPT) CreateNextTable(page mm.Page, alloc mm.FrameAllocator) PD {
	return PD{Table{t.createNextTable(page.PDPTIndex(), alloc)}}
}

// HugeFrame returns the frame backing page if the PDPT maps it through a
// 1Gb page.
func (t PDPT) HugeFrame(page mm.Page) (mm.Frame, bool) {
	entry, ok := t.hugeLeaf(page.PDPTIndex())
	if !ok {
		return mm.InvalidFrame, false
	}

	base := mm.FrameFromAddress(entry.load() & pdptHugePhysMask)
	return base + mm.Frame(page.PDIndex()*entriesPerTable+page.PTIndex()), true
}

// NextTable returns the PT that covers page.
func (t PD) NextTable(page mm.Page) (PT, bool) {
	addr, ok := t.nextTable(page.PDIndex())
	return PT{Table{addr}}, ok
}

// CreateNextTable returns the PT that covers page, creating it if needed.
func (t PD) CreateNextTable(page mm.Page, alloc mm.FrameAllocator) PT {
	return PT{Table{t.createNextTable(page.PDIndex(), alloc)}}
}

// HugeFrame returns the frame backing page if the PD maps it through a
// 2Mb page.
func (t PD) HugeFrame(page mm.Page) (mm.Frame, bool) {
	entry, ok := t.hugeLeaf(page.PDIndex())
	if !ok {
		return mm.InvalidFrame, false
	}

	base := mm.FrameFromAddress(entry.load() & pdHugePhysMask)
	return base + mm.Frame(page.PTIndex()), true
}
