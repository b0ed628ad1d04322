package vmm

import (
	"sos/kernel"
	"sos/kernel/kfmt"
	"sos/kernel/mm"
	"sos/kernel/multiboot"
	"unsafe"
)

var (
	// The following functions are used by tests to mock the multiboot
	// queries performed by KernelRemap.
	visitElfSectionsFn = multiboot.VisitElfSections
	infoRegionFn       = multiboot.InfoRegion

	// kernelTempPage is the temp page used while building the kernel page
	// tables. It lives outside the Go stack so that taking the address of
	// its allocator does not leak it to the heap.
	kernelTempPage TempPage
)

// KernelRemap builds a new page table hierarchy that maps the kernel image
// using 4K pages and per-section permissions and activates it. ELF sections
// whose address lies at or above kernelPageOffset are mapped to the physical
// frames at (address - kernelPageOffset). The multiboot info block and the
// VGA text buffer are identity-mapped so they stay accessible once the new
// hierarchy is loaded.
//
// The PML4 page of the boot page tables is left unmapped in the new
// hierarchy so that a kernel stack overflow into it faults instead of
// silently corrupting memory.
func KernelRemap(active *ActivePageTable, alloc mm.FrameAllocator, kernelPageOffset uintptr) *kernel.Error {
	var err *kernel.Error
	if kernelTempPage, err = NewTempPage(mm.PageFromAddress(tempPageAddr), alloc); err != nil {
		return err
	}

	pml4Frame, err := alloc.AllocFrame()
	if err != nil {
		return err
	}

	newTable := NewInactivePageTable(pml4Frame, active, &kernelTempPage)

	active.Using(&newTable, &kernelTempPage, func(mapper *ActivePML4) {
		mapKernelSections(mapper, alloc, kernelPageOffset)

		if infoAddr, infoSize := infoRegionFn(); infoSize != 0 {
			kfmt.Printf("[vmm] identity mapping boot info [0x%16x - 0x%16x]\n", infoAddr, infoAddr+infoSize-1)
			mapRange(mapper, mm.PageFromAddress(infoAddr), mm.FrameFromAddress(infoAddr), infoSize+(infoAddr&(mm.PageSize-1)), FlagPresent|FlagNoExecute, alloc)
		}

		mapRange(mapper, mm.PageFromAddress(vgaBufferAddr), mm.FrameFromAddress(vgaBufferAddr), mm.PageSize, FlagPresent|FlagRW|FlagNoExecute, alloc)
	})

	oldTable := active.Replace(newTable)
	kfmt.Printf("[vmm] switched to new page table (PML4 frame: 0x%x)\n", newTable.Frame().Address())

	guardPage := mm.PageFromAddress(oldTable.Frame().Address() + kernelPageOffset)
	if frame, ok := active.TranslatePage(guardPage); ok && frame == oldTable.Frame() {
		active.unmap(guardPage)
		kfmt.Printf("[vmm] guard page at 0x%16x\n", guardPage.Address())
	}

	return nil
}

// mapKernelSections maps the allocated ELF sections of the kernel image.
func mapKernelSections(mapper *ActivePML4, alloc mm.FrameAllocator, kernelPageOffset uintptr) {
	var visitor = func(sec multiboot.ElfSection) {
		if !sec.Allocated() || sec.Size == 0 || sec.Address < kernelPageOffset {
			return
		}

		flags := FlagPresent
		if !sec.Executable() {
			flags |= FlagNoExecute
		}

		if sec.Writable() {
			flags |= FlagRW
		}

		kfmt.Printf("[vmm] mapping section %s [0x%16x - 0x%16x]\n", sec.Name, sec.Address, sec.Address+uintptr(sec.Size-1))

		startPage, lastPage := sec.Pages()
		startFrame := mm.FrameFromAddress(sec.Address - kernelPageOffset)
		mapRange(mapper, startPage, startFrame, (lastPage-startPage+1).Address(), flags, alloc)
	}

	// Use the noescape hack to prevent the compiler from leaking the visitor
	// function literal to the heap.
	visitElfSectionsFn(
		*(*multiboot.ElfSectionVisitor)(noEscape(unsafe.Pointer(&visitor))),
	)
}

// mapRange maps size bytes starting at page to the frames starting at frame.
// Pages that are already mapped to the expected frame gain the write and
// execute permissions requested by flags. A page that is mapped to any other
// frame is fatal.
func mapRange(mapper *ActivePML4, page mm.Page, frame mm.Frame, size uintptr, flags PageTableEntryFlag, alloc mm.FrameAllocator) {
	for count := pageCount(size); count > 0; count, page, frame = count-1, page+1, frame+1 {
		if !mapper.IsMapped(page) {
			mapper.Map(page, frame, flags, alloc)
			continue
		}

		entry, err := mapper.leafEntry(page)
		if err != nil {
			panic(err)
		}

		if mapped, _ := entry.Frame(); mapped != frame {
			panic(errPageAlreadyMapped)
		}

		if flags&FlagRW != 0 {
			entry.SetFlags(FlagRW)
		}

		if flags&FlagNoExecute == 0 {
			entry.ClearFlags(FlagNoExecute)
		}

		mapper.regs.FlushTLBEntry(page.Address())
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
