package pmm

import (
	"sos/kernel"
	"sos/kernel/kfmt"
	"sos/kernel/mm"
	"sos/kernel/multiboot"
	"unsafe"
)

// freeListSize is the number of released frames the boot allocator can hold
// for reuse. The paging code only releases frames through Unmap, which the
// kernel calls sparingly before a full-blown allocator takes over.
const freeListSize = 64

var (
	// visitMemRegionsFn is used by tests to supply a memory map.
	visitMemRegionsFn = multiboot.VisitMemRegions

	errBootAllocOutOfMemory  = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
	errBootAllocFreeListFull = &kernel.Error{Module: "boot_mem_alloc", Message: "free list is full"}
	errBootAllocBadFree      = &kernel.Error{Module: "boot_mem_alloc", Message: "attempt to free a frame that was never allocated"}
)

// BootMemAllocator implements a rudimentary physical memory allocator which
// backs the paging code while the kernel boots.
//
// The allocator uses the memory region information provided by the
// bootloader to detect free memory blocks and return the next available free
// frame. Allocations are tracked via an internal counter that contains the
// last allocated frame.
//
// Freed frames are pushed to a small fixed-size stack and are handed out
// again, most recently freed first, before any new frame is carved out of the
// memory map.
type BootMemAllocator struct {
	// allocCount tracks the total number of frames carved out of the
	// memory map.
	allocCount uint64

	// lastAllocFrame tracks the last allocated frame number.
	lastAllocFrame mm.Frame

	// Keep track of kernel location so we exclude this region.
	kernelStartAddr, kernelEndAddr   uintptr
	kernelStartFrame, kernelEndFrame mm.Frame

	freeList  [freeListSize]mm.Frame
	freeCount int
}

// Init sets up the boot memory allocator internal state and prints the
// system memory map.
func (alloc *BootMemAllocator) Init(kernelStart, kernelEnd uintptr) {
	// round down kernel start to the nearest page and round up kernel end
	// to the nearest page.
	pageSizeMinus1 := mm.PageSize - 1
	alloc.kernelStartAddr = kernelStart
	alloc.kernelEndAddr = kernelEnd
	alloc.kernelStartFrame = mm.Frame((kernelStart & ^pageSizeMinus1) >> mm.PageShift)
	alloc.kernelEndFrame = mm.Frame(((kernelEnd+pageSizeMinus1) & ^pageSizeMinus1)>>mm.PageShift) - 1
	alloc.allocCount = 0
	alloc.lastAllocFrame = 0
	alloc.freeCount = 0

	alloc.printMemoryMap()
}

// AllocFrame returns the most recently freed frame, if any. Otherwise it scans
// the system memory regions reported by the bootloader and reserves the next
// available free frame.
//
// AllocFrame returns an error if no more memory can be allocated.
func (alloc *BootMemAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.freeCount > 0 {
		alloc.freeCount--
		return alloc.freeList[alloc.freeCount], nil
	}

	var err = errBootAllocOutOfMemory

	var visitor = func(region multiboot.MemRegion) bool {
		// Ignore reserved regions and regions that do not contain a whole frame
		if region.Type != multiboot.RegionAvailable {
			return true
		}

		regionStartFrame, regionEndFrame, ok := region.Frames()
		if !ok {
			return true
		}

		// Skip over already allocated regions
		if alloc.lastAllocFrame >= regionEndFrame {
			return true
		}

		// If last frame used a different region and the kernel image
		// is located at the beginning of this region OR we are in
		// current region but lastAllocFrame + 1 points to the kernel
		// start we need to jump to the page following the kernel end
		// frame
		if (alloc.lastAllocFrame <= regionStartFrame && alloc.kernelStartFrame == regionStartFrame) ||
			(alloc.lastAllocFrame <= regionEndFrame && alloc.lastAllocFrame+1 == alloc.kernelStartFrame) {
			alloc.lastAllocFrame = alloc.kernelEndFrame + 1
		} else if alloc.lastAllocFrame < regionStartFrame || alloc.allocCount == 0 {
			// we are in the previous region and need to jump to this one OR
			// this is the first allocation and the region begins at frame 0
			alloc.lastAllocFrame = regionStartFrame
		} else {
			// we are in the region and we can select the next frame
			alloc.lastAllocFrame++
		}

		// The above adjustment might push lastAllocFrame outside of the
		// region end (e.g kernel ends at last page in the region)
		if alloc.lastAllocFrame > regionEndFrame {
			return true
		}

		err = nil
		return false
	}

	// AllocFrame runs before the Go allocator is available so neither the
	// visitor nor the variables it captures may be moved to the heap.
	visitMemRegionsFn(
		*(*multiboot.MemRegionVisitor)(noEscape(unsafe.Pointer(&visitor))),
	)

	if err != nil {
		return mm.InvalidFrame, err
	}

	alloc.allocCount++
	return alloc.lastAllocFrame, nil
}

// FreeFrame returns a frame obtained by AllocFrame to the allocator.
func (alloc *BootMemAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	switch {
	case !frame.Valid() || alloc.allocCount == 0 || frame > alloc.lastAllocFrame:
		return errBootAllocBadFree
	case alloc.freeCount == freeListSize:
		return errBootAllocFreeListFull
	}

	alloc.freeList[alloc.freeCount] = frame
	alloc.freeCount++
	return nil
}

// printMemoryMap scans the memory region information provided by the
// bootloader and prints out the system's memory map.
func (alloc *BootMemAllocator) printMemoryMap() {
	kfmt.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mm.Size
	var visitor = func(region multiboot.MemRegion) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", uintptr(region.Start), uint64(region.Start)+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.RegionAvailable {
			totalFree += mm.Size(region.Length)
		}
		return true
	}
	visitMemRegionsFn(
		*(*multiboot.MemRegionVisitor)(noEscape(unsafe.Pointer(&visitor))),
	)
	kfmt.Printf("[boot_mem_alloc] available memory: %dKb\n", uint64(totalFree/mm.Kb))
	kfmt.Printf("[boot_mem_alloc] kernel loaded at 0x%x - 0x%x\n", alloc.kernelStartAddr, alloc.kernelEndAddr)
	kfmt.Printf("[boot_mem_alloc] size: %d bytes, reserved pages: %d\n",
		uint64(alloc.kernelEndAddr-alloc.kernelStartAddr),
		uint64(alloc.kernelEndFrame-alloc.kernelStartFrame+1),
	)
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
