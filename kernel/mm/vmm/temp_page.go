package vmm

import (
	"sos/kernel"
	"sos/kernel/mm"
)

var (
	errTempPageInUse     = &kernel.Error{Module: "vmm", Message: "temporary page is already mapped"}
	errTinyAllocatorFull = &kernel.Error{Module: "vmm", Message: "temporary page allocator cannot hold more frames"}
)

// TempPage is a reserved virtual page that maps a single physical frame for
// a short period of time, e.g. to initialize an inactive page table. Mapping
// the temp page may require up to three intermediate tables; these are taken
// from a private allocator that is filled once by NewTempPage.
type TempPage struct {
	page      mm.Page
	allocator tinyAllocator
	mapped    bool
}

// NewTempPage reserves page as a temp page and obtains the frames for its
// private allocator from alloc.
func NewTempPage(page mm.Page, alloc mm.FrameAllocator) (TempPage, *kernel.Error) {
	tp := TempPage{page: page}
	if err := tp.allocator.fill(alloc); err != nil {
		return TempPage{}, err
	}

	return tp, nil
}

// Page returns the virtual page used by the temp page.
func (tp *TempPage) Page() mm.Page {
	return tp.page
}

// Map maps the temp page to frame with RW permissions in the hierarchy
// managed by mapper and returns the page. Mapping the temp page while it
// is already mapped is fatal.
func (tp *TempPage) Map(frame mm.Frame, mapper *ActivePML4) mm.Page {
	if tp.mapped {
		panic(errTempPageInUse)
	}

	mapper.Map(tp.page, frame, FlagPresent|FlagRW, &tp.allocator)
	tp.mapped = true
	return tp.page
}

// MapTable maps frame through the temp page and returns a handle for
// accessing it as a page table.
func (tp *TempPage) MapTable(frame mm.Frame, mapper *ActivePML4) Table {
	return Table{tp.Map(frame, mapper).Address()}
}

// Unmap removes the temp page mapping. The frame it pointed to is not
// released since the temp page never owns it.
func (tp *TempPage) Unmap(mapper *ActivePML4) {
	mapper.unmap(tp.page)
	tp.mapped = false
}

// tinyAllocator holds the few frames needed for creating the page tables
// that lead to the temp page.
type tinyAllocator struct {
	frames [3]mm.Frame
}

func (a *tinyAllocator) fill(alloc mm.FrameAllocator) *kernel.Error {
	var err *kernel.Error
	for i := range a.frames {
		if a.frames[i], err = alloc.AllocFrame(); err != nil {
			return err
		}
	}

	return nil
}

// AllocFrame implements mm.FrameAllocator.
func (a *tinyAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	for i, frame := range a.frames {
		if frame.Valid() {
			a.frames[i] = mm.InvalidFrame
			return frame, nil
		}
	}

	return mm.InvalidFrame, errOutOfFrames
}

// FreeFrame implements mm.FrameAllocator.
func (a *tinyAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	for i := range a.frames {
		if !a.frames[i].Valid() {
			a.frames[i] = frame
			return nil
		}
	}

	return errTinyAllocatorFull
}
