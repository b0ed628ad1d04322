package vmm

import (
	"fmt"
	"sos/kernel"
	"sos/kernel/mm"
	"testing"
	"unsafe"
)

// junkEntry fills every frame that the simulated MMU hands out for the
// first time. It does not have the present bit set.
const junkEntry = Entry(0xf0f0f0f0f0f0f0f0)

// simMMU emulates the parts of an amd64 MMU that the paging code relies on:
// a CR3 register, physical frames holding page tables and a TLB that caches
// translations until it gets flushed. Table accesses issued by the code
// under test are translated by walking the hierarchy loaded in CR3, which
// exercises the recursive mapping exactly like the hardware does.
type simMMU struct {
	t *testing.T

	cr3    uintptr
	frames map[mm.Frame]*entries
	tlb    map[mm.Page]mm.Frame

	flushAllCount   int
	flushEntryCount int
	switchCount     int
	masked          int
}

// simPageFault is the panic value raised when the code under test touches
// an unmapped table address.
type simPageFault struct {
	addr uintptr
}

func (f simPageFault) String() string {
	return fmt.Sprintf("page fault at 0x%x", f.addr)
}

// newSimMMU installs a simulated MMU whose CR3 points to a PML4 at
// pml4Frame with only the recursive entry set.
func newSimMMU(t *testing.T, pml4Frame mm.Frame) *simMMU {
	m := &simMMU{
		t:      t,
		cr3:    pml4Frame.Address(),
		frames: make(map[mm.Frame]*entries),
		tlb:    make(map[mm.Page]mm.Frame),
	}

	pml4 := m.frame(pml4Frame)
	for i := range pml4 {
		pml4[i] = 0
	}
	pml4[recursiveIndex] = Entry(pml4Frame.Address() | uintptr(FlagPresent|FlagRW))

	origTablePtr, origMask, origRestore := tablePtrFn, maskInterruptsFn, restoreInterruptsFn
	t.Cleanup(func() {
		tablePtrFn, maskInterruptsFn, restoreInterruptsFn = origTablePtr, origMask, origRestore
	})

	tablePtrFn = m.tablePtr
	maskInterruptsFn = func() uintptr {
		m.masked++
		return uintptr(m.masked)
	}
	restoreInterruptsFn = func(flags uintptr) {
		if flags != uintptr(m.masked) {
			t.Errorf("expected interrupt state %d to be restored; got %d", m.masked, flags)
		}
		m.masked--
	}

	return m
}

// frame returns the contents of a physical frame, filling it with junk
// the first time it is accessed.
func (m *simMMU) frame(frame mm.Frame) *entries {
	tbl, ok := m.frames[frame]
	if !ok {
		tbl = new(entries)
		for i := range tbl {
			tbl[i] = junkEntry
		}
		m.frames[frame] = tbl
	}

	return tbl
}

// walk translates addr using the hierarchy rooted at the PML4 in pml4Frame.
func (m *simMMU) walk(pml4Frame mm.Frame, addr uintptr) (mm.Frame, *Entry, bool) {
	tbl := m.frame(pml4Frame)
	for level, shift := 0, uint(39); ; level, shift = level+1, shift-9 {
		entry := &tbl[(addr>>shift)&(entriesPerTable-1)]
		if uintptr(*entry)&uintptr(FlagPresent) == 0 {
			return mm.InvalidFrame, nil, false
		}

		frame := mm.Frame((uintptr(*entry) & ptePhysPageMask) >> mm.PageShift)
		if level == 3 {
			return frame, entry, true
		}

		if uintptr(*entry)&uintptr(FlagHugePage) != 0 {
			return mm.InvalidFrame, nil, false
		}

		tbl = m.frame(frame)
	}
}

// leaf returns the PT entry that maps addr in the hierarchy rooted at
// pml4Frame.
func (m *simMMU) leaf(pml4Frame mm.Frame, addr uintptr) (*Entry, bool) {
	_, entry, ok := m.walk(pml4Frame, addr)
	return entry, ok
}

func (m *simMMU) tablePtr(addr uintptr) unsafe.Pointer {
	if addr&(mm.PageSize-1) != 0 {
		m.t.Fatalf("table address 0x%x is not page aligned", addr)
	}

	page := mm.PageFromAddress(addr)
	frame, ok := m.tlb[page]
	if !ok {
		if frame, _, ok = m.walk(mm.FrameFromAddress(m.cr3), addr); !ok {
			panic(simPageFault{addr})
		}
		m.tlb[page] = frame
	}

	return unsafe.Pointer(m.frame(frame))
}

func (m *simMMU) ActivePDT() uintptr {
	return m.cr3
}

func (m *simMMU) SwitchPDT(pdtPhysAddr uintptr) {
	m.switchCount++
	m.cr3 = pdtPhysAddr
	m.tlb = make(map[mm.Page]mm.Frame)
}

func (m *simMMU) FlushTLBEntry(virtAddr uintptr) {
	m.flushEntryCount++
	delete(m.tlb, mm.PageFromAddress(virtAddr))
}

func (m *simMMU) FlushTLB() {
	m.flushAllCount++
	m.tlb = make(map[mm.Page]mm.Frame)
}

var errSimOutOfMemory = &kernel.Error{Module: "test", Message: "out of memory"}

// simAllocator hands out sequential frames, re-issuing freed frames first.
type simAllocator struct {
	next      mm.Frame
	limit     int
	allocated []mm.Frame
	freed     []mm.Frame
}

func newSimAllocator(first mm.Frame) *simAllocator {
	return &simAllocator{next: first, limit: -1}
}

func (a *simAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if a.limit == 0 {
		return mm.InvalidFrame, errSimOutOfMemory
	}
	a.limit--

	var frame mm.Frame
	if n := len(a.freed); n > 0 {
		frame, a.freed = a.freed[n-1], a.freed[:n-1]
	} else {
		frame = a.next
		a.next++
	}

	a.allocated = append(a.allocated, frame)
	return frame, nil
}

func (a *simAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	a.freed = append(a.freed, frame)
	return nil
}

// expectFatal runs fn and checks that it panics with expErr.
func expectFatal(t *testing.T, expErr *kernel.Error, fn func()) {
	t.Helper()

	defer func() {
		if r := recover(); r != expErr {
			t.Fatalf("expected fatal error %v; got %v", expErr, r)
		}
	}()

	fn()
}

func TestSimMMURecursiveAccess(t *testing.T) {
	m := newSimMMU(t, mm.Frame(0x10))

	// Every level of the recursive walk lands on the PML4 frame.
	for _, addr := range []uintptr{
		pml4Addr,
		nextTableAddr(pml4Addr, recursiveIndex),
	} {
		if got, exp := uintptr(tablePtrFn(addr)), uintptr(unsafe.Pointer(m.frame(0x10))); got != exp {
			t.Errorf("expected table at 0x%x to resolve to the PML4 frame", addr)
		}
	}

	defer func() {
		if _, ok := recover().(simPageFault); !ok {
			t.Fatal("expected a page fault when accessing an unmapped table")
		}
	}()
	tablePtrFn(nextTableAddr(pml4Addr, 0))
}
