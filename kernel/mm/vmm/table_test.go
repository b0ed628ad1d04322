package vmm

import (
	"sos/kernel/mm"
	"testing"
)

func TestNextTableAddr(t *testing.T) {
	specs := []struct {
		tableAddr uintptr
		index     uint
		exp       uintptr
	}{
		// The recursive slot keeps resolving to the PML4.
		{pml4Addr, recursiveIndex, pml4Addr},
		{pml4Addr, 0, 0xffffffffffe00000},
		{0xffffffffffe00000, 3, 0xffffffffc0003000},
		{0xffffffffc0003000, 246, 0xffffff80006f6000},
		// Addresses that end up with bit 47 set get sign-extended.
		{0x0000004000000000, 0, 0xffff800000000000},
		{tempPageAddr, 5, 0x1bd95e05000},
	}

	for specIndex, spec := range specs {
		if got := nextTableAddr(spec.tableAddr, spec.index); got != spec.exp {
			t.Errorf("[spec %d] expected next table address to be 0x%x; got 0x%x", specIndex, spec.exp, got)
		}
	}
}

func TestCreateNextTable(t *testing.T) {
	m := newSimMMU(t, mm.Frame(0x10))
	alloc := newSimAllocator(mm.Frame(0x1000))
	apt := NewActivePageTable(m)
	page := mm.PageFromAddress(0x400000)

	if _, ok := apt.PML4().NextTable(page); ok {
		t.Fatal("expected NextTable to fail for an unused entry")
	}

	pdpt := apt.PML4().CreateNextTable(page, alloc)
	if exp := uintptr(0xffffffffffe00000); pdpt.Addr() != exp {
		t.Fatalf("expected PDPT address to be 0x%x; got 0x%x", exp, pdpt.Addr())
	}

	if len(alloc.allocated) != 1 {
		t.Fatalf("expected 1 frame to be allocated; got %d", len(alloc.allocated))
	}

	// The new table must have been cleared of junk.
	for i, entry := range m.frame(alloc.allocated[0]) {
		if entry != 0 {
			t.Fatalf("expected entry %d of new table to be zeroed; got 0x%x", i, uintptr(entry))
		}
	}

	entry := apt.PML4().Entry(page.PML4Index())
	if frame, _ := entry.Frame(); frame != alloc.allocated[0] || entry.Flags() != FlagPresent|FlagRW {
		t.Fatalf("expected PML4 entry to point to frame %d with flags %x; got frame %d, flags %x",
			alloc.allocated[0], FlagPresent|FlagRW, frame, entry.Flags())
	}

	if got, ok := apt.PML4().NextTable(page); !ok || got != pdpt {
		t.Fatal("expected NextTable to return the created table")
	}

	// A second call must reuse the existing table.
	if got := apt.PML4().CreateNextTable(page, alloc); got != pdpt || len(alloc.allocated) != 1 {
		t.Fatal("expected CreateNextTable to reuse the existing table")
	}

	pt := pdpt.CreateNextTable(page, alloc).CreateNextTable(page, alloc)
	if len(alloc.allocated) != 3 {
		t.Fatalf("expected 3 frames to be allocated; got %d", len(alloc.allocated))
	}

	if exp := uintptr(0xffffff8000002000); pt.Addr() != exp {
		t.Fatalf("expected PT address to be 0x%x; got 0x%x", exp, pt.Addr())
	}

	if m.masked != 0 {
		t.Fatal("expected interrupt state to be restored")
	}
}

func TestCreateNextTableErrors(t *testing.T) {
	t.Run("out of frames", func(t *testing.T) {
		m := newSimMMU(t, mm.Frame(0x10))
		alloc := newSimAllocator(mm.Frame(0x1000))
		alloc.limit = 0
		apt := NewActivePageTable(m)

		expectFatal(t, errTableAllocFailed, func() {
			apt.PML4().CreateNextTable(mm.PageFromAddress(0x400000), alloc)
		})

		if m.masked != 0 {
			t.Fatal("expected interrupt state to be restored")
		}
	})

	t.Run("huge page leaf", func(t *testing.T) {
		m := newSimMMU(t, mm.Frame(0x10))
		alloc := newSimAllocator(mm.Frame(0x1000))
		apt := NewActivePageTable(m)
		page := mm.PageFromAddress(0x600000)

		pd := apt.PML4().CreateNextTable(page, alloc).CreateNextTable(page, alloc)
		pd.Entry(page.PDIndex()).Set(mm.FrameFromAddress(0x4000000), FlagPresent|FlagRW|FlagHugePage)

		if _, ok := pd.NextTable(page); ok {
			t.Fatal("expected NextTable to fail for a huge page leaf")
		}

		expectFatal(t, errNoHugePageSupport, func() {
			pd.CreateNextTable(page, alloc)
		})
	})
}

func TestHugeFrame(t *testing.T) {
	m := newSimMMU(t, mm.Frame(0x10))
	alloc := newSimAllocator(mm.Frame(0x1000))
	apt := NewActivePageTable(m)

	page := mm.PageFromAddress(0x612345)
	pdpt := apt.PML4().CreateNextTable(page, alloc)
	pd := pdpt.CreateNextTable(page, alloc)

	if _, ok := pd.HugeFrame(page); ok {
		t.Fatal("expected HugeFrame to fail for an unused entry")
	}

	// Bit 12 selects the PAT for huge page entries and is not part of the address.
	pd.Entry(page.PDIndex()).Set(mm.FrameFromAddress(0x4001000), FlagPresent|FlagHugePage)
	if got, ok := pd.HugeFrame(page); !ok || got != mm.FrameFromAddress(0x4012000) {
		t.Errorf("expected 2Mb page frame to be 0x4012; got 0x%x (ok: %t)", got, ok)
	}

	gbPage := mm.PageFromAddress(0x80123456)
	pdpt.Entry(gbPage.PDPTIndex()).Set(mm.FrameFromAddress(0x40000000), FlagPresent|FlagHugePage)
	if got, ok := pdpt.HugeFrame(gbPage); !ok || got != mm.FrameFromAddress(0x40123000) {
		t.Errorf("expected 1Gb page frame to be 0x40123; got 0x%x (ok: %t)", got, ok)
	}
}
