package vmm

import "sos/kernel/mm"

// ActivePageTable owns the page table hierarchy that is currently loaded in
// CR3. There is a single ActivePageTable which gets created during kernel
// initialization and is passed explicitly to the code that needs to change
// the address space.
type ActivePageTable struct {
	ActivePML4
}

// NewActivePageTable returns the ActivePageTable for the hierarchy loaded
// in CR3. The hierarchy must contain a recursive mapping in its last PML4
// entry.
func NewActivePageTable(regs ControlRegisters) ActivePageTable {
	return ActivePageTable{
		ActivePML4: ActivePML4{
			pml4: PML4{Table{pml4Addr}},
			regs: regs,
		},
	}
}

// Using runs fn with a mapper that operates on the hierarchy of table
// instead of the active one. The recursive entry of the active PML4 is
// temporarily pointed to the PML4 of table; the MMU keeps translating all
// other addresses through the active hierarchy.
//
// The active PML4 stops being reachable through the recursive mapping while
// fn runs so it is mapped via temp and the recursive entry gets restored
// through that mapping.
func (apt *ActivePageTable) Using(table *InactivePageTable, temp *TempPage, fn func(*ActivePML4)) {
	activeFrame := mm.FrameFromAddress(apt.regs.ActivePDT())
	activePML4 := temp.MapTable(activeFrame, &apt.ActivePML4)

	activePML4.Entry(recursiveIndex).Set(table.pml4Frame, FlagPresent|FlagRW)
	apt.regs.FlushTLB()

	fn(&apt.ActivePML4)

	activePML4.Entry(recursiveIndex).Set(activeFrame, FlagPresent|FlagRW)
	apt.regs.FlushTLB()

	temp.Unmap(&apt.ActivePML4)
}

// Replace loads the PML4 of table into CR3 and returns the previously active
// hierarchy as an InactivePageTable.
func (apt *ActivePageTable) Replace(table InactivePageTable) InactivePageTable {
	flags := maskInterruptsFn()
	old := InactivePageTable{pml4Frame: mm.FrameFromAddress(apt.regs.ActivePDT())}
	apt.regs.SwitchPDT(table.pml4Frame.Address())
	restoreInterruptsFn(flags)

	return old
}

// InactivePageTable is a page table hierarchy that is not loaded in CR3. It
// is identified by the frame of its PML4.
type InactivePageTable struct {
	pml4Frame mm.Frame
}

// NewInactivePageTable initializes frame as an empty PML4 whose last entry
// maps the PML4 itself. The frame is accessed through temp. If frame holds
// the active PML4 its contents are left untouched.
func NewInactivePageTable(frame mm.Frame, active *ActivePageTable, temp *TempPage) InactivePageTable {
	if frame == mm.FrameFromAddress(active.regs.ActivePDT()) {
		return InactivePageTable{pml4Frame: frame}
	}

	pml4 := temp.MapTable(frame, &active.ActivePML4)
	pml4.Zero()
	pml4.Entry(recursiveIndex).Set(frame, FlagPresent|FlagRW)
	temp.Unmap(&active.ActivePML4)

	return InactivePageTable{pml4Frame: frame}
}

// Frame returns the physical frame that holds the PML4 of this hierarchy.
func (t InactivePageTable) Frame() mm.Frame {
	return t.pml4Frame
}
