package vmm

// ControlRegisters provides access to the privileged CPU state that the
// paging code needs: the CR3 register holding the physical address of the
// active PML4 and the TLB invalidation instructions. cpu.Registers
// implements it for the running CPU.
type ControlRegisters interface {
	// ActivePDT returns the physical address of the active PML4.
	ActivePDT() uintptr

	// SwitchPDT loads the PML4 at pdtPhysAddr into CR3. This also
	// flushes all non-global TLB entries.
	SwitchPDT(pdtPhysAddr uintptr)

	// FlushTLBEntry invalidates the TLB entry for virtAddr.
	FlushTLBEntry(virtAddr uintptr)

	// FlushTLB invalidates all non-global TLB entries.
	FlushTLB()
}
