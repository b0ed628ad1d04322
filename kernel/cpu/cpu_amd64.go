package cpu

// SaveFlagsAndDisableInterrupts disables interrupt handling and returns the
// previous contents of the RFLAGS register.
func SaveFlagsAndDisableInterrupts() uintptr

// RestoreFlags loads RFLAGS with a value returned by
// SaveFlagsAndDisableInterrupts, re-enabling interrupts only if they were
// enabled before.
func RestoreFlags(flags uintptr)

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// FlushTLB flushes all non-global TLB entries by reloading CR3.
func FlushTLB()

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr
