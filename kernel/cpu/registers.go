package cpu

var (
	// The following functions are mocked by tests and are automatically
	// inlined by the compiler.
	activePDTFn     = ActivePDT
	switchPDTFn     = SwitchPDT
	flushTLBEntryFn = FlushTLBEntry
	flushTLBFn      = FlushTLB
)

// Registers provides access to the paging-related control registers of the
// CPU the kernel is running on. Its methods execute privileged instructions
// and fault with a general protection exception outside ring 0.
type Registers struct{}

// ActivePDT returns the physical address loaded in CR3.
func (Registers) ActivePDT() uintptr { return activePDTFn() }

// SwitchPDT loads CR3 with pdtPhysAddr. The load implicitly flushes all
// non-global TLB entries.
func (Registers) SwitchPDT(pdtPhysAddr uintptr) { switchPDTFn(pdtPhysAddr) }

// FlushTLBEntry invalidates the TLB entry for the page containing virtAddr.
func (Registers) FlushTLBEntry(virtAddr uintptr) { flushTLBEntryFn(virtAddr) }

// FlushTLB invalidates all non-global TLB entries.
func (Registers) FlushTLB() { flushTLBFn() }
