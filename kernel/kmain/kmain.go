package kmain

import (
	"sos/kernel"
	"sos/kernel/cpu"
	"sos/kernel/driver/tty"
	"sos/kernel/driver/video/console"
	"sos/kernel/kfmt"
	"sos/kernel/mm/pmm"
	"sos/kernel/mm/vmm"
	"sos/kernel/multiboot"
)

const (
	// The VGA text buffer is identity-mapped by both the boot page tables
	// and the tables built by vmm.KernelRemap.
	vgaTextBufferAddr = uintptr(0xb8000)
	vgaTextWidth      = 80
	vgaTextHeight     = 25

	// The kernel image is identity-mapped.
	kernelPageOffset = uintptr(0)
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// The following live outside the Go stack so that handing out
	// pointers to them does not require the Go allocator.
	vgaConsole     console.Text
	activeTerminal tty.Vt
	bootMemAlloc   pmm.BootMemAllocator
	activePT       vmm.ActivePageTable
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	vgaConsole.Init(vgaTextWidth, vgaTextHeight, vgaTextBufferAddr)
	activeTerminal.AttachTo(&vgaConsole)
	kfmt.SetOutputSink(&activeTerminal)

	bootMemAlloc.Init(kernelStart, kernelEnd)

	activePT = vmm.NewActivePageTable(cpu.Registers{})
	if err := vmm.KernelRemap(&activePT, &bootMemAlloc, kernelPageOffset); err != nil {
		panic(err)
	}

	kfmt.Printf("[kmain] paging initialized\n")

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
