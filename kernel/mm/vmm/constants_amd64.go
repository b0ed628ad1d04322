package vmm

const (
	// entriesPerTable is the number of entries in each page table level.
	entriesPerTable = 512

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. For this particular architecture,
	// bits 12-51 contain the physical memory address.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// pdHugePhysMask extracts the address of a 2Mb page from a PD entry. Bit
	// 12 of a huge page entry selects the PAT and is not part of the address.
	pdHugePhysMask = uintptr(0x000fffffffe00000)

	// pdptHugePhysMask extracts the address of a 1Gb page from a PDPT entry.
	pdptHugePhysMask = uintptr(0x000fffffc0000000)

	// recursiveIndex is the PML4 slot that points back to the PML4 itself.
	recursiveIndex = entriesPerTable - 1

	// pml4Addr is the virtual address of the active PML4. By setting all
	// four table indices to recursiveIndex the MMU keeps following the
	// recursive entry and lands on the PML4.
	pml4Addr = uintptr(0xfffffffffffff000)

	// tempPageAddr is a reserved virtual page used for transient mappings
	// of single frames (e.g. when initializing inactive page tables). For
	// amd64 this address uses the table indices 0, 3, 246, 175.
	tempPageAddr = uintptr(0xdecaf000)

	// vgaBufferAddr is the physical address of the VGA text buffer.
	vgaBufferAddr = uintptr(0xb8000)
)

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set in PD (2Mb) or PDPT (1Gb) entries that map a
	// large page directly instead of pointing to a lower level table.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagNoExecute if set, indicates that a page contains non-executable code.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)
