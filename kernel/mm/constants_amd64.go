package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// tableIndexBits is the number of virtual address bits consumed by each
	// level of the page table hierarchy.
	tableIndexBits = 9

	// tableIndexMask extracts a single table index from a shifted address.
	tableIndexMask = uintptr(1<<tableIndexBits) - 1

	// canonicalBits is the number of significant virtual address bits.
	// Bits 48-63 of a canonical address are copies of bit 47.
	canonicalBits = 48
)
