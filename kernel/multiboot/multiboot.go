// Package multiboot reads the boot information block that a multiboot2
// compliant boot loader hands over to the kernel. The block is accessed in
// place; nothing is copied and nothing is allocated.
package multiboot

import (
	"sos/kernel/mm"
	"unsafe"
)

// infoPtr is the address of the boot information block.
var infoPtr uintptr

type tagType uint32

// Tag types consumed by the kernel. The numbering follows the multiboot2
// boot information format.
const (
	tagEnd        tagType = 0
	tagCmdLine    tagType = 1
	tagModule     tagType = 3
	tagMemoryMap  tagType = 6
	tagElfSymbols tagType = 9
)

// The block starts with its total size followed by a reserved dword; every
// tag starts with its type and size. Both headers are 8 bytes long.
const headerSize = 8

// tag is the header that precedes each tag payload. size includes the
// header but not the padding that aligns the next tag to 8 bytes.
type tag struct {
	kind tagType
	size uint32
}

// rawMemRegion is the layout of a memory map entry.
type rawMemRegion struct {
	base   uint64
	length uint64
	kind   uint32
	_      uint32
}

// rawElfSymbols is the payload of the ELF symbols tag. GRUB emits 32-bit
// fields for the section header size and the string table index.
type rawElfSymbols struct {
	count       uint16
	headerSize  uint32
	strtabIndex uint32
	headers     [0]byte
}

// rawElfSection is the layout of an ELF64 section header.
type rawElfSection struct {
	nameOffset uint32
	kind       uint32
	flags      uint64
	addr       uint64
	offset     uint64
	size       uint64
	link       uint32
	info       uint32
	align      uint64
	entrySize  uint64
}

// RegionType classifies a physical memory region.
type RegionType uint32

const (
	// RegionAvailable is RAM that the kernel may hand out.
	RegionAvailable RegionType = iota + 1

	// RegionReserved must not be touched. Region types the boot loader
	// reports that the kernel does not know about are treated as reserved.
	RegionReserved

	// RegionACPIReclaimable holds ACPI tables; it can be reused once they
	// have been parsed.
	RegionACPIReclaimable

	// RegionNVS must be preserved across hibernation.
	RegionNVS

	// RegionDefective is RAM the firmware flagged as faulty.
	RegionDefective

	regionTypeCount
)

// String implements fmt.Stringer for RegionType.
func (t RegionType) String() string {
	switch t {
	case RegionAvailable:
		return "available"
	case RegionACPIReclaimable:
		return "ACPI (reclaimable)"
	case RegionNVS:
		return "NVS"
	case RegionDefective:
		return "defective"
	default:
		return "reserved"
	}
}

// MemRegion is a physical memory region reported by the boot loader.
type MemRegion struct {
	Start  mm.PhysAddr
	Length uint64
	Type   RegionType
}

// Frames returns the first and last frame that lie entirely inside the
// region. It returns false if the region does not contain a whole frame.
func (r MemRegion) Frames() (mm.Frame, mm.Frame, bool) {
	start := r.Start.AlignUp()
	end := (r.Start + mm.PhysAddr(r.Length)).AlignDown()
	if end <= start {
		return mm.InvalidFrame, mm.InvalidFrame, false
	}

	return start.Frame(), end.Frame() - 1, true
}

// MemRegionVisitor is invoked by VisitMemRegions for each memory region.
// Returning false stops the scan.
type MemRegionVisitor func(MemRegion) bool

// VisitMemRegions invokes visitor for each region in the memory map supplied
// by the boot loader, in the order the boot loader lists them.
func VisitMemRegions(visitor MemRegionVisitor) {
	payload, size := findTag(tagMemoryMap)
	if size < headerSize {
		return
	}

	// The payload starts with the entry size and version.
	entrySize := uintptr(*(*uint32)(unsafe.Pointer(payload)))
	if entrySize == 0 {
		return
	}

	for ptr, end := payload+headerSize, payload+size; ptr+entrySize <= end; ptr += entrySize {
		raw := (*rawMemRegion)(unsafe.Pointer(ptr))

		regionType := RegionType(raw.kind)
		if regionType == 0 || regionType >= regionTypeCount {
			regionType = RegionReserved
		}

		if !visitor(MemRegion{Start: mm.PhysAddr(raw.base), Length: raw.length, Type: regionType}) {
			return
		}
	}
}

// ElfSectionFlag is an OR-able ELF section attribute.
type ElfSectionFlag uint64

const (
	// ElfSectionWritable marks a section that is written to at run time.
	ElfSectionWritable ElfSectionFlag = 1 << iota

	// ElfSectionAllocated marks a section that occupies memory once the
	// image is loaded (e.g. .bss).
	ElfSectionAllocated

	// ElfSectionExecutable marks a section that contains code.
	ElfSectionExecutable
)

// ElfSection describes a section of the loaded kernel image.
type ElfSection struct {
	Name    string
	Flags   ElfSectionFlag
	Address uintptr
	Size    uint64
}

// Allocated returns true if the section occupies memory at run time.
func (s ElfSection) Allocated() bool { return s.Flags&ElfSectionAllocated != 0 }

// Writable returns true if the section is written to at run time.
func (s ElfSection) Writable() bool { return s.Flags&ElfSectionWritable != 0 }

// Executable returns true if the section contains code.
func (s ElfSection) Executable() bool { return s.Flags&ElfSectionExecutable != 0 }

// Pages returns the first and last virtual page the section touches. It
// must not be called for an empty section.
func (s ElfSection) Pages() (mm.Page, mm.Page) {
	return mm.PageFromAddress(s.Address), mm.PageFromAddress(s.Address + uintptr(s.Size-1))
}

// ElfSectionVisitor is invoked by VisitElfSections for each section of the
// kernel image.
type ElfSectionVisitor func(ElfSection)

// VisitElfSections invokes visitor for each non-empty section of the loaded
// kernel image.
func VisitElfSections(visitor ElfSectionVisitor) {
	payload, size := findTag(tagElfSymbols)
	if size == 0 {
		return
	}

	symbols := (*rawElfSymbols)(unsafe.Pointer(payload))
	headers := uintptr(unsafe.Pointer(&symbols.headers))
	stride := uintptr(symbols.headerSize)
	strtab := (*rawElfSection)(unsafe.Pointer(headers + uintptr(symbols.strtabIndex)*stride))

	for i, ptr := uint16(0), headers; i < symbols.count; i, ptr = i+1, ptr+stride {
		sec := (*rawElfSection)(unsafe.Pointer(ptr))
		if sec.size == 0 {
			continue
		}

		visitor(ElfSection{
			Name:    cString(uintptr(strtab.addr) + uintptr(sec.nameOffset)),
			Flags:   ElfSectionFlag(sec.flags),
			Address: uintptr(sec.addr),
			Size:    sec.size,
		})
	}
}

// cString returns a string backed by the NUL-terminated bytes at ptr.
func cString(ptr uintptr) string {
	n := 0
	for *(*byte)(unsafe.Pointer(ptr + uintptr(n))) != 0 {
		n++
	}

	return unsafe.String((*byte)(unsafe.Pointer(ptr)), n)
}

// SetInfoPtr records the address of the boot information block. It must be
// called before any other function in this package.
func SetInfoPtr(ptr uintptr) {
	infoPtr = ptr
}

// InfoRegion returns the physical address and size in bytes of the boot
// information block so that it can stay mapped after the kernel remap.
func InfoRegion() (uintptr, uintptr) {
	if infoPtr == 0 {
		return 0, 0
	}

	return infoPtr, uintptr(*(*uint32)(unsafe.Pointer(infoPtr)))
}

// findTag returns the address and size of the payload of the first tag of
// the requested kind, or (0, 0) if the boot loader did not supply one.
func findTag(kind tagType) (uintptr, uintptr) {
	if infoPtr == 0 {
		return 0, 0
	}

	for ptr := infoPtr + headerSize; ; {
		hdr := (*tag)(unsafe.Pointer(ptr))
		switch hdr.kind {
		case tagEnd:
			return 0, 0
		case kind:
			return ptr + headerSize, uintptr(hdr.size) - headerSize
		}

		ptr += (uintptr(hdr.size) + 7) &^ 7
	}
}
