package vmm

import (
	"sos/kernel/mm"
	"sync/atomic"
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uintptr

// Entry is a single 64-bit page table entry. Bits 12-51 hold the address of
// the frame it points to while the remaining bits hold hardware flags. An
// entry is either unused (all bits clear) or present with a valid frame.
//
// The MMU reads entries concurrently with the CPU so every store is a single
// atomic write.
type Entry uintptr

func (e *Entry) load() uintptr {
	return atomic.LoadUintptr((*uintptr)(e))
}

func (e *Entry) store(v uintptr) {
	atomic.StoreUintptr((*uintptr)(e), v)
}

// IsUnused returns true if no bits are set in this entry.
func (e *Entry) IsUnused() bool {
	return e.load() == 0
}

// HasFlags returns true if this entry has all the input flags set.
func (e *Entry) HasFlags(flags PageTableEntryFlag) bool {
	return (e.load() & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (e *Entry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (e.load() & uintptr(flags)) != 0
}

// Flags returns the flag bits of this entry.
func (e *Entry) Flags() PageTableEntryFlag {
	return PageTableEntryFlag(e.load() &^ ptePhysPageMask)
}

// Frame returns the physical frame this entry points to. The second return
// value is false if the entry is not present.
func (e *Entry) Frame() (mm.Frame, bool) {
	v := e.load()
	if v&uintptr(FlagPresent) == 0 {
		return mm.InvalidFrame, false
	}

	return mm.Frame((v & ptePhysPageMask) >> mm.PageShift), true
}

// Set points this entry to frame and replaces its flags.
func (e *Entry) Set(frame mm.Frame, flags PageTableEntryFlag) {
	e.store((frame.Address() & ptePhysPageMask) | uintptr(flags))
}

// SetFlags sets the input flags keeping the frame and any other flags intact.
func (e *Entry) SetFlags(flags PageTableEntryFlag) {
	e.store(e.load() | uintptr(flags))
}

// ClearFlags unsets the input flags keeping the frame and any other flags intact.
func (e *Entry) ClearFlags(flags PageTableEntryFlag) {
	e.store(e.load() &^ uintptr(flags))
}

// SetUnused clears all bits of this entry.
func (e *Entry) SetUnused() {
	e.store(0)
}
