package kobj

import "nucleus/addr"

// MemoryObject is a kernel object wrapping a contiguous run of physical
// frames that can be mapped into one or more address spaces (§3). The
// PMM frames backing it are owned by the MemoryObject for its lifetime.
// Dropping its last handle only releases its registry slot; the frames
// are not returned to the allocator.
type MemoryObject struct {
	Base  addr.PhysicalAddress
	Pages uintptr
}

func (MemoryObject) Kind() Kind { return KindMemoryObject }

// NewMemoryObject wraps an already-allocated frame range.
func NewMemoryObject(base addr.PhysicalAddress, pages uintptr) *MemoryObject {
	return &MemoryObject{Base: base, Pages: pages}
}
