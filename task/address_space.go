// Package task implements the task state machine and per-task address
// space (C6, §4.5), built atop the mapper (vmm), the physical allocator
// (pmm), the kernel stack slab (slab) and the object/capability layer
// (kobj). Grounded on biscuit's proc_t/vm address space bookkeeping
// (biscuit/src/vm/vm.go, biscuit/src/res/res.go) generalized to the
// explicit kernel-object model of original_source's
// kernel/src/process/address_space.rs.
package task

import (
	"sort"
	"sync"

	"nucleus/addr"
	"nucleus/bootinfo"
	"nucleus/kerr"
	"nucleus/kobj"
	"nucleus/vmm"
)

// region records one mapped extent of an AddressSpace for overlap
// detection; it does not own the backing MemoryObject (the handle table
// does, via a reference on its kobj.Id).
type region struct {
	start addr.VirtualAddress
	size  uintptr
}

func (r region) end() uintptr { return r.start.Uintptr() + r.size }

// AddressSpace is one task's virtual memory mapping (§4.5). It wraps a
// vmm.Mapper with the bookkeeping needed to reject overlapping mappings
// and to unmap everything when the task that owns it exits.
type AddressSpace struct {
	mu      sync.Mutex
	mapper  *vmm.Mapper
	frames  vmm.FrameAllocator
	regions []region
}

func (*AddressSpace) Kind() kobj.Kind { return kobj.KindAddressSpace }

// NewAddressSpace wraps an already-constructed mapper rooted at a fresh,
// zeroed page table.
func NewAddressSpace(mapper *vmm.Mapper, frames vmm.FrameAllocator) *AddressSpace {
	return &AddressSpace{mapper: mapper, frames: frames}
}

// MapMemoryObject maps mo's frames into this address space starting at
// va, recording the extent so later calls can detect overlap. Returns
// SpaceAlreadyOccupied if [va, va+mo.Pages*pageSize) intersects an existing
// mapping in this space (§4.5 "map_memory_object" failure modes).
func (as *AddressSpace) MapMemoryObject(va addr.VirtualAddress, mo *kobj.MemoryObject, pageSize uintptr, flags bootinfo.Flags) *kerr.Error {
	size := mo.Pages * pageSize
	as.mu.Lock()
	if as.overlapsLocked(va, size) {
		as.mu.Unlock()
		return kerr.New("task", kerr.SpaceAlreadyOccupied, "region overlaps an existing mapping")
	}
	// Reserve the extent before dropping the lock so a concurrent
	// MapMemoryObject on an overlapping range fails instead of racing
	// the mapper call below.
	as.insertLocked(region{start: va, size: size})
	as.mu.Unlock()

	if err := as.mapper.MapArea(va, mo.Base, size, flags, as.frames); err != nil {
		as.mu.Lock()
		as.removeLocked(va)
		as.mu.Unlock()
		return kerr.New("task", kerr.AllocationFailed, "map_area failed: "+err.Error())
	}
	return nil
}

// Unmap removes the mapping starting at va (as previously passed to
// MapMemoryObject) and releases its bookkeeping entry. It does not free
// the MemoryObject's frames, and dropping the object's last handle does
// not free them either.
func (as *AddressSpace) Unmap(va addr.VirtualAddress, pageSize uintptr) *kerr.Error {
	as.mu.Lock()
	size, ok := as.sizeOfLocked(va)
	if !ok {
		as.mu.Unlock()
		return kerr.New("task", kerr.NotMapped, "no region recorded at that address")
	}
	as.removeLocked(va)
	as.mu.Unlock()

	for off := uintptr(0); off < size; off += pageSize {
		pageVA, ok := va.Add(off)
		if !ok {
			break
		}
		as.mapper.Unmap(pageVA, pageSize)
	}
	return nil
}

// ValidateRange checks that every byte of [va, va+length) is mapped
// readable, and additionally writable if needWrite is set (§6 "pointer
// and string validation"). It walks page by page at the mapper's base
// page size so a range spanning a huge-page mapping is still checked
// correctly.
func (as *AddressSpace) ValidateRange(va addr.VirtualAddress, length uintptr, needWrite bool, pageSize uintptr) *kerr.Error {
	if length == 0 {
		return nil
	}
	start := va.AlignDown(pageSize)
	end := va.Uintptr() + length
	for cur := start; cur.Uintptr() < end; {
		_, flags, err := as.mapper.Lookup(cur)
		if err != nil {
			return err
		}
		if !flags.Readable || (needWrite && !flags.Writable) || !flags.UserAccessible {
			return kerr.New("task", kerr.AccessDenied, "mapping lacks required permission")
		}
		next, ok := cur.Add(pageSize)
		if !ok {
			return kerr.New("task", kerr.InvalidArgument, "range validation overflowed address space")
		}
		cur = next
	}
	return nil
}

func (as *AddressSpace) overlapsLocked(va addr.VirtualAddress, size uintptr) bool {
	start := va.Uintptr()
	end := start + size
	for _, r := range as.regions {
		if start < r.end() && r.start.Uintptr() < end {
			return true
		}
	}
	return false
}

func (as *AddressSpace) insertLocked(r region) {
	as.regions = append(as.regions, r)
	sort.Slice(as.regions, func(i, j int) bool {
		return as.regions[i].start.Uintptr() < as.regions[j].start.Uintptr()
	})
}

func (as *AddressSpace) removeLocked(va addr.VirtualAddress) {
	for i, r := range as.regions {
		if r.start == va {
			as.regions = append(as.regions[:i], as.regions[i+1:]...)
			return
		}
	}
}

func (as *AddressSpace) sizeOfLocked(va addr.VirtualAddress) (uintptr, bool) {
	for _, r := range as.regions {
		if r.start == va {
			return r.size, true
		}
	}
	return 0, false
}
