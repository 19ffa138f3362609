// Package slab implements the kernel virtual slab allocator (C4, §4.3):
// a fixed-slot virtual region, each slot separated from its neighbors by
// an unmapped guard page so a stack overflow faults instead of silently
// corrupting an adjacent stack. Grounded on gopher-os's kernel stack
// allocator (kernel/kernel/task.go AllocStack) generalized into a
// reusable slot allocator, and original_source's
// kernel/src/memory/stack.rs ("stack slots never move once handed out").
package slab

import (
	"nucleus/addr"
	"nucleus/bootcfg"
	"nucleus/bootinfo"
	"nucleus/kerr"
	"nucleus/spinlock"
	"nucleus/vmm"
)

// Slot identifies one allocated region within an Allocator's virtual
// range. Base is the first byte usable by the caller (after the guard
// page that precedes it).
type Slot struct {
	Base addr.VirtualAddress
	Size uintptr
}

// Allocator hands out fixed-size virtual slots from [Base, Base+Count*Stride),
// each slot preceded by one unmapped guard page, backed by frames pulled
// from a pmm.Allocator and mapped through a vmm.Mapper when Alloc hands
// out the slot (only the first initialMap bytes of it).
type Allocator struct {
	lock spinlock.T

	base      addr.VirtualAddress
	slotSize  uintptr
	stride    uintptr // slotSize + one guard page
	count     uintptr
	free      []uintptr // free slot indices
	pageSize  uintptr
	initialMap uintptr // bytes eagerly mapped per slot on allocation

	mapper *vmm.Mapper
	frames vmm.FrameAllocator
}

// New creates an Allocator over count slots of slotSize bytes each,
// eagerly mapping initialMap bytes of each slot when it is allocated and
// leaving the rest of the slot unmapped (§4.3 kernel stacks: 16 KiB of a
// 64 KiB slot mapped up front).
func New(base addr.VirtualAddress, slotSize uintptr, count uintptr, initialMap uintptr, mapper *vmm.Mapper, frames vmm.FrameAllocator) *Allocator {
	a := &Allocator{
		base:      base,
		slotSize:  slotSize,
		stride:    slotSize + uintptr(bootcfg.PageSize),
		count:     count,
		pageSize:  uintptr(bootcfg.PageSize),
		initialMap: initialMap,
		mapper:    mapper,
		frames:    frames,
	}
	a.free = make([]uintptr, count)
	for i := range a.free {
		a.free[i] = uintptr(count) - 1 - uintptr(i)
	}
	return a
}

// KernelStackSlab constructs the allocator for kernel stack slots with
// the sizes named in §4.3 and bootcfg.
func KernelStackSlab(base addr.VirtualAddress, count uintptr, mapper *vmm.Mapper, frames vmm.FrameAllocator) *Allocator {
	return New(base, bootcfg.KernelStackSlotSize, count, bootcfg.KernelStackInitialSize, mapper, frames)
}

// Alloc reserves a slot, maps its initial region with frames from the
// PMM, and returns it. The guard page immediately below Base is left
// unmapped: a stack overflow there faults instead of corrupting the
// neighboring slot.
func (a *Allocator) Alloc() (Slot, *kerr.Error) {
	a.lock.Lock()
	if len(a.free) == 0 {
		a.lock.Unlock()
		return Slot{}, kerr.New("slab", kerr.OutOfMemory, "no free slots")
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.lock.Unlock()

	base, ok := a.base.Add(idx*a.stride + a.pageSize)
	if !ok {
		a.release(idx)
		return Slot{}, kerr.New("slab", kerr.InvalidArgument, "slot address overflow")
	}

	if err := a.mapInitial(base); err != nil {
		a.release(idx)
		return Slot{}, err
	}
	return Slot{Base: base, Size: a.slotSize}, nil
}

func (a *Allocator) mapInitial(base addr.VirtualAddress) *kerr.Error {
	flags := bootinfo.Flags{Readable: true, Writable: true, Cached: true}
	mapped := uintptr(0)
	var installed []addr.VirtualAddress
	for mapped < a.initialMap {
		frame, ferr := a.frames.Alloc(1)
		if ferr != nil {
			a.unmap(installed)
			return kerr.New("slab", kerr.AllocationFailed, "could not allocate stack frame")
		}
		va, ok := base.Add(mapped)
		if !ok {
			a.frames.Free(frame, 1)
			a.unmap(installed)
			return kerr.New("slab", kerr.InvalidArgument, "slot virtual address overflow")
		}
		if err := a.mapper.Map(va, frame, a.pageSize, flags, a.frames); err != nil {
			a.frames.Free(frame, 1)
			a.unmap(installed)
			return err
		}
		installed = append(installed, va)
		mapped += a.pageSize
	}
	return nil
}

func (a *Allocator) unmap(vas []addr.VirtualAddress) {
	for _, va := range vas {
		if frame, err := a.mapper.Unmap(va, a.pageSize); err == nil {
			a.frames.Free(frame, 1)
		}
	}
}

// Free unmaps and returns slot's pages, and returns the slot index to
// the free pool. Calling Free with a slot not obtained from this
// Allocator is a programming error.
func (a *Allocator) Free(s Slot) {
	for off := uintptr(0); off < a.initialMap; off += a.pageSize {
		va, ok := s.Base.Add(off)
		if !ok {
			break
		}
		if frame, err := a.mapper.Unmap(va, a.pageSize); err == nil {
			a.frames.Free(frame, 1)
		}
	}
	idx := (s.Base.Uintptr() - a.base.Uintptr() - a.pageSize) / a.stride
	a.release(idx)
}

func (a *Allocator) release(idx uintptr) {
	a.lock.Lock()
	a.free = append(a.free, idx)
	a.lock.Unlock()
}
