// Package pmm implements the kernel's Physical Memory Manager: a
// bounded-order buddy allocator over frame-sized chunks of usable RAM
// (§4.1). It is grounded on the free-list/refcount structure of
// biscuit's mem.Physmem_t (biscuit/src/mem/mem.go) generalized from a
// single free list into one free list per buddy order, and on
// original_source's kernel/src/memory/pmm/mod.rs, which names this
// exact design ("buddy::BuddyAllocator") as the thing biscuit's flat
// free list should have been.
package pmm

import (
	"nucleus/addr"
	"nucleus/bootcfg"
	"nucleus/kerr"
	"nucleus/spinlock"
)

const maxOrder = bootcfg.MaxOrder

// Allocator is a binary buddy allocator over 4 KiB frames. Build one
// with New, which creates its free lists (the zero value has none, so
// FreeRange on it panics); call FreeRange to donate memory to it before
// the first Alloc.
type Allocator struct {
	lock spinlock.T
	free [maxOrder]map[uintptr]struct{}

	totalFrames  uint64
	freeFrames   uint64
}

// New returns an empty Allocator ready to receive FreeRange calls.
func New() *Allocator {
	a := &Allocator{}
	for i := range a.free {
		a.free[i] = make(map[uintptr]struct{})
	}
	return a
}

func orderBytes(order int) uintptr {
	return uintptr(bootcfg.PageSize) << uint(order)
}

func orderFrames(order int) uint64 {
	return uint64(1) << uint(order)
}

// Alloc reserves `frames` contiguous 4 KiB frames and returns the
// physical address of the first one. It rounds up to the next power of
// two and searches orders k, k+1, ... splitting the first block found
// (§4.1). Returns InvalidArgument for a zero request or one beyond the
// largest order, and OutOfMemory when no free block is large enough;
// never panics.
func (a *Allocator) Alloc(frames uint64) (addr.PhysicalAddress, *kerr.Error) {
	if frames == 0 {
		return 0, kerr.New("pmm", kerr.InvalidArgument, "zero frame request")
	}
	order := orderOf(frames)
	if order >= maxOrder {
		return 0, kerr.New("pmm", kerr.InvalidArgument, "request exceeds max order")
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	start, ok := a.allocLocked(order)
	if !ok {
		return 0, kerr.New("pmm", kerr.OutOfMemory, "no free block of sufficient order")
	}
	a.freeFrames -= orderFrames(order)
	return addr.PA(start), nil
}

// orderOf returns the smallest k such that 2^k >= frames.
func orderOf(frames uint64) int {
	k := 0
	for (uint64(1) << uint(k)) < frames {
		k++
	}
	return k
}

func (a *Allocator) allocLocked(order int) (uintptr, bool) {
	for k := order; k < maxOrder; k++ {
		for start := range a.free[k] {
			delete(a.free[k], start)
			// Split blocks from order k down to `order`, keeping
			// the low half and pushing the high half to the
			// free list of each intermediate order. Ties on
			// split: low half returned, high half freed (§4.1).
			for j := k; j > order; j-- {
				half := orderBytes(j - 1)
				high := start + half
				a.free[j-1][high] = struct{}{}
			}
			return start, true
		}
	}
	return 0, false
}

// Free releases `frames` contiguous frames starting at start, coalescing
// with the buddy block at each order when possible (§4.1).
func (a *Allocator) Free(start addr.PhysicalAddress, frames uint64) {
	order := orderOf(frames)
	a.lock.Lock()
	defer a.lock.Unlock()
	a.freeLocked(start.Uintptr(), order)
	a.freeFrames += orderFrames(order)
}

func (a *Allocator) freeLocked(start uintptr, order int) {
	for order < maxOrder-1 {
		buddy := start ^ orderBytes(order)
		if _, ok := a.free[order][buddy]; !ok {
			break
		}
		delete(a.free[order], buddy)
		if buddy < start {
			start = buddy
		}
		order++
	}
	a.free[order][start] = struct{}{}
}

// FreeRange donates the frame range [start, end) to the allocator during
// initialization, tiling it into the minimal set of aligned buddy blocks
// (§4.1 "Init").
func (a *Allocator) FreeRange(start, end addr.PhysicalAddress) {
	s, e := start.Uintptr(), end.Uintptr()
	// Round the start up and the end down so the freed range never
	// extends past what the caller actually gave us.
	s = (s + uintptr(bootcfg.PageSize-1)) &^ uintptr(bootcfg.PageSize-1)
	e &^= uintptr(bootcfg.PageSize - 1)
	if e <= s {
		return
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.totalFrames += uint64(e-s) / uint64(bootcfg.PageSize)
	a.freeFrames += uint64(e-s) / uint64(bootcfg.PageSize)

	for s < e {
		// Largest order whose alignment and remaining length both fit.
		order := maxOrder - 1
		for order > 0 {
			size := orderBytes(order)
			if s&(size-1) == 0 && s+size <= e {
				break
			}
			order--
		}
		a.freeLocked(s, order)
		s += orderBytes(order)
	}
}

// Stats reports the current total and free frame counts.
func (a *Allocator) Stats() (total, free uint64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.totalFrames, a.freeFrames
}
