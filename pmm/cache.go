package pmm

import (
	"nucleus/addr"
	"nucleus/kerr"
)

// cacheCapacity mirrors biscuit's percpu free-list cap (pcpuphys_t's
// freelen limit of 100 in mem/mem.go's _pcpu_put) before it spills back
// to the shared structure.
const cacheCapacity = 100

// Cache is a per-CPU order-0 (single frame) free-list sitting in front
// of an Allocator, grounded on biscuit's Physmem_t percpu free lists
// (_pcpu_new/_pcpu_put): a small bounded LIFO list owned by one CPU,
// avoiding the Allocator's spinlock on the single-frame alloc/free hot
// path and falling back to (or spilling into) the shared Allocator once
// the local list is empty or full. A Cache is not itself safe for
// concurrent use; callers give one Cache per CPU, never shared.
type Cache struct {
	backing *Allocator
	frames  []uintptr
}

// NewCache returns an empty Cache backed by alloc.
func NewCache(backing *Allocator) *Cache {
	return &Cache{backing: backing}
}

// Alloc returns a single frame, preferring this Cache's local list over
// taking the shared Allocator's lock.
func (c *Cache) Alloc() (addr.PhysicalAddress, *kerr.Error) {
	if n := len(c.frames); n > 0 {
		p := c.frames[n-1]
		c.frames = c.frames[:n-1]
		return addr.PA(p), nil
	}
	return c.backing.Alloc(1)
}

// Free returns a single frame to this Cache's local list, spilling to
// the shared Allocator once the list reaches cacheCapacity.
func (c *Cache) Free(p addr.PhysicalAddress) {
	if len(c.frames) >= cacheCapacity {
		c.backing.Free(p, 1)
		return
	}
	c.frames = append(c.frames, p.Uintptr())
}

// Len reports the number of frames currently held in the local list.
func (c *Cache) Len() int { return len(c.frames) }
