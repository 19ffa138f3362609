package pmm

import (
	"testing"

	"nucleus/addr"
	"nucleus/bootcfg"
)

func TestCacheAllocFallsBackToBacking(t *testing.T) {
	a := New()
	a.FreeRange(addr.PA(0), addr.PA(4*uintptr(bootcfg.PageSize)))

	c := NewCache(a)
	p, err := c.Alloc()
	if err != nil {
		t.Fatalf("alloc through empty cache failed: %v", err)
	}
	if total, free := a.Stats(); total != 4 || free != 3 {
		t.Fatalf("unexpected stats: total=%d free=%d", total, free)
	}
	_ = p
}

func TestCacheFreeThenAllocReusesLocalFrame(t *testing.T) {
	a := New()
	a.FreeRange(addr.PA(0), addr.PA(4*uintptr(bootcfg.PageSize)))

	c := NewCache(a)
	p, err := c.Alloc()
	if err != nil {
		t.Fatalf("alloc failed: %v", err)
	}
	_, freeBefore := a.Stats()

	c.Free(p)
	if c.Len() != 1 {
		t.Fatalf("expected 1 cached frame after Free, got %d", c.Len())
	}
	_, freeAfterCacheFree := a.Stats()
	if freeAfterCacheFree != freeBefore {
		t.Fatalf("Free into a non-full cache must not touch the backing allocator's free count")
	}

	got, err := c.Alloc()
	if err != nil {
		t.Fatalf("alloc failed: %v", err)
	}
	if got != p {
		t.Fatalf("expected cached frame %#x to be reused, got %#x", p.Uintptr(), got.Uintptr())
	}
	if c.Len() != 0 {
		t.Fatalf("cache should be empty after reuse, got %d", c.Len())
	}
}

func TestCacheSpillsToBackingAtCapacity(t *testing.T) {
	a := New()
	a.FreeRange(addr.PA(0), addr.PA(uintptr(cacheCapacity+2)*uintptr(bootcfg.PageSize)))

	c := NewCache(a)
	frames := make([]addr.PhysicalAddress, cacheCapacity+1)
	for i := range frames {
		p, err := c.Alloc()
		if err != nil {
			t.Fatalf("alloc %d failed: %v", i, err)
		}
		frames[i] = p
	}
	_, freeBefore := a.Stats()

	for _, p := range frames {
		c.Free(p)
	}
	if c.Len() != cacheCapacity {
		t.Fatalf("cache should cap at %d frames, got %d", cacheCapacity, c.Len())
	}
	_, freeAfter := a.Stats()
	if freeAfter != freeBefore+1 {
		t.Fatalf("exactly one frame should have spilled back to the backing allocator, free went %d -> %d", freeBefore, freeAfter)
	}
}
