// Package vmm implements the architecture-neutral virtual memory mapper
// (C3, §4.2): map/unmap/translate over a multi-level page table, with
// concrete per-level bit layouts supplied by an arch-specific Codec
// (nucleus/vmm/amd64, nucleus/vmm/riscv64). The descent/split/rollback
// algorithm is shared; only entry encoding and level geometry differ per
// architecture, mirroring original_source's hal::memory::Mapper trait
// with one default-provided map_range and an arch-specific map/map_area.
package vmm

import (
	"nucleus/addr"
	"nucleus/bootinfo"
	"nucleus/kerr"
)

// EntriesPerTable is the number of 8-byte entries in one page-table
// frame (4096 / 8), the same on amd64 and RISC-V Sv39/Sv48.
const EntriesPerTable = 512

// Table is one physical page-table frame, viewed as its raw entries.
type Table = [EntriesPerTable]uint64

// Memory gives the mapper access to physical page-table frames through
// the kernel's direct map (§4.2 "physical-to-virtual view"). Production
// code backs this with the fixed physical_to_virtual offset; tests back
// it with an in-memory fake.
type Memory interface {
	// Table returns a pointer to the live contents of the table-sized
	// frame at pa. The returned pointer aliases kernel memory; writes
	// are immediately visible to any other holder of the same frame.
	Table(pa addr.PhysicalAddress) *Table
}

// FrameAllocator is the subset of pmm.Allocator the mapper needs to
// create intermediate tables. It is an interface so tests can inject a
// deterministic or failing allocator.
type FrameAllocator interface {
	Alloc(frames uint64) (addr.PhysicalAddress, *kerr.Error)
	Free(start addr.PhysicalAddress, frames uint64)
}

// Codec encodes and decodes the architecture-specific bits of a page
// table entry. Level 0 is the root (PML4 / Sv39 root); Levels-1 is the
// leaf level for 4 KiB pages.
type Codec interface {
	// Levels is the table depth, 4 on amd64, 3 on Sv39 / 4 on Sv48.
	Levels() int

	// LevelCoversSize returns the region a single entry at level
	// covers: 4 KiB at the leaf level, larger at higher levels.
	LevelCoversSize(level int) uintptr

	// LevelSupportsHugePage reports whether level may hold a leaf
	// entry directly (a "huge"/"large" page) instead of only
	// pointing at the next table down.
	LevelSupportsHugePage(level int) bool

	// Index returns the table index that va selects at level.
	Index(va addr.VirtualAddress, level int) int

	// EncodeLeaf builds a present leaf entry mapping frame with flags.
	// huge indicates the entry is a large/huge page at a non-leaf
	// level.
	EncodeLeaf(frame addr.PhysicalAddress, flags bootinfo.Flags, huge bool) uint64

	// EncodeIntermediate builds a present, non-leaf entry pointing at
	// the child table frame. userAccessible must be set if any leaf
	// under this subtree is user-accessible (amd64 requires the whole
	// path to carry the U bit).
	EncodeIntermediate(childTable addr.PhysicalAddress, userAccessible bool) uint64

	// Decode extracts the fields from a raw, possibly absent entry.
	Decode(raw uint64) (frame addr.PhysicalAddress, flags bootinfo.Flags, present bool, huge bool)
}

// TLB abstracts invalidation so tests can observe/skip it (§4.2).
type TLB interface {
	InvalidatePage(va addr.VirtualAddress)
	InvalidateAll()
}

// NoopTLB implements TLB by doing nothing; suitable for tests and for
// page tables that are not currently active on any CPU.
type NoopTLB struct{}

func (NoopTLB) InvalidatePage(addr.VirtualAddress) {}
func (NoopTLB) InvalidateAll()                     {}

// Mapper owns one page table hierarchy rooted at Root.
type Mapper struct {
	Root  addr.PhysicalAddress
	Codec Codec
	Mem   Memory
	TLB   TLB
}

// New constructs a Mapper over an already-allocated, zeroed root table.
func New(root addr.PhysicalAddress, codec Codec, mem Memory, tlb TLB) *Mapper {
	if tlb == nil {
		tlb = NoopTLB{}
	}
	return &Mapper{Root: root, Codec: codec, Mem: mem, TLB: tlb}
}

// Translate returns the physical address va maps to, or NotMapped.
func (m *Mapper) Translate(va addr.VirtualAddress) (addr.PhysicalAddress, *kerr.Error) {
	pa, _, err := m.Lookup(va)
	return pa, err
}

// Lookup is Translate plus the Flags the leaf entry was mapped with, so
// callers that need to check access rights (syscall argument validation)
// do not have to walk the table a second time.
func (m *Mapper) Lookup(va addr.VirtualAddress) (addr.PhysicalAddress, bootinfo.Flags, *kerr.Error) {
	table := m.Root
	levels := m.Codec.Levels()
	for level := 0; level < levels; level++ {
		idx := m.Codec.Index(va, level)
		raw := m.Mem.Table(table)[idx]
		frame, flags, present, huge := m.Codec.Decode(raw)
		if !present {
			return 0, bootinfo.Flags{}, kerr.New("vmm", kerr.NotMapped, "translate: entry not present")
		}
		if huge || level == levels-1 {
			pageSize := m.Codec.LevelCoversSize(level)
			offset := va.Uintptr() & (pageSize - 1)
			pa, ok := frame.Add(offset)
			if !ok {
				return 0, bootinfo.Flags{}, kerr.New("vmm", kerr.InvalidArgument, "translate: overflow")
			}
			return pa, flags, nil
		}
		table = frame
	}
	return 0, bootinfo.Flags{}, kerr.New("vmm", kerr.NotMapped, "translate: exhausted levels")
}

// descendResult records one newly-allocated intermediate table so a
// caller can free it again on rollback.
type descendResult struct {
	tableLevel int
	frame      addr.PhysicalAddress
}

// descend walks from the root to the parent of the leaf entry for va,
// allocating and zeroing any missing intermediate tables. On error, the
// tables it allocated before the failure are freed and nil/err returned.
func (m *Mapper) descend(va addr.VirtualAddress, leafLevel int, userAccessible bool, alloc FrameAllocator) (parentTable addr.PhysicalAddress, allocated []descendResult, err *kerr.Error) {
	table := m.Root
	for level := 0; level < leafLevel; level++ {
		idx := m.Codec.Index(va, level)
		entries := m.Mem.Table(table)
		raw := entries[idx]
		frame, _, present, huge := m.Codec.Decode(raw)
		if present && huge {
			m.rollback(allocated, alloc)
			return 0, nil, kerr.New("vmm", kerr.InvalidHugePage, "intermediate entry is a huge page")
		}
		if !present {
			newFrame, aerr := alloc.Alloc(1)
			if aerr != nil {
				m.rollback(allocated, alloc)
				return 0, nil, kerr.New("vmm", kerr.AllocationFailed, "could not allocate page table frame")
			}
			zeroTable(m.Mem.Table(newFrame))
			entries[idx] = m.Codec.EncodeIntermediate(newFrame, userAccessible)
			allocated = append(allocated, descendResult{tableLevel: level, frame: newFrame})
			frame = newFrame
		}
		table = frame
	}
	return table, allocated, nil
}

func (m *Mapper) rollback(allocated []descendResult, alloc FrameAllocator) {
	for _, a := range allocated {
		alloc.Free(a.frame, 1)
	}
}

func zeroTable(t *Table) {
	for i := range t {
		t[i] = 0
	}
}

// Map installs a single page->frame mapping at the leaf level matching
// S's size (§4.2 "map"). It fails with AlreadyMapped unless the existing
// entry exactly matches the request.
func (m *Mapper) Map(va addr.VirtualAddress, pa addr.PhysicalAddress, pageSize uintptr, flags bootinfo.Flags, alloc FrameAllocator) *kerr.Error {
	leafLevel, huge, err := m.leafLevelForSize(pageSize)
	if err != nil {
		return err
	}
	if !va.IsAligned(pageSize) || !pa.IsAligned(pageSize) {
		return kerr.New("vmm", kerr.Unaligned, "map: address not aligned to page size")
	}

	parent, allocated, derr := m.descend(va, leafLevel, flags.UserAccessible, alloc)
	if derr != nil {
		return derr
	}

	idx := m.Codec.Index(va, leafLevel)
	entries := m.Mem.Table(parent)
	existingFrame, existingFlags, present, existingHuge := m.Codec.Decode(entries[idx])
	if present {
		if existingFrame == pa && existingFlags == flags && existingHuge == huge {
			return nil
		}
		m.rollback(allocated, alloc)
		return kerr.New("vmm", kerr.AlreadyMapped, "map: entry already present")
	}

	entries[idx] = m.Codec.EncodeLeaf(pa, flags, huge)
	m.TLB.InvalidatePage(va)
	return nil
}

func (m *Mapper) leafLevelForSize(pageSize uintptr) (level int, huge bool, err *kerr.Error) {
	levels := m.Codec.Levels()
	for level := levels - 1; level >= 0; level-- {
		if m.Codec.LevelCoversSize(level) == pageSize {
			return level, level != levels-1, nil
		}
	}
	return 0, false, kerr.New("vmm", kerr.InvalidArgument, "map: unsupported page size")
}

// Unmap removes the mapping for va and returns the physical frame that
// was backing it, without freeing it back to the PMM (§4.2 "unmap").
func (m *Mapper) Unmap(va addr.VirtualAddress, pageSize uintptr) (addr.PhysicalAddress, *kerr.Error) {
	leafLevel, _, err := m.leafLevelForSize(pageSize)
	if err != nil {
		return 0, err
	}

	table := m.Root
	for level := 0; level < leafLevel; level++ {
		idx := m.Codec.Index(va, level)
		entries := m.Mem.Table(table)
		frame, _, present, huge := m.Codec.Decode(entries[idx])
		if !present {
			return 0, kerr.New("vmm", kerr.NotMapped, "unmap: intermediate entry absent")
		}
		if huge {
			return 0, kerr.New("vmm", kerr.InvalidHugePage, "unmap: encountered huge page above leaf level")
		}
		table = frame
	}

	idx := m.Codec.Index(va, leafLevel)
	entries := m.Mem.Table(table)
	frame, _, present, _ := m.Codec.Decode(entries[idx])
	if !present {
		return 0, kerr.New("vmm", kerr.NotMapped, "unmap: entry not present")
	}
	entries[idx] = 0
	m.TLB.InvalidatePage(va)
	return frame, nil
}

// MapRange maps each page in [vaStart, vaStart+n*pageSize) to the
// corresponding frame starting at paStart, failing atomically: if step k
// fails, the first k-1 pages are unmapped before returning (§4.2, §5
// "Atomicity of multi-step ops").
func (m *Mapper) MapRange(vaStart addr.VirtualAddress, paStart addr.PhysicalAddress, n uintptr, pageSize uintptr, flags bootinfo.Flags, alloc FrameAllocator) *kerr.Error {
	var installed []addr.VirtualAddress
	for i := uintptr(0); i < n; i++ {
		va, ok1 := vaStart.Add(i * pageSize)
		pa, ok2 := paStart.Add(i * pageSize)
		if !ok1 || !ok2 {
			m.unmapAll(installed, pageSize)
			return kerr.New("vmm", kerr.InvalidArgument, "map_range: address overflow")
		}
		if err := m.Map(va, pa, pageSize, flags, alloc); err != nil {
			m.unmapAll(installed, pageSize)
			return err
		}
		installed = append(installed, va)
	}
	if len(installed) > bootcfgTLBThreshold() {
		m.TLB.InvalidateAll()
	}
	return nil
}

func (m *Mapper) unmapAll(vas []addr.VirtualAddress, pageSize uintptr) {
	for _, va := range vas {
		m.Unmap(va, pageSize)
	}
}

// MapArea maps size bytes starting at (va, pa), choosing the largest
// page size at each step whose alignment and remaining length both
// satisfy the request (§4.2 "map_area"). It is atomic: on failure,
// every page installed so far is unmapped (§9 "Open questions").
func (m *Mapper) MapArea(va addr.VirtualAddress, pa addr.PhysicalAddress, size uintptr, flags bootinfo.Flags, alloc FrameAllocator) *kerr.Error {
	sizes := m.descendingPageSizes()
	var installed []struct {
		va   addr.VirtualAddress
		size uintptr
	}
	rollback := func() {
		for i := len(installed) - 1; i >= 0; i-- {
			m.Unmap(installed[i].va, installed[i].size)
		}
	}

	basePageSize := sizes[len(sizes)-1]
	remaining := size
	curVA, curPA := va, pa
	for remaining > 0 {
		// basePageSize always satisfies alignment (it's the smallest
		// leaf size); the loop below only overrides it with a larger
		// size when that also fits, so chosen is never left at 0.
		chosen := basePageSize
		for _, ps := range sizes {
			if curVA.IsAligned(ps) && curPA.IsAligned(ps) && remaining >= ps {
				chosen = ps
				break
			}
		}
		if err := m.Map(curVA, curPA, chosen, flags, alloc); err != nil {
			rollback()
			return err
		}
		installed = append(installed, struct {
			va   addr.VirtualAddress
			size uintptr
		}{curVA, chosen})

		nextVA, ok1 := curVA.Add(chosen)
		nextPA, ok2 := curPA.Add(chosen)
		if !ok1 || !ok2 {
			rollback()
			return kerr.New("vmm", kerr.InvalidArgument, "map_area: address overflow")
		}
		curVA, curPA = nextVA, nextPA
		if chosen >= remaining {
			break
		}
		remaining -= chosen
	}
	if len(installed) > bootcfgTLBThreshold() {
		m.TLB.InvalidateAll()
	}
	return nil
}

// descendingPageSizes returns every leaf-capable page size, largest
// first.
func (m *Mapper) descendingPageSizes() []uintptr {
	levels := m.Codec.Levels()
	var sizes []uintptr
	for level := 0; level < levels; level++ {
		if level == levels-1 || m.Codec.LevelSupportsHugePage(level) {
			sizes = append(sizes, m.Codec.LevelCoversSize(level))
		}
	}
	// Levels are visited root-to-leaf, so coarser sizes (higher in the
	// tree) come first and sizes is already descending.
	return sizes
}

func bootcfgTLBThreshold() int { return 16 }
