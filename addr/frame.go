package addr

// FrameSize is implemented by marker types identifying one of the page
// sizes a given architecture supports (4 KiB / 2 MiB / 1 GiB on x86_64;
// 4 KiB / 2 MiB / 1 GiB on RISC-V Sv39/Sv48), mirroring the original
// Rust hal::memory::FrameSize trait (original_source kernel/hal/src/memory/mod.rs).
type FrameSize interface {
	// Bytes returns the frame size in bytes.
	Bytes() uintptr
}

// Size4KiB is the base frame/page size on every supported architecture.
type Size4KiB struct{}

// Bytes returns 4096.
func (Size4KiB) Bytes() uintptr { return 4 * 1024 }

// Size2MiB is the "large page" size.
type Size2MiB struct{}

// Bytes returns 2 MiB.
func (Size2MiB) Bytes() uintptr { return 2 * 1024 * 1024 }

// Size1GiB is the "huge page" size, available on x86_64 PDPT entries
// (when the CPU supports it) and RISC-V gigapage entries (the Sv39
// root level, one level below the Sv48 root).
type Size1GiB struct{}

// Bytes returns 1 GiB.
func (Size1GiB) Bytes() uintptr { return 1 * 1024 * 1024 * 1024 }

// Frame is a physical-memory frame of size S, always aligned to
// S.Bytes(). Construct with FrameAt (checks alignment) or FrameContaining.
type Frame[S FrameSize] struct {
	Start PhysicalAddress
}

// FrameAt returns the frame whose start is start. ok is false if start is
// not aligned to the frame size.
func FrameAt[S FrameSize](start PhysicalAddress) (f Frame[S], ok bool) {
	var s S
	if !start.IsAligned(s.Bytes()) {
		return Frame[S]{}, false
	}
	return Frame[S]{Start: start}, true
}

// FrameContaining returns the frame that contains address, rounding down.
func FrameContaining[S FrameSize](address PhysicalAddress) Frame[S] {
	var s S
	return Frame[S]{Start: address.AlignDown(s.Bytes())}
}

// Plus returns the n-th successor frame, checked against address overflow.
func (f Frame[S]) Plus(n uintptr) (Frame[S], bool) {
	var s S
	next, ok := f.Start.Add(n * s.Bytes())
	return Frame[S]{Start: next}, ok
}

// Less reports whether f sorts before other; Frame is totally ordered by
// start address.
func (f Frame[S]) Less(other Frame[S]) bool { return f.Start < other.Start }

// FrameRange is a half-open, restartable range [Start, End) of frames,
// modeled as a finite lazy sequence per §9 ("Generators / iterators").
type FrameRange[S FrameSize] struct {
	Start, End Frame[S]
}

// Next returns the first frame in the range and the remaining range. ok
// is false once the range is empty.
func (r FrameRange[S]) Next() (f Frame[S], rest FrameRange[S], ok bool) {
	if !r.Start.Less(r.End) {
		return Frame[S]{}, r, false
	}
	nf, _ := r.Start.Plus(1)
	return r.Start, FrameRange[S]{Start: nf, End: r.End}, true
}

// Len returns the number of frames covered by the range.
func (r FrameRange[S]) Len() uintptr {
	var s S
	if r.End.Start <= r.Start.Start {
		return 0
	}
	return uintptr(r.End.Start-r.Start.Start) / s.Bytes()
}

// Page is a virtual-memory page of size S, always aligned to S.Bytes().
type Page[S FrameSize] struct {
	Start VirtualAddress
}

// PageAt returns the page whose start is start. ok is false if start is
// not aligned to the page size.
func PageAt[S FrameSize](start VirtualAddress) (p Page[S], ok bool) {
	var s S
	if !start.IsAligned(s.Bytes()) {
		return Page[S]{}, false
	}
	return Page[S]{Start: start}, true
}

// PageContaining returns the page that contains address, rounding down.
func PageContaining[S FrameSize](address VirtualAddress) Page[S] {
	var s S
	return Page[S]{Start: address.AlignDown(s.Bytes())}
}

// Plus returns the n-th successor page, checked against non-canonical
// overflow.
func (p Page[S]) Plus(n uintptr) (Page[S], bool) {
	var s S
	next, ok := p.Start.Add(n * s.Bytes())
	return Page[S]{Start: next}, ok
}

// Less reports whether p sorts before other; Page is totally ordered by
// start address.
func (p Page[S]) Less(other Page[S]) bool { return p.Start < other.Start }

// PageRange is a half-open, restartable range [Start, End) of pages.
type PageRange[S FrameSize] struct {
	Start, End Page[S]
}

// Next returns the first page in the range and the remaining range. ok
// is false once the range is empty.
func (r PageRange[S]) Next() (p Page[S], rest PageRange[S], ok bool) {
	if !r.Start.Less(r.End) {
		return Page[S]{}, r, false
	}
	np, _ := r.Start.Plus(1)
	return r.Start, PageRange[S]{Start: np, End: r.End}, true
}

// Len returns the number of pages covered by the range.
func (r PageRange[S]) Len() uintptr {
	var s S
	if r.End.Start <= r.Start.Start {
		return 0
	}
	return uintptr(r.End.Start-r.Start.Start) / s.Bytes()
}
