// Package addr defines the kernel's physical and virtual address types
// (C1). Both are opaque newtypes over a machine word, constructed only
// through checked constructors, following biscuit's mem.Pa_t convention
// (mem/mem.go) generalized to cover virtual-address canonicalization.
package addr

import "nucleus/bootcfg"

// PhysicalAddress is an opaque physical address. The zero value is the
// physical address 0, which is a valid (if unusual) address; construct
// PhysicalAddress values with PA.
type PhysicalAddress uintptr

// PA wraps a raw integer as a PhysicalAddress. Physical addresses have no
// canonicalization requirement.
func PA(v uintptr) PhysicalAddress { return PhysicalAddress(v) }

// Uintptr returns the raw address value.
func (p PhysicalAddress) Uintptr() uintptr { return uintptr(p) }

// AlignUp rounds p up to the next multiple of align, which must be a
// power of two.
func (p PhysicalAddress) AlignUp(align uintptr) PhysicalAddress {
	return PhysicalAddress((uintptr(p) + align - 1) &^ (align - 1))
}

// AlignDown rounds p down to the previous multiple of align, which must
// be a power of two.
func (p PhysicalAddress) AlignDown(align uintptr) PhysicalAddress {
	return PhysicalAddress(uintptr(p) &^ (align - 1))
}

// IsAligned reports whether p is a multiple of align.
func (p PhysicalAddress) IsAligned(align uintptr) bool {
	return uintptr(p)&(align-1) == 0
}

// Add returns p+n, checked against uintptr overflow. ok is false if the
// addition wraps.
func (p PhysicalAddress) Add(n uintptr) (PhysicalAddress, bool) {
	r := uintptr(p) + n
	return PhysicalAddress(r), r >= uintptr(p)
}

// VirtualAddress is an opaque, canonical virtual address: its high bits
// above bootcfg.AddressBits-1 must sign-extend bit AddressBits-1 (§3).
// Construct with VA, which is the only way to obtain a value, so every
// VirtualAddress in circulation is canonical by construction.
type VirtualAddress uintptr

// VA constructs a canonical VirtualAddress from a raw integer. ok is
// false, and the zero VirtualAddress is returned, if v is not canonical.
func VA(v uintptr) (addr VirtualAddress, ok bool) {
	if !isCanonical(v) {
		return 0, false
	}
	return VirtualAddress(v), true
}

// MustVA is VA but panics on a non-canonical address; used for compile-
// time-known constants such as the higher-half base.
func MustVA(v uintptr) VirtualAddress {
	a, ok := VA(v)
	if !ok {
		panic("addr: non-canonical virtual address")
	}
	return a
}

func isCanonical(v uintptr) bool {
	bits := bootcfg.AddressBits
	signBit := uintptr(1) << (bits - 1)
	top := v &^ (signBit - 1)
	if v&signBit == 0 {
		return top == 0
	}
	return top == ^uintptr(0)&^(signBit-1)
}

// Uintptr returns the raw address value.
func (v VirtualAddress) Uintptr() uintptr { return uintptr(v) }

// AlignUp rounds v up to the next multiple of align, which must be a
// power of two. ok is false if the result would become non-canonical.
func (v VirtualAddress) AlignUp(align uintptr) (VirtualAddress, bool) {
	return VA((uintptr(v) + align - 1) &^ (align - 1))
}

// AlignDown rounds v down to the previous multiple of align, which must
// be a power of two.
func (v VirtualAddress) AlignDown(align uintptr) VirtualAddress {
	r, _ := VA(uintptr(v) &^ (align - 1))
	return r
}

// IsAligned reports whether v is a multiple of align.
func (v VirtualAddress) IsAligned(align uintptr) bool {
	return uintptr(v)&(align-1) == 0
}

// Add returns v+n as a canonical address. ok is false if the result is
// not representable or not canonical.
func (v VirtualAddress) Add(n uintptr) (VirtualAddress, bool) {
	return VA(uintptr(v) + n)
}
