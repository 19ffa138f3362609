// Package riscv64 supplies the vmm.Codec for RISC-V's Sv39 and Sv48
// page table modes, grounded on gopher-os's multiboot-era page table
// walker (kernel/mem/pmm) generalized to RISC-V's PTE layout, and
// original_source's hal_riscv64::paging entry encoding. Sv39 and Sv48
// share one PTE bit layout (original_source's paging code encodes both
// the same way) and differ only in table depth and VPN field count, so
// both are one parameterized Codec rather than two copies.
package riscv64

import (
	"nucleus/addr"
	"nucleus/bootinfo"
	"nucleus/vmm"
)

const (
	bitValid    = 1 << 0
	bitRead     = 1 << 1
	bitWrite    = 1 << 2
	bitExecute  = 1 << 3
	bitUser     = 1 << 4
	bitGlobal   = 1 << 5
	bitAccessed = 1 << 6
	bitDirty    = 1 << 7
	bitRSWHuge  = 1 << 8 // software-reserved bit recording EncodeLeaf's huge flag

	ppnShift = 10
)

// sv39Shift/sv39Covers describe Sv39's three levels: VPN[2], VPN[1],
// VPN[0].
var sv39Shift = []uint{30, 21, 12}
var sv39Covers = []uintptr{1 << 30, 1 << 21, 1 << 12}

// sv48Shift/sv48Covers describe Sv48's four levels: VPN[3], VPN[2],
// VPN[1], VPN[0]. VPN[3] sits directly above Sv39's root, covering
// 512 GiB per entry.
var sv48Shift = []uint{39, 30, 21, 12}
var sv48Covers = []uintptr{1 << 39, 1 << 30, 1 << 21, 1 << 12}

// Codec implements nucleus/vmm.Codec for RISC-V. The zero value is
// Sv39, this kernel's default RISC-V mode (bootcfg.AddressBits); build
// one for Sv48 with NewSv48Codec when the platform negotiated that mode
// during boot hand-off (bootcfg.AddressBitsSv48).
type Codec struct {
	levelShift  []uint
	levelCovers []uintptr
}

// NewSv39Codec returns a Codec for the three-level Sv39 format.
// Equivalent to the zero value; provided for symmetry with
// NewSv48Codec.
func NewSv39Codec() Codec {
	return Codec{levelShift: sv39Shift, levelCovers: sv39Covers}
}

// NewSv48Codec returns a Codec for the four-level Sv48 format, used
// when the platform negotiates bootcfg.AddressBitsSv48 of virtual
// address space instead of Sv39's default 39.
func NewSv48Codec() Codec {
	return Codec{levelShift: sv48Shift, levelCovers: sv48Covers}
}

func (c Codec) shift() []uint {
	if c.levelShift == nil {
		return sv39Shift
	}
	return c.levelShift
}

func (c Codec) covers() []uintptr {
	if c.levelCovers == nil {
		return sv39Covers
	}
	return c.levelCovers
}

var _ vmm.Codec = Codec{}

func (c Codec) Levels() int { return len(c.shift()) }

func (c Codec) LevelCoversSize(level int) uintptr { return c.covers()[level] }

// LevelSupportsHugePage reports true for every level above the leaf:
// the gigapage/terapage levels on Sv48, the gigapage and megapage
// levels on Sv39. The leaf level is always a 4 KiB page.
func (c Codec) LevelSupportsHugePage(level int) bool {
	return level < c.Levels()-1
}

func (c Codec) Index(va addr.VirtualAddress, level int) int {
	return int((va.Uintptr() >> c.shift()[level]) & 0x1ff)
}

func (Codec) EncodeLeaf(frame addr.PhysicalAddress, flags bootinfo.Flags, huge bool) uint64 {
	e := (uint64(frame.Uintptr()) >> 12) << ppnShift
	e |= bitValid
	if flags.Readable {
		e |= bitRead
	}
	if flags.Writable {
		e |= bitWrite
	}
	if flags.Executable {
		e |= bitExecute
	}
	if flags.UserAccessible {
		e |= bitUser
	}
	if flags.Global {
		e |= bitGlobal
	}
	// A hosted simulator never takes page faults to set A/D, so mark
	// both at creation time; real hardware would otherwise require a
	// first-touch walker to set them lazily.
	e |= bitAccessed | bitDirty
	if huge {
		e |= bitRSWHuge
	}
	return e
}

func (Codec) EncodeIntermediate(childTable addr.PhysicalAddress, userAccessible bool) uint64 {
	e := (uint64(childTable.Uintptr()) >> 12) << ppnShift
	e |= bitValid
	return e
}

func (Codec) Decode(raw uint64) (frame addr.PhysicalAddress, flags bootinfo.Flags, present bool, huge bool) {
	if raw&bitValid == 0 {
		return 0, bootinfo.Flags{}, false, false
	}
	frame = addr.PA(uintptr((raw >> ppnShift) << 12))
	flags = bootinfo.Flags{
		Readable:       raw&bitRead != 0,
		Writable:       raw&bitWrite != 0,
		Executable:     raw&bitExecute != 0,
		UserAccessible: raw&bitUser != 0,
		Cached:         true,
		Global:         raw&bitGlobal != 0,
	}
	huge = raw&bitRSWHuge != 0
	return frame, flags, true, huge
}
