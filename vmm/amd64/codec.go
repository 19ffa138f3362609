// Package amd64 supplies the vmm.Codec for the x86-64 four-level page
// table (PML4 -> PDPT -> PD -> PT), grounded on biscuit's vm page table
// walk (biscuit/src/vm/vm.go Pg_t) and original_source's
// hal_x86_64::paging entry layout.
package amd64

import (
	"golang.org/x/sys/cpu"

	"nucleus/addr"
	"nucleus/bootinfo"
)

const (
	bitPresent  = 1 << 0
	bitWritable = 1 << 1
	bitUser     = 1 << 2
	bitPCD      = 1 << 4 // page cache disable
	bitLargePage = 1 << 7
	bitGlobal   = 1 << 8
	bitNX       = 1 << 63

	frameMask = uint64(0x000f_ffff_ffff_f000)
)

// levelShift gives the bit position of the index field for each of the
// four levels: PML4, PDPT, PD, PT.
var levelShift = [4]uint{39, 30, 21, 12}

// levelCovers gives the byte span one entry at each level addresses.
var levelCovers = [4]uintptr{1 << 39, 1 << 30, 1 << 21, 1 << 12}

// Codec implements nucleus/vmm.Codec for x86-64. The zero value assumes
// no 1 GiB page support (the conservative default tests construct via
// Codec{}); NewCodec probes the running CPU instead.
type Codec struct {
	gbPages bool
}

// NewCodec returns a Codec configured for the CPU this process is
// running on, enabling 1 GiB leaf mappings at the PDPT level only when
// golang.org/x/sys/cpu reports PDPE1GB support.
func NewCodec() Codec {
	return Codec{gbPages: cpu.X86.HasPDPE1GB}
}

func (Codec) Levels() int { return 4 }

func (Codec) LevelCoversSize(level int) uintptr { return levelCovers[level] }

// LevelSupportsHugePage reports true for PD (2 MiB pages) unconditionally,
// and for PDPT (1 GiB pages) only when the Codec was built with gbPages
// support detected; the PML4 and PT levels never hold a leaf directly.
func (c Codec) LevelSupportsHugePage(level int) bool {
	if level == 1 {
		return c.gbPages
	}
	return level == 2
}

func (Codec) Index(va addr.VirtualAddress, level int) int {
	return int((va.Uintptr() >> levelShift[level]) & 0x1ff)
}

func (Codec) EncodeLeaf(frame addr.PhysicalAddress, flags bootinfo.Flags, huge bool) uint64 {
	e := uint64(frame.Uintptr()) & frameMask
	e |= bitPresent
	if flags.Writable {
		e |= bitWritable
	}
	if flags.UserAccessible {
		e |= bitUser
	}
	if !flags.Cached {
		e |= bitPCD
	}
	if flags.Global {
		e |= bitGlobal
	}
	if !flags.Executable {
		e |= bitNX
	}
	if huge {
		e |= bitLargePage
	}
	return e
}

func (Codec) EncodeIntermediate(childTable addr.PhysicalAddress, userAccessible bool) uint64 {
	e := uint64(childTable.Uintptr()) & frameMask
	e |= bitPresent | bitWritable
	if userAccessible {
		e |= bitUser
	}
	return e
}

func (Codec) Decode(raw uint64) (frame addr.PhysicalAddress, flags bootinfo.Flags, present bool, huge bool) {
	if raw&bitPresent == 0 {
		return 0, bootinfo.Flags{}, false, false
	}
	frame = addr.PA(uintptr(raw & frameMask))
	flags = bootinfo.Flags{
		Readable:       true,
		Writable:       raw&bitWritable != 0,
		Executable:     raw&bitNX == 0,
		UserAccessible: raw&bitUser != 0,
		Cached:         raw&bitPCD == 0,
		Global:         raw&bitGlobal != 0,
	}
	huge = raw&bitLargePage != 0
	return frame, flags, true, huge
}
