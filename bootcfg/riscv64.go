//go:build riscv64

package bootcfg

// VAddr is a raw virtual-address integer, used only to define arch
// constants; addr.VirtualAddress is the canonicalizing type used
// elsewhere.
type VAddr = uintptr

// AddressBits is the number of significant virtual address bits under
// Sv39 paging, the default RISC-V mode this kernel targets. It is a
// constant: addr's canonical-address check uses 39 bits on riscv64 even
// when the Sv48 codec (AddressBitsSv48) is in use.
const AddressBits = 39

// AddressBitsSv48 is the alternative address width when the platform
// negotiates Sv48 paging instead of Sv39.
const AddressBitsSv48 = 48

// HigherHalfBase is the first virtual address of the shared kernel
// mapping under Sv39.
const HigherHalfBase VAddr = 0xffff_ffc0_0000_0000

// PhysicalMapOffset is added to a physical address to obtain its
// direct-mapped kernel-virtual alias.
const PhysicalMapOffset VAddr = 0xffff_ffc0_0000_0000

// FrameSizes lists the page/frame sizes supported by Sv39: 4KiB, 2MiB
// (megapage), 1GiB (gigapage).
var FrameSizes = [3]uint64{1 << 12, 1 << 21, 1 << 30}
