//go:build amd64

package bootcfg

// AddressBits is the number of significant virtual address bits on this
// architecture; a virtual address is canonical only if bits
// [AddressBits-1:63] are all equal to bit AddressBits-1 (§3).
const AddressBits = 48

// HigherHalfBase is the first virtual address of the shared kernel
// mapping. All address spaces share the top-level page-table entries
// covering [HigherHalfBase, 1<<64).
const HigherHalfBase VAddr = 0xffff_8000_0000_0000

// PhysicalMapOffset is added to a physical address to obtain its
// direct-mapped kernel-virtual alias (§4.2 "physical-to-virtual view").
const PhysicalMapOffset VAddr = 0xffff_8000_0000_0000

// FrameSizes lists the page/frame sizes supported by the mapper, smallest
// first; map_area prefers the largest one whose alignment and remaining
// size both satisfy the request.
var FrameSizes = [3]uint64{1 << 12, 1 << 21, 1 << 30} // 4KiB, 2MiB, 1GiB

// VAddr is a raw virtual-address integer, used only to define arch
// constants; addr.VirtualAddress is the canonicalizing type used
// elsewhere.
type VAddr = uintptr
