package vmm

import (
	"unsafe"

	"nucleus/addr"
	"nucleus/bootcfg"
)

// DirectMap implements Memory over the kernel's direct physical map: the
// fixed offset at which all usable physical memory is also mapped
// virtually (§4.2 "physical-to-virtual direct map", bootcfg.PhysicalMapOffset).
// It is the production Memory backend; tests use an in-memory fake that
// does not require a live direct map to exist.
type DirectMap struct{}

// Table returns a pointer into the direct map for the table-sized frame
// at pa.
func (DirectMap) Table(pa addr.PhysicalAddress) *Table {
	va := bootcfg.PhysicalMapOffset + bootcfg.VAddr(pa.Uintptr())
	return (*Table)(unsafe.Pointer(va))
}
