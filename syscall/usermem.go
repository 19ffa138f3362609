package syscall

import (
	"unsafe"

	"nucleus/addr"
	"nucleus/kerr"
)

// UserMemory copies bytes to and from a validated userspace range. A
// handler must call ValidatePointer first; Read/Write themselves trust
// the caller and do not re-check mapping or rights, mirroring how a
// copy_from_user helper is used below the validation layer in any
// kernel (§6).
type UserMemory interface {
	Read(va addr.VirtualAddress, length uintptr) ([]byte, *kerr.Error)
	Write(va addr.VirtualAddress, data []byte) *kerr.Error
}

// DirectUserMemory implements UserMemory over the kernel's direct
// physical map, the production backend. It is only safe to use after
// translating va through the calling task's AddressSpace, which
// ValidatePointer does.
type DirectUserMemory struct{}

// Read copies length bytes starting at va.
func (DirectUserMemory) Read(va addr.VirtualAddress, length uintptr) ([]byte, *kerr.Error) {
	out := make([]byte, length)
	src := unsafe.Slice((*byte)(unsafe.Pointer(va.Uintptr())), length)
	copy(out, src)
	return out, nil
}

// Write copies data to va.
func (DirectUserMemory) Write(va addr.VirtualAddress, data []byte) *kerr.Error {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(va.Uintptr())), len(data))
	copy(dst, data)
	return nil
}
