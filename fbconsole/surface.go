// Package fbconsole renders the kernel's early log onto a linear
// framebuffer as a scrolling text console, grounded on
// iansmith-mazarin's framebuffer_text.go (cursor/scroll bookkeeping)
// and gg_circle_qemu.go (drawing through a github.com/fogleman/gg
// context and flushing it back into the raw pixel buffer).
package fbconsole

import (
	"unsafe"

	"nucleus/bootcfg"
	"nucleus/bootinfo"
)

// Surface is the raw pixel buffer a Console draws into. Bytes returns
// pitch*height bytes laid out as one row after another, pitch being
// stride*bytesPerPixel.
type Surface interface {
	Bytes() []byte
}

// DirectSurface is the production Surface: the framebuffer's physical
// base address viewed through the kernel's direct map, the same
// technique vmm.DirectMap uses for page tables.
type DirectSurface struct {
	fb *bootinfo.FramebufferInfo
}

// NewDirectSurface wraps fb's physical memory as a Surface.
func NewDirectSurface(fb *bootinfo.FramebufferInfo) DirectSurface {
	return DirectSurface{fb: fb}
}

func (s DirectSurface) Bytes() []byte {
	size := uintptr(s.fb.Stride) * uintptr(s.fb.Height) * 4
	va := bootcfg.PhysicalMapOffset + bootcfg.VAddr(s.fb.Base.Uintptr())
	return unsafe.Slice((*byte)(unsafe.Pointer(va)), size)
}
