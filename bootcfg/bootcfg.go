// Package bootcfg collects the architecture/build-time tunables that the
// rest of the kernel treats as compile-time constants, mirroring the
// teacher's per-arch constant files (mem/constants_amd64.go).
package bootcfg

// PageShift is the base-2 exponent of the base page/frame size (4 KiB).
const PageShift = 12

// PageSize is the size in bytes of the smallest frame/page.
const PageSize = 1 << PageShift

// MaxOrder is the highest buddy order the PMM tracks; order MaxOrder-1
// covers 2^(MaxOrder-1) frames. The spec requires MAX_ORDER >= 10 (>=4MiB
// blocks at 4 KiB granule).
const MaxOrder = 19

// KernelStackSlotSize is the size of one slab slot reserved for a kernel
// stack (§4.3): 64 KiB, of which KernelStackInitialSize is mapped.
const KernelStackSlotSize = 64 * 1024

// KernelStackInitialSize is the portion of a kernel stack slot mapped to
// physical frames when the stack is created; the remainder is an unmapped
// guard region.
const KernelStackInitialSize = 16 * 1024

// TLBFlushPageThreshold is the number of pages above which the mapper
// performs a whole-address-space TLB flush instead of per-page
// invalidation (§4.2).
const TLBFlushPageThreshold = 16
