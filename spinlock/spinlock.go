// Package spinlock implements the kernel's critical-section primitive
// (§5): a lock that, on real hardware, disables local interrupts for its
// duration so an interrupt handler on the same CPU cannot deadlock by
// trying to re-acquire a lock its own CPU already holds. On top of a
// hosted Go runtime we approximate "disable interrupts" with a mutex;
// DisableFn/EnableFn are the hooks an architecture package overrides to
// install the real CLI/STI (or RISC-V csrc/csrs sstatus.SIE) behavior.
package spinlock

import "sync"

// DisableFn disables local interrupts and returns the previous state, to
// be restored by EnableFn. The default is a no-op suitable for tests.
var DisableFn = func() (prev bool) { return false }

// EnableFn restores the interrupt-enabled state captured by DisableFn.
var EnableFn = func(prev bool) {}

// T is a mutual-exclusion lock that never suspends the caller: every
// method it protects must run to completion without blocking, matching
// §5's requirement that the PMM, mapper and object registry never
// suspend while holding one.
type T struct {
	mu   sync.Mutex
	prev bool
}

// Lock disables local interrupts and acquires the lock.
func (l *T) Lock() {
	prev := DisableFn()
	l.mu.Lock()
	l.prev = prev
}

// Unlock releases the lock and restores the prior interrupt state.
func (l *T) Unlock() {
	prev := l.prev
	l.mu.Unlock()
	EnableFn(prev)
}
