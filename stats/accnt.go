// Package stats accumulates per-task accounting information and
// exports it as a google/pprof profile.Profile snapshot for host-side
// inspection, adapting biscuit's Accnt_t/stat/stats trio
// (biscuit/src/accnt/accnt.go, biscuit/src/stats/stats.go) from a
// bespoke rusage byte-dump into a format tools already know how to
// read and diff.
package stats

import (
	"sync/atomic"
)

// Accnt accumulates one task's CPU time and fault counts using atomic
// counters so Utadd/Sysadd/PageFault can be called from the scheduler's
// hot path without a lock.
type Accnt struct {
	userns     int64
	sysns      int64
	pageFaults int64
}

// Utadd adds delta nanoseconds of user-mode runtime.
func (a *Accnt) Utadd(delta int64) {
	atomic.AddInt64(&a.userns, delta)
}

// Sysadd adds delta nanoseconds of kernel-mode runtime.
func (a *Accnt) Sysadd(delta int64) {
	atomic.AddInt64(&a.sysns, delta)
}

// PageFault records one page fault serviced on this task's behalf.
func (a *Accnt) PageFault() {
	atomic.AddInt64(&a.pageFaults, 1)
}

// Add merges n's counters into a.
func (a *Accnt) Add(n *Accnt) {
	atomic.AddInt64(&a.userns, atomic.LoadInt64(&n.userns))
	atomic.AddInt64(&a.sysns, atomic.LoadInt64(&n.sysns))
	atomic.AddInt64(&a.pageFaults, atomic.LoadInt64(&n.pageFaults))
}

// Snapshot returns a's counters as of the call.
func (a *Accnt) Snapshot() (userns, sysns, pageFaults int64) {
	return atomic.LoadInt64(&a.userns), atomic.LoadInt64(&a.sysns), atomic.LoadInt64(&a.pageFaults)
}
