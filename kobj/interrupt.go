package kobj

import (
	"sync"

	"nucleus/kerr"
)

// Interrupt is a kernel object that latches the occurrence of one
// hardware interrupt vector for userspace to observe and acknowledge
// (§3). Ack re-arms it to receive the next occurrence.
type Interrupt struct {
	Vector uint32

	mu      sync.Mutex
	pending bool
}

func (*Interrupt) Kind() Kind { return KindInterrupt }

// NewInterrupt returns an Interrupt object bound to vector, not yet
// pending.
func NewInterrupt(vector uint32) *Interrupt {
	return &Interrupt{Vector: vector}
}

// Fire marks the interrupt pending; called from the (simulated) handler
// path, not from userspace.
func (i *Interrupt) Fire() {
	i.mu.Lock()
	i.pending = true
	i.mu.Unlock()
}

// Wait returns nil if the interrupt is pending, or NoInterrupt
// otherwise, mirroring Event.Poll's non-blocking contract.
func (i *Interrupt) Wait() *kerr.Error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pending {
		return nil
	}
	return kerr.New("kobj", kerr.NoInterrupt, "interrupt not pending")
}

// Ack clears the pending flag, re-arming the interrupt.
func (i *Interrupt) Ack() {
	i.mu.Lock()
	i.pending = false
	i.mu.Unlock()
}
