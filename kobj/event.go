package kobj

import (
	"sync"

	"nucleus/kerr"
)

// Event is a one-bit, level-triggered signal a task can wait on (§3).
// Signal is idempotent: signaling an already-signaled Event is not an
// error. Wait is exposed as a non-blocking poll; the scheduler (package
// task) is what actually suspends a task pending an Event, so this
// package stays free of scheduling concerns.
type Event struct {
	mu       sync.Mutex
	signaled bool
}

func (*Event) Kind() Kind { return KindEvent }

// NewEvent returns an unsignaled Event.
func NewEvent() *Event { return &Event{} }

// Signal marks e signaled.
func (e *Event) Signal() {
	e.mu.Lock()
	e.signaled = true
	e.mu.Unlock()
}

// Clear resets e back to unsignaled.
func (e *Event) Clear() {
	e.mu.Lock()
	e.signaled = false
	e.mu.Unlock()
}

// Poll reports whether e is currently signaled, returning NoEvent as a
// typed outcome (rather than a bare bool) so syscall dispatch can encode
// it directly into the status word (§7).
func (e *Event) Poll() *kerr.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.signaled {
		return nil
	}
	return kerr.New("kobj", kerr.NoEvent, "event not signaled")
}
