package kobj

import (
	"sync"

	"nucleus/kerr"
)

// Mailbox is an unbounded FIFO queue of short mails the kernel delivers
// to a task, mirroring original_source's kernel/src/mailbox.rs Mailbox
// exactly: push_back on Send, pop_front on Receive, no capacity limit
// and no peer to close it (it is a one-sided kernel-to-task queue, not
// a two-endpoint object like Channel).
type Mailbox struct {
	mu    sync.Mutex
	queue [][]byte
}

func (*Mailbox) Kind() Kind { return KindMailbox }

// NewMailbox returns an empty Mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Send enqueues msg, copying it.
func (m *Mailbox) Send(msg []byte) *kerr.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(msg))
	copy(cp, msg)
	m.queue = append(m.queue, cp)
	return nil
}

// Receive pops the oldest message in strict send order, or NoMessage if
// the queue is empty.
func (m *Mailbox) Receive() ([]byte, *kerr.Error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, kerr.New("kobj", kerr.NoMessage, "no message queued")
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, nil
}

// Len reports the number of messages currently queued.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
