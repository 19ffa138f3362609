package kobj

import (
	"sync"

	"nucleus/kerr"
)

// channelInner is the state two ChannelEndpoints share (§3 "bidirectional
// message queue with both endpoints as separate handles", §9 "Cyclic
// ownership": two independent objects, each weak-referencing the peer,
// over one shared inner state). toA holds messages B has sent that A has
// not yet received; toB is the reverse direction. Neither endpoint owns
// the other or this struct; both are kept alive independently by the
// object registry's own reference counting on each endpoint's Id.
type channelInner struct {
	mu     sync.Mutex
	toA    [][]byte
	toB    [][]byte
	aAlive bool
	bAlive bool
}

// ChannelEndpoint is one side of a Channel. Closing an endpoint flips
// only that endpoint's own alive flag; the peer observes this as
// PeerClosed once its own queue of already-sent messages drains (§5
// "Channels whose peer has exited surface PeerClosed on next
// send/receive").
type ChannelEndpoint struct {
	inner *channelInner
	isA   bool
}

func (*ChannelEndpoint) Kind() Kind { return KindChannel }

// NewChannelPair returns the two connected, open endpoints of a fresh
// Channel.
func NewChannelPair() (a, b *ChannelEndpoint) {
	inner := &channelInner{aAlive: true, bAlive: true}
	return &ChannelEndpoint{inner: inner, isA: true}, &ChannelEndpoint{inner: inner, isA: false}
}

// Send enqueues msg for the peer's Receive to pop. msg is copied; the
// caller's slice may be reused afterward.
func (e *ChannelEndpoint) Send(msg []byte) *kerr.Error {
	in := e.inner
	in.mu.Lock()
	defer in.mu.Unlock()
	if !e.peerAliveLocked() {
		return kerr.New("kobj", kerr.PeerClosed, "send to closed peer")
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	if e.isA {
		in.toB = append(in.toB, cp)
	} else {
		in.toA = append(in.toA, cp)
	}
	return nil
}

// Receive pops the oldest message the peer sent to this endpoint. If
// nothing is queued it returns NoMessage while the peer is still alive,
// or PeerClosed once the peer has closed its end with nothing left to
// drain.
func (e *ChannelEndpoint) Receive() ([]byte, *kerr.Error) {
	in := e.inner
	in.mu.Lock()
	defer in.mu.Unlock()
	queue := &in.toA
	if !e.isA {
		queue = &in.toB
	}
	if len(*queue) == 0 {
		if !e.peerAliveLocked() {
			return nil, kerr.New("kobj", kerr.PeerClosed, "receive on closed, empty channel")
		}
		return nil, kerr.New("kobj", kerr.NoMessage, "no message queued")
	}
	msg := (*queue)[0]
	*queue = (*queue)[1:]
	return msg, nil
}

// Close marks this endpoint permanently dead. Closing an already-closed
// endpoint is a no-op; it never affects the peer's own alive flag or
// queued messages the peer has yet to drain.
func (e *ChannelEndpoint) Close() {
	in := e.inner
	in.mu.Lock()
	if e.isA {
		in.aAlive = false
	} else {
		in.bAlive = false
	}
	in.mu.Unlock()
}

func (e *ChannelEndpoint) peerAliveLocked() bool {
	if e.isA {
		return e.inner.bAlive
	}
	return e.inner.aAlive
}
