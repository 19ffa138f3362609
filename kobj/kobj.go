// Package kobj implements the kernel object and capability layer (C5,
// §3, §4.4): a generation-checked object registry and per-task handle
// tables carrying bitwise rights. Grounded on biscuit's resource
// reference-counting (biscuit/src/res/res.go) generalized from
// per-subsystem ad hoc tables into one typed registry, and
// original_source's kernel/src/object.rs KernelObjectId{index,generation}
// scheme, which is the thing biscuit's raw fd-table integers should have
// been.
package kobj

import (
	"sync"

	"nucleus/kerr"
	"nucleus/spinlock"
)

// Kind identifies the concrete type of a kernel object (§3).
type Kind int

const (
	KindMemoryObject Kind = iota
	KindAddressSpace
	KindTask
	KindEvent
	KindInterrupt
	KindChannel
	KindMailbox
)

func (k Kind) String() string {
	switch k {
	case KindMemoryObject:
		return "memory_object"
	case KindAddressSpace:
		return "address_space"
	case KindTask:
		return "task"
	case KindEvent:
		return "event"
	case KindInterrupt:
		return "interrupt"
	case KindChannel:
		return "channel"
	case KindMailbox:
		return "mailbox"
	default:
		return "unknown"
	}
}

// Object is satisfied by every kernel object kind. AddressSpace and Task
// live in package nucleus/task and implement this interface there to
// avoid an import cycle with kobj's handle tables.
type Object interface {
	Kind() Kind
}

// Id names one live object: an index into the registry's slot table plus
// a generation counter that increments every time the slot is reused, so
// a handle captured before a slot was freed and reissued resolves to
// StaleHandle instead of aliasing the new occupant (§3, §8 scenario 3).
type Id struct {
	index      uint32
	generation uint32
}

// Rights is a bitmask of the operations a handle may perform on the
// object it names (§3).
type Rights uint32

const (
	RightModify Rights = 1 << iota
	RightDuplicate
	RightTransfer
	RightMap
	RightSend
	RightReceive
)

// Has reports whether r contains every bit set in want.
func (r Rights) Has(want Rights) bool { return r&want == want }

type slot struct {
	object     Object
	generation uint32
	refCount   int
	occupied   bool
}

// Registry is the kernel-wide table of live kernel objects (§4.4
// "Object registry"). The zero value is an empty registry ready for
// use; NewRegistry returns one.
type Registry struct {
	lock  spinlock.T
	slots []slot
	free  []uint32
}

// NewRegistry returns an empty object registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Alloc inserts obj and returns its Id with an initial reference count
// of one.
func (r *Registry) Alloc(obj Object) Id {
	r.lock.Lock()
	defer r.lock.Unlock()

	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		s := &r.slots[idx]
		s.object = obj
		s.refCount = 1
		s.occupied = true
		return Id{index: idx, generation: s.generation}
	}

	idx := uint32(len(r.slots))
	r.slots = append(r.slots, slot{object: obj, refCount: 1, occupied: true})
	return Id{index: idx, generation: 0}
}

// Resolve returns the object named by id, or StaleHandle if the slot has
// since been freed and reused, or InvalidHandle if the index is out of
// range.
func (r *Registry) Resolve(id Id) (Object, *kerr.Error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.resolveLocked(id)
}

func (r *Registry) resolveLocked(id Id) (Object, *kerr.Error) {
	if int(id.index) >= len(r.slots) {
		return nil, kerr.New("kobj", kerr.InvalidHandle, "index out of range")
	}
	s := &r.slots[id.index]
	if !s.occupied || s.generation != id.generation {
		return nil, kerr.New("kobj", kerr.StaleHandle, "generation mismatch")
	}
	return s.object, nil
}

// Ref increments id's reference count (used when a handle referring to
// it is duplicated into another task).
func (r *Registry) Ref(id Id) *kerr.Error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, err := r.resolveLocked(id); err != nil {
		return err
	}
	r.slots[id.index].refCount++
	return nil
}

// Drop decrements id's reference count, freeing the slot (bumping its
// generation so any surviving copy of id becomes stale) once it reaches
// zero. Returns ObjectDoesNotExist if id does not currently resolve.
func (r *Registry) Drop(id Id) *kerr.Error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, err := r.resolveLocked(id); err != nil {
		return kerr.New("kobj", kerr.ObjectDoesNotExist, "drop of unresolved id")
	}
	s := &r.slots[id.index]
	s.refCount--
	if s.refCount > 0 {
		return nil
	}
	s.occupied = false
	s.object = nil
	s.generation++
	r.free = append(r.free, id.index)
	return nil
}

// Handle is what a task's handle table hands out: an Id plus the rights
// the handle carries. Two handles can name the same Id with different
// rights.
type Handle uint32

type handleEntry struct {
	id     Id
	rights Rights
}

// HandleTable is one task's private view onto the kernel object
// registry (§4.4 "Handle table"). Handle values are local to the table
// that issued them and meaningless outside it.
type HandleTable struct {
	mu      sync.Mutex
	reg     *Registry
	entries map[Handle]handleEntry
	next    Handle
}

// NewHandleTable returns an empty handle table backed by reg.
func NewHandleTable(reg *Registry) *HandleTable {
	return &HandleTable{reg: reg, entries: make(map[Handle]handleEntry), next: 1}
}

// Insert adds a handle naming id with rights, taking a reference on id.
func (t *HandleTable) Insert(id Id, rights Rights) (Handle, *kerr.Error) {
	if err := t.reg.Ref(id); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.next
	t.next++
	t.entries[h] = handleEntry{id: id, rights: rights}
	return h, nil
}

// Resolve returns the object named by h if it carries every bit of want,
// or InsufficientRights if it does not, or InvalidHandle if h is not in
// this table.
func (t *HandleTable) Resolve(h Handle, want Rights) (Object, *kerr.Error) {
	t.mu.Lock()
	e, ok := t.entries[h]
	t.mu.Unlock()
	if !ok {
		return nil, kerr.New("kobj", kerr.InvalidHandle, "handle not present in table")
	}
	if !e.rights.Has(want) {
		return nil, kerr.New("kobj", kerr.InsufficientRights, "handle lacks required rights")
	}
	return t.reg.Resolve(e.id)
}

// ResolveID returns both the Id and the object h names, for callers that
// need to re-insert the same object elsewhere (a service registry
// sharing one registered endpoint across many tasks' handle tables)
// without resolving the handle twice.
func (t *HandleTable) ResolveID(h Handle, want Rights) (Id, Object, *kerr.Error) {
	t.mu.Lock()
	e, ok := t.entries[h]
	t.mu.Unlock()
	if !ok {
		return Id{}, nil, kerr.New("kobj", kerr.InvalidHandle, "handle not present in table")
	}
	if !e.rights.Has(want) {
		return Id{}, nil, kerr.New("kobj", kerr.InsufficientRights, "handle lacks required rights")
	}
	obj, err := t.reg.Resolve(e.id)
	if err != nil {
		return Id{}, nil, err
	}
	return e.id, obj, nil
}

// Duplicate creates a new handle in the same table naming the same
// object. RightDuplicate is not required here: the owning task may
// always duplicate its own handles (§9 open question, resolved in
// favor of the owner). Nothing in this package checks RightDuplicate;
// Transfer to another task's table is gated by RightTransfer. The new
// handle's rights are the intersection of the
// source handle's rights and requested, so duplication can only
// narrow, never widen, access.
func (t *HandleTable) Duplicate(h Handle, requested Rights) (Handle, *kerr.Error) {
	t.mu.Lock()
	e, ok := t.entries[h]
	t.mu.Unlock()
	if !ok {
		return 0, kerr.New("kobj", kerr.InvalidHandle, "handle not present in table")
	}
	return t.Insert(e.id, e.rights&requested)
}

// Drop removes h from the table and releases its reference on the
// underlying object.
func (t *HandleTable) Drop(h Handle) *kerr.Error {
	t.mu.Lock()
	e, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	t.mu.Unlock()
	if !ok {
		return kerr.New("kobj", kerr.InvalidHandle, "handle not present in table")
	}
	return t.reg.Drop(e.id)
}

// Transfer removes h from this table and inserts an equivalent handle
// into dst, requiring h to carry RightTransfer. The object's reference
// count is unchanged (one reference moves, none is added or dropped).
func (t *HandleTable) Transfer(h Handle, dst *HandleTable) (Handle, *kerr.Error) {
	t.mu.Lock()
	e, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	t.mu.Unlock()
	if !ok {
		return 0, kerr.New("kobj", kerr.InvalidHandle, "handle not present in table")
	}
	if !e.rights.Has(RightTransfer) {
		t.mu.Lock()
		t.entries[h] = e
		t.mu.Unlock()
		return 0, kerr.New("kobj", kerr.InsufficientRights, "handle lacks transfer right")
	}

	dst.mu.Lock()
	defer dst.mu.Unlock()
	nh := dst.next
	dst.next++
	dst.entries[nh] = e
	return nh, nil
}
