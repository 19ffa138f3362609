package stats

import (
	"sync"
)

// Registry tracks one Accnt per task id, matching biscuit's pattern of
// a single per-process Accnt_t kept alive for the process's lifetime
// (biscuit/src/proc uses one Accnt_t per Proc_t).
type Registry struct {
	mu    sync.Mutex
	names map[uint64]string
	accts map[uint64]*Accnt
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[uint64]string),
		accts: make(map[uint64]*Accnt),
	}
}

// For returns the Accnt for taskID, creating it (and recording name,
// used as the pprof Function name) on first use.
func (r *Registry) For(taskID uint64, name string) *Accnt {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accts[taskID]
	if !ok {
		a = &Accnt{}
		r.accts[taskID] = a
		r.names[taskID] = name
	}
	return a
}

// Forget drops the accounting record for a task that has exited.
func (r *Registry) Forget(taskID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accts, taskID)
	delete(r.names, taskID)
}

// taskSnapshot is one task's accounting data at the moment Snapshot was
// taken.
type taskSnapshot struct {
	id         uint64
	name       string
	accnt      *Accnt
	userns     int64
	sysns      int64
	pageFaults int64
}

// snapshotAll returns every tracked task's current counters, ordered by
// ascending task id so repeated Snapshot calls produce a stable profile.
func (r *Registry) snapshotAll() []taskSnapshot {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.accts))
	for id := range r.accts {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	out := make([]taskSnapshot, 0, len(ids))
	for _, id := range ids {
		a := r.accts[id]
		name := r.names[id]
		out = append(out, taskSnapshot{id: id, name: name, accnt: a})
	}
	r.mu.Unlock()

	for i := range out {
		out[i].userns, out[i].sysns, out[i].pageFaults = out[i].accnt.Snapshot()
		out[i].accnt = nil
	}
	return out
}
