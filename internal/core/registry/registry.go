// Package registry resolves RefIDs to live world elements.
//
// Besides plain lookup it supports deferred resolution (a receiver asks to be
// told when an id arrives), a trash area for provisional deletions and the
// per-world dirty set drained by the replication layer.
package registry

import (
	"slices"
	"sync"

	"github.com/slotworld/datamodel/internal/core/fault"
	"github.com/slotworld/datamodel/internal/core/refid"
)

// Element is anything addressable by a RefID.
type Element interface {
	ReferenceID() refid.RefID
	IsDestroyed() bool
}

// Receiver is notified once when a requested element becomes available.
type Receiver interface {
	OnElementAvailable(e Element)
}

// ReceiverFunc adapts a function to Receiver. Being a func it cannot be
// compared, so it can be requested but not cancelled.
type ReceiverFunc func(e Element)

func (f ReceiverFunc) OnElementAvailable(e Element) { f(e) }

type trashEntry struct {
	tick    uint64
	element Element
}

// Registry maps RefIDs to live elements.
//
// Mutation of the live map belongs to the DataModel role. Requests may be
// fulfilled from either role, so the maps are guarded and receivers are
// always called with the lock released.
type Registry struct {
	mu       sync.Mutex
	objects  map[refid.RefID]Element
	pending  map[refid.RefID][]Receiver
	trash    map[refid.RefID]trashEntry
	dirty    []Element
	dirtySet map[refid.RefID]struct{}
}

func New() *Registry {
	return &Registry{
		objects:  make(map[refid.RefID]Element, 1024),
		pending:  make(map[refid.RefID][]Receiver),
		trash:    make(map[refid.RefID]trashEntry),
		dirtySet: make(map[refid.RefID]struct{}, 64),
	}
}

// Register binds e to its RefID and fulfills every pending request for it,
// in request order, before returning. A collision is a contract violation;
// the existing binding is left intact.
func (r *Registry) Register(e Element) {
	id := e.ReferenceID()
	if id.IsNull() {
		fault.Raise("register element", id, fault.ErrNullRef)
	}
	r.mu.Lock()
	if _, exists := r.objects[id]; exists {
		r.mu.Unlock()
		fault.Raise("register element", id, fault.ErrCollision)
	}
	r.objects[id] = e
	waiting := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()

	for _, recv := range waiting {
		recv.OnElementAvailable(e)
	}
}

// Unregister removes the binding for id, if any.
func (r *Registry) Unregister(id refid.RefID) {
	r.mu.Lock()
	delete(r.objects, id)
	r.mu.Unlock()
}

// Lookup returns the live element bound to id. A miss is not an error.
func (r *Registry) Lookup(id refid.RefID) (Element, bool) {
	r.mu.Lock()
	e, ok := r.objects[id]
	r.mu.Unlock()
	return e, ok
}

// Contains reports whether id is bound.
func (r *Registry) Contains(id refid.RefID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Len is the number of live elements.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

// Request asks for recv to be notified when id is registered. If it already
// is, recv is notified immediately. Requests for the null id are ignored.
func (r *Registry) Request(id refid.RefID, recv Receiver) {
	if id.IsNull() {
		return
	}
	r.mu.Lock()
	if e, ok := r.objects[id]; ok {
		r.mu.Unlock()
		recv.OnElementAvailable(e)
		return
	}
	r.pending[id] = append(r.pending[id], recv)
	r.mu.Unlock()
}

// CancelRequest withdraws the first pending request of recv for id.
// Returns false when there was nothing to cancel.
func (r *Registry) CancelRequest(id refid.RefID, recv Receiver) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.pending[id]
	for i, candidate := range list {
		if _, isFunc := candidate.(ReceiverFunc); isFunc {
			continue
		}
		if candidate == recv {
			list = slices.Delete(list, i, i+1)
			if len(list) == 0 {
				delete(r.pending, id)
			} else {
				r.pending[id] = list
			}
			return true
		}
	}
	return false
}

// PendingCount is the number of receivers waiting on id.
func (r *Registry) PendingCount(id refid.RefID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[id])
}

// MoveToTrash removes e from the live map and keeps it keyed by its id and
// the tick of the provisional deletion.
func (r *Registry) MoveToTrash(e Element, tick uint64) {
	id := e.ReferenceID()
	r.mu.Lock()
	if cur, ok := r.objects[id]; ok && cur == e {
		delete(r.objects, id)
	}
	r.trash[id] = trashEntry{tick: tick, element: e}
	r.mu.Unlock()
}

// RetrieveFromTrash rolls back a provisional deletion: if id was trashed at
// or before tick it leaves the trash and is bound again.
func (r *Registry) RetrieveFromTrash(tick uint64, id refid.RefID) (Element, bool) {
	r.mu.Lock()
	entry, ok := r.trash[id]
	if !ok || entry.tick > tick {
		r.mu.Unlock()
		return nil, false
	}
	delete(r.trash, id)
	r.mu.Unlock()

	r.Register(entry.element)
	return entry.element, true
}

// PeekTrash returns the element trashed under id at or before tick without
// taking it out of the trash.
func (r *Registry) PeekTrash(tick uint64, id refid.RefID) (Element, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.trash[id]
	if !ok || entry.tick > tick {
		return nil, false
	}
	return entry.element, true
}

// DeleteFromTrash permanently discards a trashed element.
func (r *Registry) DeleteFromTrash(id refid.RefID) {
	r.mu.Lock()
	delete(r.trash, id)
	r.mu.Unlock()
}

// PurgeTrash discards every entry trashed at or before confirmedTick and
// returns how many were dropped.
func (r *Registry) PurgeTrash(confirmedTick uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, entry := range r.trash {
		if entry.tick <= confirmedTick {
			delete(r.trash, id)
			n++
		}
	}
	return n
}

// TrashLen is the number of trashed elements.
func (r *Registry) TrashLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trash)
}

// MarkDirty queues e for the next replication drain. Duplicates collapse.
func (r *Registry) MarkDirty(e Element) {
	id := e.ReferenceID()
	r.mu.Lock()
	if _, ok := r.dirtySet[id]; !ok {
		r.dirtySet[id] = struct{}{}
		r.dirty = append(r.dirty, e)
	}
	r.mu.Unlock()
}

// DrainDirty returns the dirty elements in marking order and clears the set.
func (r *Registry) DrainDirty() []Element {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.dirty
	r.dirty = make([]Element, 0, len(out))
	clear(r.dirtySet)
	return out
}

// DirtyLen is the number of elements awaiting a drain.
func (r *Registry) DirtyLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dirty)
}

// Snapshot returns all live elements ordered by RefID.
func (r *Registry) Snapshot() []Element {
	r.mu.Lock()
	out := make([]Element, 0, len(r.objects))
	for _, e := range r.objects {
		out = append(out, e)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Element) int {
		switch x, y := a.ReferenceID(), b.ReferenceID(); {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	})
	return out
}
