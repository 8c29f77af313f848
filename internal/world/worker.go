package world

import (
	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/core/registry"
)

// worker is the state shared by slots and components: identity, owning
// world, sync members and the optional hook. Back references (world, owner)
// are non-owning.
type worker struct {
	id           refid.RefID
	world        *World
	members      []field.Member
	byName       map[string]field.Member
	initializing bool
	destroyed    bool
	hook         Hook
}

func (w *worker) ReferenceID() refid.RefID     { return w.id }
func (w *worker) World() *World                { return w.world }
func (w *worker) Registry() *registry.Registry { return w.world.reg }
func (w *worker) IsInitializing() bool         { return w.initializing }
func (w *worker) IsDestroyed() bool            { return w.destroyed }
func (w *worker) Hook() Hook                   { return w.hook }
func (w *worker) IsLocal() bool                { return w.id.IsLocal() }

// Members returns the sync members in allocation order.
func (w *worker) Members() []field.Member {
	out := make([]field.Member, len(w.members))
	copy(out, w.members)
	return out
}

// Member finds a sync member by name.
func (w *worker) Member(name string) (field.Member, bool) {
	m, ok := w.byName[name]
	return m, ok
}

// bind allocates an id for m, initializes it for owner and registers it.
func (w *worker) bind(owner field.Owner, m field.Member, name string, flags field.Flags) {
	m.Initialize(owner, w.world.nextID(), name, flags)
	w.world.reg.Register(m)
	w.members = append(w.members, m)
	if w.byName == nil {
		w.byName = make(map[string]field.Member, 8)
	}
	w.byName[name] = m
}

// noteDirty forwards a dirty replicated member to the world's dirty set.
func (w *worker) noteDirty(m field.Member) {
	if m.IsDirty() && !m.ReferenceID().IsLocal() {
		w.world.reg.MarkDirty(m)
	}
}

func (w *worker) attachHook(owner HookOwner, typeName string) {
	w.hook = w.world.hooks.New(typeName)
	if w.hook != nil {
		w.hook.AssignOwner(owner)
	}
}

func (w *worker) releaseHook() {
	if w.hook == nil {
		return
	}
	w.hook.Destroy(w.world.destroying)
	w.hook.RemoveOwner()
	w.hook = nil
}

// teardown disposes members and takes them and the element out of the
// registry.
func (w *worker) teardown(self registry.Element) {
	for _, m := range w.members {
		m.Dispose()
		w.world.retire(m)
	}
	w.world.retire(self)
}
