package world

import (
	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/event"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/core/registry"
)

type slotCascade struct {
	children   []*Slot
	components []Component
}

// RestoreFromTrash rolls back a provisional deletion on a client. The slot
// or component trashed under id at or before tick is registered again with
// its members, revived and re-attached to its parent. A slot brings back the
// children and components that were destroyed with it. Restored components
// start again in the next Startup phase.
//
// Fails when id is not in the trash, is a bare member, or its parent is no
// longer alive. Runs as DataModel.
func (w *World) RestoreFromTrash(tick uint64, id refid.RefID) (registry.Element, bool) {
	e, ok := w.reg.PeekTrash(tick, id)
	if !ok {
		return nil, false
	}
	switch el := e.(type) {
	case *Slot:
		if !w.aliveParent(el.Parent.TargetID()) {
			return nil, false
		}
		el.restore(tick)
	case Component:
		base := el.componentBase()
		if base.slot == nil || base.slot.destroyed {
			return nil, false
		}
		base.restore(tick)
	default:
		return nil, false
	}
	w.log.Debug("restored from trash", zap.Stringer("ref", id), zap.Uint64("tick", tick))
	return e, true
}

func (w *World) aliveParent(id refid.RefID) bool {
	e, ok := w.reg.Lookup(id)
	return ok && !e.IsDestroyed()
}

// revive clears the destroyed marks and takes the members, then self, back
// out of the trash. Members revive first so references resolve against a
// live element.
func (w *worker) revive(tick uint64, self registry.Element) {
	w.destroyed = false
	for _, m := range w.members {
		m.Revive()
	}
	for _, m := range w.members {
		w.world.reg.RetrieveFromTrash(tick, m.ReferenceID())
	}
	w.world.reg.RetrieveFromTrash(tick, self.ReferenceID())
}

func (s *Slot) restore(tick uint64) {
	// Reviving Parent re-resolves it and links s under its parent again.
	s.revive(tick, s)
	s.xf.dirty = dirtyAll
	s.started = false
	s.attachHook(s, SlotTypeName)
	s.world.sched.ScheduleStart(s)
	event.Emit(s.world.bus, event.SlotRestored{Slot: s.id})

	cascade := s.cascade
	s.cascade = slotCascade{}
	for _, c := range cascade.children {
		if _, ok := s.world.reg.PeekTrash(tick, c.id); ok {
			c.restore(tick)
		}
	}
	for _, c := range cascade.components {
		base := c.componentBase()
		if _, ok := s.world.reg.PeekTrash(tick, base.id); ok {
			base.restore(tick)
		}
	}
}

func (c *ComponentBase) restore(tick uint64) {
	c.revive(tick, c.self)
	c.started = false
	c.slot.components = append(c.slot.components, c.self)
	c.attachHook(c.self, c.desc.name)
	c.world.sched.ScheduleStart(c)
	event.Emit(c.world.bus, event.ComponentAttached{Slot: c.slot.id, Component: c.id, Type: c.desc.name})
}
