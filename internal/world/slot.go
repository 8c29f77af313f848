package world

import (
	"slices"

	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/event"
	"github.com/slotworld/datamodel/internal/core/fault"
	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/math3d"
)

// SlotTypeName is the hook registry key for slots.
const SlotTypeName = "Slot"

// Slot is a hierarchical transform node. It owns its child slots and its
// components; the parent link is a reference member, so the hierarchy
// replicates like any other field.
type Slot struct {
	worker

	Name        field.Value[string]
	Parent      field.Ref[*Slot]
	Position    field.Value[math3d.Float3]
	Rotation    field.Value[math3d.FloatQ]
	Scale       field.Value[math3d.Float3]
	ActiveSelf  field.Value[bool]
	OrderOffset field.Value[int64]

	parent     *Slot
	children   []*Slot
	components []Component
	root       bool
	started    bool

	// cascade is what Destroy took down with the slot, for rollback.
	cascade slotCascade

	xf transformCache
}

func (s *Slot) Slot() *Slot      { return s }
func (s *Slot) TypeName() string { return SlotTypeName }
func (s *Slot) IsRoot() bool     { return s.root }

// Priority, IsStarted and the Run* methods let the scheduler drive slots
// through the Startup, Changes, Destruction and HookApply phases. Slots
// never join the update buckets.
func (s *Slot) Priority() int           { return 0 }
func (s *Slot) IsStarted() bool         { return s.started }
func (s *Slot) IsEnabled() bool         { return true }
func (s *Slot) StartOnly()              {}
func (s *Slot) RunUpdate()              {}
func (s *Slot) RunChanges(uint64)       { s.queueHook() }
func (s *Slot) RunHookApply()           { s.applyHook() }
func (s *Slot) ParentSlot() *Slot       { return s.parent }
func (s *Slot) ComponentCount() int     { return len(s.components) }
func (s *Slot) Components() []Component { return slices.Clone(s.components) }

// RunStart initializes the slot's hook once the slot is through Startup.
func (s *Slot) RunStart() {
	s.started = true
	if s.hook != nil {
		s.hook.Initialize()
	}
}

func (s *Slot) queueHook() {
	if s.hook != nil {
		s.world.sched.QueueHookUpdate(s)
	}
}

func (s *Slot) applyHook() {
	if s.hook != nil {
		s.hook.ApplyChanges()
	}
}

// MemberChanged queues the slot for the Changes phase.
func (s *Slot) MemberChanged(m field.Member) {
	s.noteDirty(m)
	if s.initializing || s.destroyed {
		return
	}
	s.world.sched.RegisterChanged(s)
}

func (s *Slot) init(w *World, parent *Slot, name string) {
	s.world = w
	s.initializing = true
	s.id = w.nextID()
	w.reg.Register(s)

	s.bind(s, &s.Name, "Name", 0)
	s.bind(s, &s.Parent, "Parent", 0)
	s.bind(s, &s.Position, "Position", 0)
	s.bind(s, &s.Rotation, "Rotation", 0)
	s.bind(s, &s.Scale, "Scale", 0)
	s.bind(s, &s.ActiveSelf, "ActiveSelf", 0)
	s.bind(s, &s.OrderOffset, "OrderOffset", 0)

	s.Rotation.Reset(math3d.IdentityQ)
	s.Scale.Reset(math3d.One3)
	s.ActiveSelf.Reset(true)
	s.Name.Reset(name)
	s.xf.dirty = dirtyAll

	invalidate := func() { s.invalidateLocal() }
	s.Position.OnChanged(func(*field.Value[math3d.Float3]) { invalidate() })
	s.Rotation.OnChanged(func(*field.Value[math3d.FloatQ]) { invalidate() })
	s.Scale.OnChanged(func(*field.Value[math3d.Float3]) { invalidate() })
	s.Parent.OnTargetChanged(func(*field.Ref[*Slot]) { s.syncParent() })

	if parent != nil {
		if err := s.Parent.SetTarget(parent); err != nil {
			fault.Raise("create slot", s.id, err)
		}
	}

	s.attachHook(s, SlotTypeName)
	w.sched.ScheduleStart(s)
	s.initializing = false
}

// IsActive is true when the slot and all its ancestors are active.
func (s *Slot) IsActive() bool {
	for n := s; n != nil; n = n.parent {
		if !n.ActiveSelf.Get() || n.destroyed {
			return false
		}
	}
	return true
}

// AddSlot creates a child slot. Fails with fault.ErrAllocationBlocked while
// allocation is blocked.
func (s *Slot) AddSlot(name string) (*Slot, error) {
	if err := s.world.canCreate(); err != nil {
		return nil, err
	}
	if s.IsLocal() && !s.world.alloc.Peek().IsLocal() {
		return nil, fault.New("add slot "+name, s.id, fault.ErrCrossDomainRef)
	}
	child := &Slot{}
	child.init(s.world, s, name)
	return child, nil
}

// IsDescendantOf reports whether s is strictly below ancestor.
func (s *Slot) IsDescendantOf(ancestor *Slot) bool {
	for n := s.parent; n != nil; n = n.parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// SetParent moves s under p. Moving a slot under itself or one of its
// descendants fails with fault.ErrCyclicParent. With keepGlobal the slot's
// global transform is preserved by solving for a new local transform.
func (s *Slot) SetParent(p *Slot, keepGlobal bool) error {
	const op = "set parent"
	if s.root {
		return fault.New(op, s.id, fault.ErrCyclicParent)
	}
	if p == nil {
		p = s.world.root
	}
	if p.world != s.world {
		return fault.New(op, s.id, fault.ErrForeignWorld)
	}
	if p == s || p.IsDescendantOf(s) {
		return fault.New(op, s.id, fault.ErrCyclicParent)
	}
	if p == s.parent {
		return nil
	}

	var gp, gs math3d.Float3
	var gr math3d.FloatQ
	if keepGlobal {
		gp, gr, gs = s.GlobalPosition(), s.GlobalRotation(), s.GlobalScale()
	}

	if err := s.Parent.SetTarget(p); err != nil {
		return err
	}
	if s.parent != p {
		// A hook on Parent may have redirected or suppressed the write.
		return nil
	}

	if keepGlobal {
		s.setGlobalTRS(gp, gr, gs)
	}
	return nil
}

// syncParent reconciles the structural edges with the Parent member. It
// runs for local writes and for values arriving from the network.
func (s *Slot) syncParent() {
	next, ok := s.Parent.Target()
	if !ok {
		next = nil
	}
	if next == s.parent {
		return
	}
	if next != nil && (next == s || next.IsDescendantOf(s)) {
		s.world.log.Warn("ignoring cyclic parent",
			zap.Stringer("slot", s.id),
			zap.Stringer("parent", next.id))
		return
	}

	old := s.parent
	if old != nil {
		old.removeChild(s)
	}
	s.parent = next
	if next != nil {
		next.children = append(next.children, s)
	}
	s.invalidateGlobal(true)

	var oldID, newID refid.RefID
	if old != nil {
		oldID = old.id
	}
	if next != nil {
		newID = next.id
	}
	event.Emit(s.world.bus, event.SlotParentChanged{Slot: s.id, OldParent: oldID, NewParent: newID})
}

func (s *Slot) removeChild(c *Slot) {
	if i := slices.Index(s.children, c); i >= 0 {
		s.children = slices.Delete(s.children, i, i+1)
	}
}

func (s *Slot) removeComponent(c *ComponentBase) {
	if i := slices.IndexFunc(s.components, func(x Component) bool { return x.componentBase() == c }); i >= 0 {
		s.components = slices.Delete(s.components, i, i+1)
	}
}

// Children returns the child slots ordered by OrderOffset, then by
// insertion.
func (s *Slot) Children() []*Slot {
	out := slices.Clone(s.children)
	slices.SortStableFunc(out, func(a, b *Slot) int {
		x, y := a.OrderOffset.Get(), b.OrderOffset.Get()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	})
	return out
}

func (s *Slot) ChildCount() int { return len(s.children) }

// ChildIndex is the position of s among its siblings in Children order, -1
// for the root.
func (s *Slot) ChildIndex() int {
	if s.parent == nil {
		return -1
	}
	return slices.Index(s.parent.Children(), s)
}

// FindChild searches the subtree below s depth-first for a slot named name.
func (s *Slot) FindChild(name string) *Slot {
	for _, c := range s.Children() {
		if c.Name.Get() == name {
			return c
		}
		if found := c.FindChild(name); found != nil {
			return found
		}
	}
	return nil
}

// AttachComponent instantiates a registered component type on s.
func (s *Slot) AttachComponent(typeName string) (Component, error) {
	d, ok := s.world.types.Lookup(typeName)
	if !ok {
		return nil, &UnknownTypeError{Name: typeName}
	}
	return s.attach(d)
}

func (s *Slot) attach(d *Descriptor) (Component, error) {
	if err := s.world.canCreate(); err != nil {
		return nil, err
	}
	if s.destroyed {
		return nil, fault.New("attach "+d.name, s.id, errSlotDestroyed)
	}
	c := d.factory()
	base := c.componentBase()
	base.init(s.world, s, c, d)
	s.components = append(s.components, c)
	s.world.sched.ScheduleStart(base)
	event.Emit(s.world.bus, event.ComponentAttached{Slot: s.id, Component: base.id, Type: d.name})
	return c, nil
}

// Destroy destroys the subtree below s, then s itself. Children and
// components are queued for teardown before the slot, so they leave the
// registry first.
func (s *Slot) Destroy() {
	if s.destroyed {
		return
	}
	if s.root && !s.world.destroying {
		s.world.log.Warn("refusing to destroy the root slot")
		return
	}
	s.destroyed = true
	s.cascade = slotCascade{
		children:   slices.Clone(s.children),
		components: slices.Clone(s.components),
	}
	for _, c := range s.cascade.children {
		c.Destroy()
	}
	for _, c := range s.cascade.components {
		c.componentBase().Destroy()
	}
	if s.parent != nil {
		s.parent.removeChild(s)
		s.parent = nil
	}
	event.Emit(s.world.bus, event.SlotDestroyed{Slot: s.id})
	s.world.sched.ScheduleDestroy(s)
}

func (s *Slot) RunDestroy() {
	defer s.teardown(s)
	s.releaseHook()
}
