package world

import (
	"github.com/slotworld/datamodel/internal/core/event"
	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/registry"
)

// Component is the lifecycle capability set of a behaviour attached to a
// slot. Concrete types embed ComponentBase and override the callbacks they
// need.
type Component interface {
	registry.Element
	componentBase() *ComponentBase
	TypeName() string
	Slot() *Slot
	Member(name string) (field.Member, bool)
	Destroy()

	// OnAwake runs once at attach time, while the component is still
	// initializing.
	OnAwake()
	// OnStart runs in the first Startup phase after attach.
	OnStart()
	// OnUpdate runs every Update phase while enabled.
	OnUpdate()
	// OnChanges runs in the Changes phase after any member changed.
	OnChanges()
	// OnDestroy runs in the Destruction phase.
	OnDestroy()
}

// ComponentBase carries the shared component state and the lifecycle driver
// the scheduler calls into.
type ComponentBase struct {
	worker

	Enabled     field.Value[bool]
	UpdateOrder field.Value[int32]

	self       Component
	slot       *Slot
	desc       *Descriptor
	started    bool
	prio       int
	lastChange uint64
}

func (c *ComponentBase) componentBase() *ComponentBase { return c }

func (c *ComponentBase) OnAwake()   {}
func (c *ComponentBase) OnStart()   {}
func (c *ComponentBase) OnUpdate()  {}
func (c *ComponentBase) OnChanges() {}
func (c *ComponentBase) OnDestroy() {}

func (c *ComponentBase) Slot() *Slot             { return c.slot }
func (c *ComponentBase) TypeName() string        { return c.desc.name }
func (c *ComponentBase) Self() Component         { return c.self }
func (c *ComponentBase) IsStarted() bool         { return c.started }
func (c *ComponentBase) Priority() int           { return c.prio }
func (c *ComponentBase) LastChangeIndex() uint64 { return c.lastChange }

// IsEnabled is true when the component is enabled and its slot is active in
// the hierarchy.
func (c *ComponentBase) IsEnabled() bool {
	return c.Enabled.Get() && c.slot != nil && c.slot.IsActive()
}

// MemberChanged queues the component for the Changes phase.
func (c *ComponentBase) MemberChanged(m field.Member) {
	c.noteDirty(m)
	if c.initializing || c.destroyed {
		return
	}
	c.world.sched.RegisterChanged(c)
}

// Destroy marks the component destroyed, detaches it from its slot and
// queues its teardown.
func (c *ComponentBase) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	if c.slot != nil {
		c.slot.removeComponent(c)
		event.Emit(c.world.bus, event.ComponentRemoved{
			Slot:      c.slot.id,
			Component: c.id,
			Type:      c.desc.name,
		})
	}
	c.world.sched.ScheduleDestroy(c)
}

func (c *ComponentBase) RunStart() {
	c.started = true
	c.self.OnStart()
	if c.hook != nil {
		c.hook.Initialize()
	}
}

func (c *ComponentBase) RunUpdate() { c.self.OnUpdate() }

func (c *ComponentBase) RunChanges(changeIndex uint64) {
	c.lastChange = changeIndex
	c.self.OnChanges()
	if c.hook != nil {
		c.world.sched.QueueHookUpdate(c)
	}
}

func (c *ComponentBase) RunDestroy() {
	defer c.teardown(c.self)
	defer c.releaseHook()
	c.self.OnDestroy()
}

func (c *ComponentBase) RunHookApply() {
	if c.hook != nil {
		c.hook.ApplyChanges()
	}
}

// init binds the component into slot: allocates ids for the component and
// its members in descriptor order, registers them, applies defaults and
// runs OnAwake.
func (c *ComponentBase) init(w *World, slot *Slot, self Component, d *Descriptor) {
	c.world = w
	c.slot = slot
	c.self = self
	c.desc = d
	c.initializing = true
	c.id = w.nextID()
	w.reg.Register(self)

	for _, md := range d.members {
		if md.prepare != nil {
			md.prepare(self)
		}
		c.bind(c, md.get(self), md.name, md.flags)
		if md.defaults != nil {
			md.defaults(self)
		}
	}
	c.prio = int(c.UpdateOrder.Get())
	c.UpdateOrder.OnChanged(func(v *field.Value[int32]) {
		old := c.prio
		c.prio = int(v.Get())
		if old != c.prio && c.started && !c.destroyed {
			c.world.sched.Reprioritize(c, old)
		}
	})

	c.attachHook(self, d.name)
	w.guardAwake(c.id, self.OnAwake)
	c.initializing = false
}
