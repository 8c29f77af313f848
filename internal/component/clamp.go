package component

import (
	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/math3d"
	"github.com/slotworld/datamodel/internal/world"
)

// Clamp keeps its slot's Position inside the box [Min, Max] by hooking the
// field: every write is redirected here and stored clamped.
type Clamp struct {
	world.ComponentBase
	Min field.Value[math3d.Float3]
	Max field.Value[math3d.Float3]

	hook *field.Link[math3d.Float3]
}

func clampType() *world.Descriptor {
	b := world.Describe("Clamp", func() *Clamp { return &Clamp{} })
	world.Field(b, "Min", func(c *Clamp) *field.Value[math3d.Float3] { return &c.Min }, math3d.Float3{X: -1, Y: -1, Z: -1})
	world.Field(b, "Max", func(c *Clamp) *field.Value[math3d.Float3] { return &c.Max }, math3d.Float3{X: 1, Y: 1, Z: 1})
	return b.Build()
}

func (c *Clamp) OnStart() {
	c.hook = field.Hook(c.ReferenceID(), c.clamp)
	c.Slot().Position.Link(c.hook)
	c.reapply()
}

// OnChanges re-clamps the current position against new bounds.
func (c *Clamp) OnChanges() {
	if c.hook != nil && c.hook.IsActive() {
		c.reapply()
	}
}

func (c *Clamp) OnDestroy() {
	if c.hook != nil {
		c.hook.Release()
	}
}

func (c *Clamp) reapply() {
	p := &c.Slot().Position
	p.Set(p.Get())
}

func (c *Clamp) clamp(f *field.Value[math3d.Float3], v math3d.Float3) {
	lo, hi := c.Min.Get(), c.Max.Get()
	f.Set(math3d.Float3{
		X: clamp1(v.X, lo.X, hi.X),
		Y: clamp1(v.Y, lo.Y, hi.Y),
		Z: clamp1(v.Z, lo.Z, hi.Z),
	})
}

func clamp1(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
