package world

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotworld/datamodel/internal/core/fault"
	"github.com/slotworld/datamodel/internal/core/field"
)

const dt = 16 * time.Millisecond

type mover struct {
	ComponentBase
	Speed  field.Value[float32]
	Target field.Ref[*Slot]

	log   *[]string
	panic bool
}

func (m *mover) note(what string) { *m.log = append(*m.log, what+" "+m.Slot().Name.Get()) }

func (m *mover) OnAwake()   { m.note("awake") }
func (m *mover) OnStart()   { m.note("start") }
func (m *mover) OnChanges() { m.note("changes") }
func (m *mover) OnDestroy() { m.note("destroy") }

func (m *mover) OnUpdate() {
	m.note("update")
	if m.panic {
		panic("mover exploded")
	}
	m.Speed.Set(m.Speed.Get() + 1)
}

func moverType(log *[]string) *Descriptor {
	b := Describe("mover", func() *mover { return &mover{log: log} })
	Field(b, "Speed", func(m *mover) *field.Value[float32] { return &m.Speed }, 1)
	Reference(b, "Target", func(m *mover) *field.Ref[*Slot] { return &m.Target })
	return b.Build()
}

type idle struct {
	ComponentBase
}

var idleType = Describe("idle", func() *idle { return &idle{} }).Build()

type recHook struct {
	log   *[]string
	owner HookOwner
}

func (h *recHook) AssignOwner(o HookOwner) {
	h.owner = o
	*h.log = append(*h.log, "hook assign "+o.TypeName())
}
func (h *recHook) RemoveOwner()  { *h.log = append(*h.log, "hook remove") }
func (h *recHook) Initialize()   { *h.log = append(*h.log, "hook init") }
func (h *recHook) ApplyChanges() { *h.log = append(*h.log, "hook apply") }
func (h *recHook) Destroy(all bool) {
	if all {
		*h.log = append(*h.log, "hook destroy world")
		return
	}
	*h.log = append(*h.log, "hook destroy")
}

func newTestWorld(t *testing.T, log *[]string, opts ...Option) *World {
	t.Helper()
	types := NewTypeRegistry()
	types.MustRegister(moverType(log), idleType)
	return New(append([]Option{WithTypes(types)}, opts...)...)
}

func TestComponent_Lifecycle(t *testing.T) {
	var log []string
	hooks := NewHookRegistry()
	hooks.Register("mover", func() Hook { return &recHook{log: &log} })
	w := newTestWorld(t, &log, WithHooks(hooks))

	s, err := w.AddSlot("S")
	require.NoError(t, err)
	m, err := Attach[*mover](s)
	require.NoError(t, err)
	assert.Equal(t, []string{"hook assign mover", "awake S"}, log)
	assert.Equal(t, float32(1), m.Speed.Get(), "descriptor default")
	assert.True(t, m.Enabled.Get())
	assert.False(t, m.IsStarted())

	log = nil
	w.RunTick(dt)
	assert.Equal(t, []string{"start S", "hook init", "update S", "changes S", "hook apply"}, log)
	assert.Equal(t, float32(2), m.Speed.Get())
	assert.NotZero(t, m.LastChangeIndex())

	log = nil
	id := m.ReferenceID()
	speedID := m.Speed.ReferenceID()
	m.Destroy()
	assert.True(t, m.IsDestroyed())
	assert.Zero(t, s.ComponentCount())
	w.RunTick(dt)
	assert.Equal(t, []string{"destroy S", "hook destroy", "hook remove"}, log)
	assert.False(t, w.Registry().Contains(id))
	assert.False(t, w.Registry().Contains(speedID))
	assert.True(t, m.Speed.IsDestroyed())
}

func TestComponent_Headless(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	s, err := w.AddSlot("S")
	require.NoError(t, err)
	c, err := s.AttachComponent("idle")
	require.NoError(t, err)
	assert.Nil(t, c.componentBase().Hook())
	assert.NotPanics(t, func() { w.RunTick(dt) })
	assert.True(t, c.componentBase().IsStarted())

	found, ok := GetComponent[*idle](s)
	require.True(t, ok)
	assert.Same(t, c, Component(found))
}

func TestComponent_MembersAllocatedInDescriptorOrder(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	s, _ := w.AddSlot("S")
	m, err := Attach[*mover](s)
	require.NoError(t, err)

	base := m.ReferenceID().Sequence()
	members := m.Members()
	require.Len(t, members, 4)
	for i, name := range []string{"Enabled", "UpdateOrder", "Speed", "Target"} {
		assert.Equal(t, name, members[i].Name())
		assert.Equal(t, base+uint64(i)+1, members[i].ReferenceID().Sequence())
	}
	got, ok := m.Member("Speed")
	require.True(t, ok)
	assert.Same(t, &m.Speed, got)
}

func TestComponent_UpdateOrderDeterminism(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	names := []string{"a", "b", "c", "d"}
	movers := make(map[string]*mover)
	for i, n := range names {
		s, err := w.AddSlot(n)
		require.NoError(t, err)
		m, err := Attach[*mover](s)
		require.NoError(t, err)
		m.UpdateOrder.Set(int32(len(names) - i))
		movers[n] = m
	}
	w.RunTick(dt)

	updates := func() []string {
		var out []string
		for _, e := range log {
			if len(e) > 7 && e[:7] == "update " {
				out = append(out, e[7:])
			}
		}
		return out
	}

	log = nil
	w.RunTick(dt)
	first := updates()
	assert.Equal(t, []string{"d", "c", "b", "a"}, first)

	log = nil
	w.RunTick(dt)
	assert.Equal(t, first, updates(), "same order tick over tick")

	movers["a"].UpdateOrder.Set(-10)
	log = nil
	w.RunTick(dt)
	assert.Equal(t, []string{"a", "d", "c", "b"}, updates())
}

func TestComponent_DisabledOrInactiveSkipsUpdate(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	s, _ := w.AddSlot("S")
	m, _ := Attach[*mover](s)
	w.RunTick(dt)

	m.Enabled.Set(false)
	log = nil
	w.RunTick(dt)
	assert.NotContains(t, log, "update S")

	m.Enabled.Set(true)
	s.ActiveSelf.Set(false)
	log = nil
	w.RunTick(dt)
	assert.NotContains(t, log, "update S")
	assert.False(t, m.IsEnabled())
}

func TestComponent_FailingUpdateIsIsolated(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	bad, _ := w.AddSlot("bad")
	good, _ := w.AddSlot("good")
	mb, _ := Attach[*mover](bad)
	mg, _ := Attach[*mover](good)
	mb.panic = true

	require.NotPanics(t, func() { w.RunTick(dt) })
	assert.Contains(t, log, "update good")
	assert.Equal(t, float32(2), mg.Speed.Get())

	log = nil
	w.RunTick(dt)
	assert.Equal(t, []string{"update good", "changes good"}, log)
}

func TestComponent_ReferenceResolves(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	s, _ := w.AddSlot("S")
	target, _ := w.AddSlot("T")
	m, _ := Attach[*mover](s)

	require.NoError(t, m.Target.SetTarget(target))
	got, ok := m.Target.Target()
	require.True(t, ok)
	assert.Same(t, target, got)

	target.Destroy()
	assert.Equal(t, field.RefRemoved, m.Target.State())
}

func TestTypes_Errors(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	s, _ := w.AddSlot("S")

	_, err := s.AttachComponent("missing")
	var unknown *UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "missing", unknown.Name)

	assert.Error(t, w.Types().Register(idleType))
	assert.Equal(t, []string{"idle", "mover"}, w.Types().Names())

	assert.Panics(t, func() {
		b := Describe("dup", func() *mover { return &mover{} })
		Field(b, "Enabled", func(m *mover) *field.Value[float32] { return &m.Speed }, 0)
		b.Build()
	})

	_, err = Attach[*recComponent](s)
	assert.True(t, errors.As(err, &unknown))
}

type recComponent struct{ ComponentBase }

func TestComponent_AttachToDestroyedSlot(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	s, _ := w.AddSlot("S")
	s.Destroy()
	_, err := Attach[*idle](s)
	assert.Error(t, err)
	var v *fault.Violation
	assert.True(t, errors.As(err, &v))
}
