package component

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotworld/datamodel/internal/math3d"
	"github.com/slotworld/datamodel/internal/scripting"
	"github.com/slotworld/datamodel/internal/world"
)

func newWorld(t *testing.T, eng *scripting.Engine) *world.World {
	t.Helper()
	types := world.NewTypeRegistry()
	Register(types, eng)
	return world.New(world.WithTypes(types))
}

func TestRegister(t *testing.T) {
	types := world.NewTypeRegistry()
	Register(types, nil)
	assert.Equal(t, []string{"Clamp", "Spinner"}, types.Names())

	d, ok := types.Lookup("Spinner")
	require.True(t, ok)
	assert.Equal(t, []string{"Enabled", "UpdateOrder", "Axis", "Speed"}, d.MemberNames())
}

func TestSpinner_DrivesRotation(t *testing.T) {
	w := newWorld(t, nil)
	s, err := w.AddSlot("wheel")
	require.NoError(t, err)
	sp, err := world.Attach[*Spinner](s)
	require.NoError(t, err)

	w.RunTick(500 * time.Millisecond)
	assert.InDelta(t, 45, sp.Angle(), 1e-9)
	want := math3d.AxisAngle(math3d.Float3{Y: 1}, math.Pi/4)
	assert.True(t, s.Rotation.Get().ApproxEqual(want, 1e-5))
	assert.True(t, s.Rotation.IsDriven())
	assert.False(t, s.Rotation.IsDirty(), "driven values stay local")

	s.Rotation.Set(math3d.IdentityQ)
	assert.True(t, s.Rotation.Get().ApproxEqual(want, 1e-5), "writes ignored while driven")

	sp.Enabled.Set(false)
	w.RunTick(500 * time.Millisecond)
	assert.False(t, s.Rotation.IsLinked())
	s.Rotation.Set(math3d.IdentityQ)
	assert.Equal(t, math3d.IdentityQ, s.Rotation.Get())

	sp.Enabled.Set(true)
	w.RunTick(500 * time.Millisecond)
	assert.True(t, s.Rotation.IsDriven())

	sp.Destroy()
	w.RunTick(500 * time.Millisecond)
	assert.False(t, s.Rotation.IsLinked())
}

func TestClamp_HooksPosition(t *testing.T) {
	w := newWorld(t, nil)
	s, err := w.AddSlot("box")
	require.NoError(t, err)
	s.Position.Set(math3d.Float3{X: 5})

	c, err := world.Attach[*Clamp](s)
	require.NoError(t, err)
	w.RunTick(time.Millisecond)
	assert.Equal(t, math3d.Float3{X: 1}, s.Position.Get(), "existing value clamped on start")
	assert.True(t, s.Position.IsHooked())

	s.Position.Set(math3d.Float3{X: -3, Y: 0.5, Z: 9})
	assert.Equal(t, math3d.Float3{X: -1, Y: 0.5, Z: 1}, s.Position.Get())

	c.Max.Set(math3d.Float3{X: 0, Y: 0, Z: 0})
	w.RunTick(time.Millisecond)
	assert.Equal(t, math3d.Float3{X: -1, Y: 0, Z: 0}, s.Position.Get(), "re-clamped to new bounds")

	c.Destroy()
	w.RunTick(time.Millisecond)
	s.Position.Set(math3d.Float3{X: 5})
	assert.Equal(t, math3d.Float3{X: 5}, s.Position.Get())
}

func TestScript_DrivesOutputThroughFilter(t *testing.T) {
	eng, err := scripting.NewEngine("", nil)
	require.NoError(t, err)
	defer eng.Close()
	require.NoError(t, eng.DoString(`
function grow(ctx) return ctx.value + 1 end
function cap(requested, current)
  if requested > 3 then return 3 end
  return requested
end`))

	w := newWorld(t, eng)
	s, _ := w.AddSlot("S")
	sc, err := world.Attach[*Script](s)
	require.NoError(t, err)
	sc.Behaviour.Set("grow")
	sc.Filter.Set("cap")

	for i := 0; i < 5; i++ {
		w.RunTick(time.Millisecond)
	}
	assert.Equal(t, float32(3), sc.Output.Get())
	assert.True(t, sc.Output.IsHooked())

	sc.Filter.Set("")
	w.RunTick(time.Millisecond)
	assert.False(t, sc.Output.IsLinked())
	w.RunTick(time.Millisecond)
	assert.Equal(t, float32(4), sc.Output.Get())
}

func TestScript_ErrorKeepsRunning(t *testing.T) {
	eng, err := scripting.NewEngine("", nil)
	require.NoError(t, err)
	defer eng.Close()

	w := newWorld(t, eng)
	s, _ := w.AddSlot("S")
	sc, err := world.Attach[*Script](s)
	require.NoError(t, err)
	sc.Behaviour.Set("undefined")

	require.NotPanics(t, func() { w.RunTick(time.Millisecond) })
	assert.True(t, w.Scheduler().Scheduled(&sc.ComponentBase))
}
