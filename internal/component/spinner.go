package component

import (
	"math"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/math3d"
	"github.com/slotworld/datamodel/internal/world"
)

// Spinner rotates its slot around Axis at Speed degrees per second. While
// enabled it owns the slot's Rotation through a drive link, so the spin is
// local presentation state and never replicates.
type Spinner struct {
	world.ComponentBase
	Axis  field.Value[math3d.Float3]
	Speed field.Value[float32]

	angle float64
	drive *field.Link[math3d.FloatQ]
}

func spinnerType() *world.Descriptor {
	b := world.Describe("Spinner", func() *Spinner { return &Spinner{} })
	world.Field(b, "Axis", func(s *Spinner) *field.Value[math3d.Float3] { return &s.Axis }, math3d.Float3{Y: 1})
	world.Field(b, "Speed", func(s *Spinner) *field.Value[float32] { return &s.Speed }, 90)
	return b.Build()
}

func (s *Spinner) OnStart() {
	s.drive = field.Drive[math3d.FloatQ](s.ReferenceID())
	s.Slot().Rotation.Link(s.drive)
}

func (s *Spinner) OnUpdate() {
	dt := s.World().Delta().Seconds()
	s.angle = math.Mod(s.angle+float64(s.Speed.Get())*dt, 360)
	s.drive.Write(math3d.AxisAngle(s.Axis.Get(), float32(s.angle*math.Pi/180)))
}

// OnChanges hands the rotation back while disabled and takes it again when
// re-enabled.
func (s *Spinner) OnChanges() {
	if s.drive == nil {
		return
	}
	switch {
	case !s.Enabled.Get() && s.drive.IsActive():
		s.drive.Release()
	case s.Enabled.Get() && !s.drive.IsActive():
		s.Slot().Rotation.Link(s.drive)
	}
}

func (s *Spinner) OnDestroy() {
	if s.drive != nil {
		s.drive.Release()
	}
}

// Angle is the current spin angle in degrees.
func (s *Spinner) Angle() float64 { return s.angle }
