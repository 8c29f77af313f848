package component

import (
	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/scripting"
	"github.com/slotworld/datamodel/internal/world"
)

// Script drives Output from Lua. Behaviour names the update function called
// every tick; Filter optionally names a hook function that vets every write
// to Output.
type Script struct {
	world.ComponentBase
	Behaviour field.Value[string]
	Filter    field.Value[string]
	Output    field.Value[float32]

	engine     *scripting.Engine
	filter     *field.Link[float32]
	filterName string
}

func scriptType(eng *scripting.Engine) *world.Descriptor {
	b := world.Describe("Script", func() *Script { return &Script{engine: eng} })
	world.Field(b, "Behaviour", func(s *Script) *field.Value[string] { return &s.Behaviour }, "")
	world.Field(b, "Filter", func(s *Script) *field.Value[string] { return &s.Filter }, "")
	world.Field(b, "Output", func(s *Script) *field.Value[float32] { return &s.Output }, 0)
	return b.Build()
}

func (s *Script) OnStart() {
	s.relink()
}

func (s *Script) OnUpdate() {
	fn := s.Behaviour.Get()
	if fn == "" {
		return
	}
	w := s.World()
	v, ok, err := s.engine.CallUpdate(fn, scripting.UpdateContext{
		ID:    s.ReferenceID(),
		Dt:    w.Delta(),
		Tick:  w.Tick(),
		Value: s.Output.Get(),
	})
	if err != nil {
		w.Logger().Warn("script update failed",
			zap.Stringer("component", s.ReferenceID()),
			zap.String("func", fn),
			zap.Error(err))
		return
	}
	if ok {
		s.Output.Set(v)
	}
}

// OnChanges follows edits to Filter.
func (s *Script) OnChanges() {
	s.relink()
}

func (s *Script) OnDestroy() {
	if s.filter != nil {
		s.filter.Release()
	}
}

func (s *Script) relink() {
	name := s.Filter.Get()
	if s.filter != nil && s.filterName == name {
		return
	}
	if s.filter != nil {
		s.filter.Release()
		s.filter = nil
	}
	s.filterName = name
	if name == "" {
		return
	}
	s.filter = field.Hook(s.ReferenceID(), s.engine.NumberHook(name))
	s.Output.Link(s.filter)
}
