// Package system holds the host systems that run around a world tick:
// replication input, the simulation itself, replication output,
// persistence and trash cleanup.
package system

import (
	"time"

	coresys "github.com/slotworld/datamodel/internal/core/system"
	"github.com/slotworld/datamodel/internal/world"
)

// WorldSystem runs one world tick. Phase 1 (Simulate).
type WorldSystem struct {
	world *world.World
}

func NewWorldSystem(w *world.World) *WorldSystem {
	return &WorldSystem{world: w}
}

func (s *WorldSystem) Phase() coresys.Phase { return coresys.PhaseSimulate }

func (s *WorldSystem) Update(dt time.Duration) {
	s.world.RunTick(dt)
}
