package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/slotworld/datamodel/internal/core/system"
	"github.com/slotworld/datamodel/internal/world"
)

// TrashPurgeSystem discards trashed elements once they are old enough that
// the authority can no longer roll their deletion back. Phase 4 (Cleanup).
type TrashPurgeSystem struct {
	world *world.World
	after uint64 // ticks an element stays in the trash
	log   *zap.Logger
}

func NewTrashPurgeSystem(w *world.World, afterTicks uint64, log *zap.Logger) *TrashPurgeSystem {
	return &TrashPurgeSystem{world: w, after: afterTicks, log: log}
}

func (s *TrashPurgeSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *TrashPurgeSystem) Update(_ time.Duration) {
	tick := s.world.Tick()
	if tick <= s.after {
		return
	}
	n := s.world.Registry().PurgeTrash(tick - s.after)
	if n == 0 {
		return
	}
	s.world.Metrics().TrashPurged(n)
	s.log.Debug("trash purged", zap.Int("count", n), zap.Uint64("tick", tick))
}
