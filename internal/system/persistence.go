package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	coresys "github.com/slotworld/datamodel/internal/core/system"
	"github.com/slotworld/datamodel/internal/persist"
	"github.com/slotworld/datamodel/internal/world"
)

// SnapshotSaver stores a captured snapshot. *persist.WorldRepo implements it.
type SnapshotSaver interface {
	Save(ctx context.Context, s *persist.Snapshot) error
}

// PersistenceSystem periodically saves a snapshot of the world's persistent
// members and allocation positions. Phase 3 (Persist).
type PersistenceSystem struct {
	world     *world.World
	saver     SnapshotSaver
	log       *zap.Logger
	tickCount int
	interval  int // save every N ticks
	timeout   time.Duration
}

func NewPersistenceSystem(w *world.World, saver SnapshotSaver, log *zap.Logger, intervalTicks int, timeout time.Duration) *PersistenceSystem {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PersistenceSystem{
		world:    w,
		saver:    saver,
		log:      log,
		interval: intervalTicks,
		timeout:  timeout,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.SaveNow(ctx); err != nil {
		s.log.Error("auto-save failed", zap.Error(err))
	}
}

// SaveNow captures and stores a snapshot immediately. Called on graceful
// shutdown so the last interval is not lost.
func (s *PersistenceSystem) SaveNow(ctx context.Context) error {
	var snap *persist.Snapshot
	// 擷取期間持有世界鎖，避免 implementer 寫入造成快照不一致
	s.world.Modify(world.RoleDataModel, func() {
		snap = persist.Capture(s.world)
	})

	start := time.Now()
	err := s.saver.Save(ctx, snap)
	took := time.Since(start)
	s.world.Metrics().ObservePersist(took, err)
	if err != nil {
		return err
	}
	s.log.Debug("snapshot saved",
		zap.Uint64("tick", snap.Tick),
		zap.Int("fields", len(snap.Fields)),
		zap.Duration("took", took))
	return nil
}
