package system

import (
	"slices"
	"time"

	"go.uber.org/zap"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	log     *zap.Logger
	systems []System
	sorted  bool
	slow    time.Duration
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		log:     log,
		systems: make([]System, 0, 8),
		slow:    50 * time.Millisecond,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		r.run(s, dt)
	}
}

// TickPhase runs only the systems of one phase. The host uses it to apply
// incoming batches between simulation ticks.
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			r.run(s, dt)
		}
	}
}

// Systems returns the registered systems in execution order.
func (r *Runner) Systems() []System {
	r.ensureSorted()
	return slices.Clone(r.systems)
}

func (r *Runner) run(s System, dt time.Duration) {
	start := time.Now()
	s.Update(dt)
	if took := time.Since(start); took > r.slow {
		r.log.Warn("slow system",
			zap.Stringer("phase", s.Phase()),
			zap.Duration("took", took))
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		slices.SortStableFunc(r.systems, func(a, b System) int {
			return int(a.Phase()) - int(b.Phase())
		})
		r.sorted = true
	}
}
