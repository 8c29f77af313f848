// Package scheduler runs world objects through the five ordered phases of a
// simulation tick: Startup, Update, Changes, Destruction and HookApply.
package scheduler

import (
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/metric"
)

// Phase is one stage of a tick.
type Phase int

const (
	PhaseIdle Phase = iota - 1
	PhaseStartup
	PhaseUpdate
	PhaseChanges
	PhaseDestruction
	PhaseHookApply
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStartup:
		return "startup"
	case PhaseUpdate:
		return "update"
	case PhaseChanges:
		return "changes"
	case PhaseDestruction:
		return "destruction"
	case PhaseHookApply:
		return "hook_apply"
	}
	return "unknown"
}

// Updatable is an object driven by the scheduler. The Run* methods are the
// lifecycle driver entry points; they wrap the user-overridable callbacks.
type Updatable interface {
	ReferenceID() refid.RefID
	IsDestroyed() bool
	IsStarted() bool
	IsEnabled() bool
	// Priority selects the update bucket. Lower runs first.
	Priority() int

	RunStart()
	RunUpdate()
	RunChanges(changeIndex uint64)
	RunDestroy()
}

// StartOnly is implemented by objects that pass through Startup but never
// join the update buckets.
type StartOnly interface {
	StartOnly()
}

// HookUpdatable is an object whose hook pushes committed state into the
// external bridge during HookApply.
type HookUpdatable interface {
	ReferenceID() refid.RefID
	IsDestroyed() bool
	RunHookApply()
}

const defaultMaxChangePasses = 4

// Scheduler owns the per-world phase queues.
//
// Everything except the hook set is accessed only by the DataModel role while
// it holds the world lock. The hook set is fed from both roles and guarded
// by hookMu.
type Scheduler struct {
	log     *zap.Logger
	metrics *metric.Metrics

	phase Phase
	tick  uint64

	startQueue []Updatable

	buckets    map[int][]Updatable
	priorities []int // sorted keys of buckets
	member     map[Updatable]int
	quarantine map[Updatable]struct{}

	changes      map[int][]Updatable
	changed      map[Updatable]struct{}
	changeIndex  uint64
	maxPasses    int
	destroyQueue []Updatable
	destroying   map[Updatable]struct{}

	hookMu  sync.Mutex
	hooks   []HookUpdatable
	hookSet map[HookUpdatable]struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithMetrics(m *metric.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithMaxChangePasses bounds how often the Changes phase re-drains changes
// raised by ApplyChanges callbacks within a single tick.
func WithMaxChangePasses(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxPasses = n
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		log:        zap.NewNop(),
		phase:      PhaseIdle,
		buckets:    make(map[int][]Updatable),
		member:     make(map[Updatable]int, 256),
		quarantine: make(map[Updatable]struct{}),
		changes:    make(map[int][]Updatable),
		changed:    make(map[Updatable]struct{}, 64),
		maxPasses:  defaultMaxChangePasses,
		destroying: make(map[Updatable]struct{}),
		hookSet:    make(map[HookUpdatable]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Phase returns the phase being run, PhaseIdle between ticks.
func (s *Scheduler) Phase() Phase { return s.phase }

// Tick returns the number of completed ticks.
func (s *Scheduler) Tick() uint64 { return s.tick }

// ChangeIndex returns the last change index handed out.
func (s *Scheduler) ChangeIndex() uint64 { return s.changeIndex }

// ScheduleStart queues a newly constructed object for the next Startup phase.
func (s *Scheduler) ScheduleStart(u Updatable) {
	s.startQueue = append(s.startQueue, u)
}

// RegisterChanged queues u for the Changes phase. Duplicate registrations
// before u is applied are merged.
func (s *Scheduler) RegisterChanged(u Updatable) {
	if _, ok := s.changed[u]; ok {
		return
	}
	s.changed[u] = struct{}{}
	p := u.Priority()
	s.changes[p] = append(s.changes[p], u)
}

// ScheduleDestroy queues u for teardown in the Destruction phase and takes it
// out of the update buckets immediately.
func (s *Scheduler) ScheduleDestroy(u Updatable) {
	if _, ok := s.destroying[u]; ok {
		return
	}
	s.destroying[u] = struct{}{}
	s.removeFromBucket(u)
	delete(s.quarantine, u)
	s.destroyQueue = append(s.destroyQueue, u)
}

// QueueHookUpdate marks h for the next HookApply phase. Safe from either role.
func (s *Scheduler) QueueHookUpdate(h HookUpdatable) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	if _, ok := s.hookSet[h]; ok {
		return
	}
	s.hookSet[h] = struct{}{}
	s.hooks = append(s.hooks, h)
}

// Reprioritize moves u out of the bucket for old and, if u is still
// eligible, into the bucket for its current priority.
func (s *Scheduler) Reprioritize(u Updatable, old int) {
	if p, ok := s.member[u]; ok && p == old {
		s.removeFromBucket(u)
	}
	if _, bad := s.quarantine[u]; bad {
		return
	}
	if u.IsDestroyed() || !u.IsStarted() {
		return
	}
	s.addToBucket(u)
}

// Scheduled reports whether u is in an update bucket.
func (s *Scheduler) Scheduled(u Updatable) bool {
	_, ok := s.member[u]
	return ok
}

// Len returns the number of objects in the update buckets.
func (s *Scheduler) Len() int { return len(s.member) }

// PendingStarts returns the number of objects waiting for Startup.
func (s *Scheduler) PendingStarts() int { return len(s.startQueue) }

// PendingHooks returns the number of queued hook updates.
func (s *Scheduler) PendingHooks() int {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	return len(s.hooks)
}

// RunTick runs the five phases once, in order.
func (s *Scheduler) RunTick() {
	start := time.Now()
	s.runPhase(PhaseStartup, s.runStartup)
	s.runPhase(PhaseUpdate, s.runUpdate)
	s.runPhase(PhaseChanges, s.runChanges)
	s.runPhase(PhaseDestruction, s.runDestruction)
	s.runPhase(PhaseHookApply, s.runHookApply)
	s.phase = PhaseIdle
	s.tick++
	s.metrics.ObserveTick(time.Since(start))
}

// Drain runs Startup, Changes and Destruction outside a tick. Used when a
// world is torn down so queued objects are still released.
func (s *Scheduler) Drain() {
	s.runPhase(PhaseStartup, s.runStartup)
	s.runPhase(PhaseChanges, s.runChanges)
	s.runPhase(PhaseDestruction, s.runDestruction)
	s.phase = PhaseIdle
}

func (s *Scheduler) runPhase(p Phase, fn func()) {
	s.phase = p
	start := time.Now()
	fn()
	s.metrics.ObservePhase(p.String(), time.Since(start))
}

func (s *Scheduler) runStartup() {
	// Objects created by a start callback are started in the same phase.
	for len(s.startQueue) > 0 {
		u := s.startQueue[0]
		s.startQueue[0] = nil
		s.startQueue = s.startQueue[1:]
		if u.IsDestroyed() || u.IsStarted() {
			continue
		}
		if !s.guard(PhaseStartup, u.ReferenceID(), u.RunStart) {
			s.quarantine[u] = struct{}{}
			continue
		}
		if _, ok := u.(StartOnly); ok || u.IsDestroyed() {
			continue
		}
		s.addToBucket(u)
	}
	s.startQueue = nil
}

func (s *Scheduler) runUpdate() {
	// Snapshot each bucket so reprioritization or destruction during the
	// phase cannot reorder the objects still to run.
	prios := slices.Clone(s.priorities)
	var batch []Updatable
	for _, p := range prios {
		batch = append(batch[:0], s.buckets[p]...)
		for _, u := range batch {
			if cur, ok := s.member[u]; !ok || cur != p {
				continue
			}
			if u.IsDestroyed() || !u.IsEnabled() {
				continue
			}
			if !s.guard(PhaseUpdate, u.ReferenceID(), u.RunUpdate) {
				s.removeFromBucket(u)
				s.quarantine[u] = struct{}{}
			}
		}
	}
}

func (s *Scheduler) runChanges() {
	for pass := 0; pass < s.maxPasses && len(s.changed) > 0; pass++ {
		queues := s.changes
		s.changes = make(map[int][]Updatable, len(queues))
		s.changed = make(map[Updatable]struct{}, len(s.changed))

		prios := make([]int, 0, len(queues))
		for p := range queues {
			prios = append(prios, p)
		}
		slices.Sort(prios)

		for _, p := range prios {
			for _, u := range queues[p] {
				if u.IsDestroyed() {
					continue
				}
				s.changeIndex++
				idx := s.changeIndex
				s.guard(PhaseChanges, u.ReferenceID(), func() { u.RunChanges(idx) })
			}
		}
	}
	if n := len(s.changed); n > 0 {
		s.log.Debug("changes deferred to next tick",
			zap.Int("pending", n),
			zap.Int("passes", s.maxPasses))
	}
}

func (s *Scheduler) runDestruction() {
	// Cascaded destruction appends to the queue; drain until empty.
	for len(s.destroyQueue) > 0 {
		u := s.destroyQueue[0]
		s.destroyQueue[0] = nil
		s.destroyQueue = s.destroyQueue[1:]
		delete(s.destroying, u)
		delete(s.changed, u)
		s.guard(PhaseDestruction, u.ReferenceID(), u.RunDestroy)
	}
	s.destroyQueue = nil
}

func (s *Scheduler) runHookApply() {
	s.hookMu.Lock()
	hooks := s.hooks
	s.hooks = nil
	clear(s.hookSet)
	s.hookMu.Unlock()

	for _, h := range hooks {
		if h.IsDestroyed() {
			continue
		}
		s.guard(PhaseHookApply, h.ReferenceID(), h.RunHookApply)
	}
}

// guard runs fn, recovering and logging a panic. Returns false on failure.
func (s *Scheduler) guard(p Phase, id refid.RefID, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			s.log.Error("lifecycle callback failed",
				zap.String("phase", p.String()),
				zap.Stringer("ref", id),
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.metrics.CallbackFailed(p.String())
		}
	}()
	fn()
	return true
}

func (s *Scheduler) addToBucket(u Updatable) {
	if _, ok := s.member[u]; ok {
		return
	}
	p := u.Priority()
	b, exists := s.buckets[p]
	if !exists {
		i, _ := slices.BinarySearch(s.priorities, p)
		s.priorities = slices.Insert(s.priorities, i, p)
	}
	s.buckets[p] = append(b, u)
	s.member[u] = p
}

func (s *Scheduler) removeFromBucket(u Updatable) {
	p, ok := s.member[u]
	if !ok {
		return
	}
	delete(s.member, u)
	b := s.buckets[p]
	if i := slices.Index(b, u); i >= 0 {
		b = slices.Delete(b, i, i+1)
	}
	if len(b) == 0 {
		delete(s.buckets, p)
		if i, found := slices.BinarySearch(s.priorities, p); found {
			s.priorities = slices.Delete(s.priorities, i, i+1)
		}
		return
	}
	s.buckets[p] = b
}
