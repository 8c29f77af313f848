// Package world is the container hierarchy of the data model: a World owns
// the allocator, the registry, the scheduler and a single root Slot; slots
// own child slots and components; components own sync members.
package world

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/event"
	"github.com/slotworld/datamodel/internal/core/fault"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/core/registry"
	"github.com/slotworld/datamodel/internal/core/scheduler"
	"github.com/slotworld/datamodel/internal/metric"
)

var errSlotDestroyed = errors.New("slot is destroyed")

// UnknownTypeError is returned when attaching an unregistered component type.
type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown component type %q", e.Name)
}

// World is the root of one replicated scene graph.
//
// The graph is mutated only by the role holding the world lock. RunTick
// acquires it as RoleDataModel; Modify lets the implementer side in.
type World struct {
	log       *zap.Logger
	name      string
	sessionID uuid.UUID
	metrics   *metric.Metrics

	alloc     *refid.Allocator
	peers     *refid.PeerDomains
	reg       *registry.Registry
	sched     *scheduler.Scheduler
	bus       *event.Bus
	lock      *Lock
	hooks     *HookRegistry
	worldHook WorldHook
	types     *TypeRegistry

	root       *Slot
	authority  bool
	focus      Focus
	delta      time.Duration
	elapsed    time.Duration
	destroying bool
	destroyed  bool

	maxChangePasses int
}

// Option configures a World.
type Option func(*World)

func WithLogger(l *zap.Logger) Option {
	return func(w *World) { w.log = l }
}

func WithName(name string) Option {
	return func(w *World) { w.name = name }
}

// WithDomain sets the allocation domain of this peer. Domain 0 is the
// authority.
func WithDomain(d byte) Option {
	return func(w *World) {
		w.alloc = refid.NewAllocator(d)
		w.authority = d == refid.DomainAuthority
	}
}

// WithAuthority overrides the authority flag derived from the domain.
func WithAuthority(a bool) Option {
	return func(w *World) { w.authority = a }
}

func WithHooks(h *HookRegistry) Option {
	return func(w *World) { w.hooks = h }
}

func WithWorldHook(h WorldHook) Option {
	return func(w *World) { w.worldHook = h }
}

func WithTypes(t *TypeRegistry) Option {
	return func(w *World) { w.types = t }
}

func WithMetrics(m *metric.Metrics) Option {
	return func(w *World) { w.metrics = m }
}

func WithSessionID(id uuid.UUID) Option {
	return func(w *World) { w.sessionID = id }
}

// WithMaxChangePasses bounds the Changes phase re-drain count.
func WithMaxChangePasses(n int) Option {
	return func(w *World) { w.maxChangePasses = n }
}

// New creates a world and its root slot. The root always takes the first
// authority ids, so every peer agrees on it.
func New(opts ...Option) *World {
	w := &World{
		log:       zap.NewNop(),
		name:      "world",
		sessionID: uuid.New(),
		alloc:     refid.NewAllocator(refid.DomainAuthority),
		authority: true,
		reg:       registry.New(),
		bus:       event.NewBus(),
		lock:      newLock(),
		hooks:     NewHookRegistry(),
		types:     NewTypeRegistry(),
	}
	for _, o := range opts {
		o(w)
	}
	w.log = w.log.With(zap.String("world", w.name))
	w.sched = scheduler.New(
		scheduler.WithLogger(w.log),
		scheduler.WithMetrics(w.metrics),
		scheduler.WithMaxChangePasses(w.maxChangePasses),
	)
	if w.authority {
		w.peers = refid.NewPeerDomains()
	}

	w.alloc.BeginBlock(refid.DomainAuthority, 1)
	w.root = &Slot{root: true}
	w.root.init(w, nil, "Root")
	w.alloc.EndBlock()
	if w.alloc.Domain() == refid.DomainAuthority {
		w.alloc.Restore(w.alloc.Tracker().Positions())
	}

	if w.worldHook != nil {
		w.worldHook.Initialize(w)
	}
	w.log.Debug("world created",
		zap.Stringer("session", w.sessionID),
		zap.Uint8("domain", w.alloc.Domain()),
		zap.Bool("authority", w.authority))
	return w
}

func (w *World) Name() string                    { return w.name }
func (w *World) SessionID() uuid.UUID            { return w.sessionID }
func (w *World) Logger() *zap.Logger             { return w.log }
func (w *World) Metrics() *metric.Metrics        { return w.metrics }
func (w *World) Root() *Slot                     { return w.root }
func (w *World) Registry() *registry.Registry    { return w.reg }
func (w *World) Allocator() *refid.Allocator     { return w.alloc }
func (w *World) Scheduler() *scheduler.Scheduler { return w.sched }
func (w *World) Events() *event.Bus              { return w.bus }
func (w *World) Lock() *Lock                     { return w.lock }
func (w *World) Types() *TypeRegistry            { return w.types }
func (w *World) Domain() byte                    { return w.alloc.Domain() }
func (w *World) IsAuthority() bool               { return w.authority }
func (w *World) Focus() Focus                    { return w.focus }
func (w *World) Delta() time.Duration            { return w.delta }
func (w *World) Elapsed() time.Duration          { return w.elapsed }
func (w *World) Tick() uint64                    { return w.sched.Tick() }
func (w *World) IsDestroyed() bool               { return w.destroyed }

// Peers hands out peer domains on the authority. Nil on clients.
func (w *World) Peers() *refid.PeerDomains { return w.peers }

// AddSlot creates a slot under the root.
func (w *World) AddSlot(name string) (*Slot, error) {
	return w.root.AddSlot(name)
}

// Lookup resolves id to a live element.
func (w *World) Lookup(id refid.RefID) (registry.Element, bool) {
	return w.reg.Lookup(id)
}

// Find resolves id to a live element of type T.
func Find[T registry.Element](w *World, id refid.RefID) (T, bool) {
	var zero T
	e, ok := w.reg.Lookup(id)
	if !ok {
		return zero, false
	}
	t, ok := e.(T)
	return t, ok
}

// Attach instantiates component type C on s. C must be registered with the
// world's type registry.
func Attach[C Component](s *Slot) (C, error) {
	var zero C
	d, ok := s.world.types.lookupType(reflect.TypeFor[C]())
	if !ok {
		return zero, &UnknownTypeError{Name: reflect.TypeFor[C]().String()}
	}
	c, err := s.attach(d)
	if err != nil {
		return zero, err
	}
	return c.(C), nil
}

// GetComponent returns the first component of type C on s.
func GetComponent[C Component](s *Slot) (C, bool) {
	for _, c := range s.components {
		if t, ok := c.(C); ok {
			return t, true
		}
	}
	var zero C
	return zero, false
}

// RunTick runs one simulation tick as the DataModel role: dispatch last
// tick's structural events, then the five scheduler phases.
func (w *World) RunTick(dt time.Duration) {
	w.lock.Acquire(RoleDataModel)
	defer w.lock.Release(RoleDataModel)
	if w.destroyed {
		return
	}
	w.lock.markRunning()
	w.delta = dt
	w.elapsed += dt

	w.bus.SwapBuffers()
	w.bus.DispatchAll()
	w.sched.RunTick()
	w.metrics.SetRegistrySize(w.reg.Len(), w.reg.TrashLen())
}

// Modify runs fn holding the world lock as role. For the implementer role
// allocation is blocked, so fn may write fields but cannot create elements.
func (w *World) Modify(role Role, fn func()) {
	w.lock.Acquire(role)
	defer w.lock.Release(role)
	if role == RoleImplementer {
		w.alloc.Block()
		defer w.alloc.Unblock()
	}
	fn()
}

// QueueHookUpdate asks for e's hook to be applied in the next HookApply
// phase. Safe from either role.
func (w *World) QueueHookUpdate(e scheduler.HookUpdatable) {
	w.sched.QueueHookUpdate(e)
}

// ReplayAllocation runs fn with allocation redirected to (domain, seq), so
// elements created by fn receive the ids the originating peer gave them.
func (w *World) ReplayAllocation(domain byte, seq uint64, fn func() error) error {
	w.alloc.BeginBlock(domain, seq)
	defer w.alloc.EndBlock()
	return fn()
}

// Local runs fn inside a local allocation block. Elements created by fn
// live in the local-only domain and are never replicated.
func (w *World) Local(fn func() error) error {
	w.alloc.BeginLocalBlock()
	defer w.alloc.EndLocalBlock()
	return fn()
}

// SetFocus changes the world's presentation state.
func (w *World) SetFocus(f Focus) {
	if f == w.focus {
		return
	}
	old := w.focus
	w.focus = f
	if w.worldHook != nil {
		w.worldHook.ChangeFocus(f)
	}
	event.Emit(w.bus, event.FocusChanged{From: uint8(old), To: uint8(f)})
}

// Destroy tears the whole graph down. Hooks are told the world is going
// away so they can skip non-essential cleanup.
func (w *World) Destroy() {
	w.lock.Acquire(RoleDataModel)
	defer w.lock.Release(RoleDataModel)
	if w.destroyed {
		return
	}
	w.destroying = true
	w.root.Destroy()
	w.sched.Drain()
	if w.worldHook != nil {
		w.worldHook.Destroy()
	}
	w.destroyed = true
	w.log.Debug("world destroyed", zap.Uint64("tick", w.Tick()))
}

// canCreate reports whether new elements may be allocated now. Once the
// world runs, only the DataModel role creates, and only while no other role
// holds the lock.
func (w *World) canCreate() error {
	if w.destroying {
		return fmt.Errorf("world %s is being destroyed", w.name)
	}
	if !w.lock.CanModify(RoleDataModel) {
		return fmt.Errorf("world %s: create as %s: %w", w.name, RoleDataModel, fault.ErrWrongRole)
	}
	if w.alloc.IsBlocked() {
		return fault.ErrAllocationBlocked
	}
	return nil
}

// nextID allocates an id. Callers check canCreate first, so a blocked
// allocator here is a broken contract.
func (w *World) nextID() refid.RefID {
	id, err := w.alloc.Allocate()
	if err != nil {
		fault.Raise("allocate", nil, err)
	}
	return id
}

// retire removes a torn-down element from the registry. Clients keep
// replicated elements in the trash until the authority confirms the
// deletion.
func (w *World) retire(e registry.Element) {
	id := e.ReferenceID()
	if !w.authority && !id.IsLocal() && !w.destroying {
		w.reg.MoveToTrash(e, w.Tick())
		return
	}
	w.reg.Unregister(id)
}

func (w *World) guardAwake(id refid.RefID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("awake callback failed",
				zap.Stringer("ref", id),
				zap.Any("panic", r))
			w.metrics.CallbackFailed("awake")
		}
	}()
	fn()
}
