package field

import (
	"fmt"
	"reflect"

	"github.com/slotworld/datamodel/internal/core/fault"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/core/registry"
)

// RefState is the cached resolution state of a Ref.
type RefState uint8

const (
	RefNull RefState = iota
	RefWaiting
	RefAvailable
	RefInvalid
	RefRemoved
)

func (s RefState) String() string {
	switch s {
	case RefNull:
		return "null"
	case RefWaiting:
		return "waiting"
	case RefAvailable:
		return "available"
	case RefInvalid:
		return "invalid"
	case RefRemoved:
		return "removed"
	}
	return "unknown"
}

// WorldBound is implemented by elements that know which world they live in.
// Identity of a world is the identity of its registry.
type WorldBound interface {
	Registry() *registry.Registry
}

// Ref is a synchronized reference to another element. Only the target's
// RefID is stored and replicated; the target itself is resolved through the
// registry, possibly long after the id arrived.
type Ref[T registry.Element] struct {
	Value[refid.RefID]

	state     RefState
	target    T
	requested refid.RefID
	available []func(*Ref[T])
	changed   []func(*Ref[T])
}

// Initialize binds the reference and starts tracking its id.
func (r *Ref[T]) Initialize(owner Owner, id refid.RefID, name string, flags Flags) {
	r.Value.UseCodec(RefIDCodec)
	r.Value.Initialize(owner, id, name, flags)
	r.Value.OnChanged(func(*Value[refid.RefID]) { r.resolve() })
	if !r.Get().IsNull() {
		r.resolve()
	}
}

// State returns the cached resolution state.
func (r *Ref[T]) State() RefState {
	if r.state == RefAvailable && r.target.IsDestroyed() {
		r.dropTarget()
		r.state = RefRemoved
	}
	return r.state
}

// TargetID is the referenced id, which may not be resolvable yet.
func (r *Ref[T]) TargetID() refid.RefID { return r.Get() }

// Target returns the resolved target while it is available and alive.
func (r *Ref[T]) Target() (T, bool) {
	if r.State() != RefAvailable {
		var zero T
		return zero, false
	}
	return r.target, true
}

// OnAvailable subscribes fn to first availability of each assigned target.
func (r *Ref[T]) OnAvailable(fn func(*Ref[T])) {
	r.available = append(r.available, fn)
}

// OnTargetChanged subscribes fn to every change of the cached target.
func (r *Ref[T]) OnTargetChanged(fn func(*Ref[T])) {
	r.changed = append(r.changed, fn)
}

// SetTarget points the reference at t. Targets from another world, and
// local-only targets of a replicated reference, are rejected.
func (r *Ref[T]) SetTarget(t T) error {
	if isNil(t) {
		r.Set(refid.Null)
		return nil
	}
	if wb, ok := any(t).(WorldBound); ok && r.owner != nil && wb.Registry() != r.owner.Registry() {
		return fault.New("set reference "+r.name, r.id, fault.ErrForeignWorld)
	}
	if t.ReferenceID().IsLocal() && !r.ownerID().IsLocal() {
		return fault.New("set reference "+r.name, r.id, fault.ErrCrossDomainRef)
	}
	r.Set(t.ReferenceID())
	return nil
}

// Clear sets the reference to null.
func (r *Ref[T]) Clear() { r.Set(refid.Null) }

func (r *Ref[T]) ownerID() refid.RefID {
	if r.owner != nil {
		return r.owner.ReferenceID()
	}
	return r.id
}

func (r *Ref[T]) resolve() {
	id := r.Get()
	reg := r.Registry()
	if !r.requested.IsNull() && reg != nil {
		reg.CancelRequest(r.requested, r)
	}
	r.requested = refid.Null
	r.dropTarget()

	if id.IsNull() {
		r.state = RefNull
		r.fireChanged()
		return
	}
	r.state = RefWaiting
	if reg == nil {
		r.fireChanged()
		return
	}
	r.requested = id
	reg.Request(id, r)
	if r.state == RefWaiting {
		r.fireChanged()
	}
}

// OnElementAvailable completes a pending resolution. Stale deliveries for an
// id the reference no longer points at are ignored.
func (r *Ref[T]) OnElementAvailable(e registry.Element) {
	if e.ReferenceID() != r.Get() || r.state != RefWaiting {
		return
	}
	r.requested = refid.Null
	typed, ok := e.(T)
	switch {
	case !ok:
		r.state = RefInvalid
	case e.IsDestroyed():
		r.state = RefRemoved
	default:
		r.target = typed
		r.state = RefAvailable
		for _, fn := range r.available {
			fn(r)
		}
	}
	r.fireChanged()
}

// Dispose withdraws any pending request and disposes the underlying value.
func (r *Ref[T]) Dispose() {
	if reg := r.Registry(); reg != nil && !r.requested.IsNull() {
		reg.CancelRequest(r.requested, r)
	}
	r.requested = refid.Null
	r.dropTarget()
	r.state = RefRemoved
	r.Value.Dispose()
}

// Revive undoes Dispose and resolves the stored id again.
func (r *Ref[T]) Revive() {
	r.Value.Revive()
	r.resolve()
}

// Assign accepts a textual RefID from template data. Like SetTarget it
// refuses a local-only target for a replicated reference.
func (r *Ref[T]) Assign(v any) error {
	id, err := RefIDCodec.FromAny(v)
	if err != nil {
		return fmt.Errorf("assign %s: %w", r.name, err)
	}
	if id.IsLocal() && !r.ownerID().IsLocal() {
		return fault.New("assign "+r.name, r.id, fault.ErrCrossDomainRef)
	}
	r.Set(id)
	return nil
}

func (r *Ref[T]) dropTarget() {
	var zero T
	r.target = zero
}

func (r *Ref[T]) fireChanged() {
	for _, fn := range r.changed {
		fn(r)
	}
}

func (r *Ref[T]) String() string {
	return fmt.Sprintf("%s(%s)->%s[%s]", r.name, r.id, r.Get(), r.state)
}

func isNil(e registry.Element) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return v.IsNil()
	}
	return false
}
