// Package field implements the synchronized members declared on workers:
// dirty-tracked values, identifier-based references to other elements, and
// the Drive/Hook link mechanism that lets exactly one external party own a
// field's writes at a time.
package field

import (
	"fmt"

	"github.com/slotworld/datamodel/internal/core/fault"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/core/registry"
)

// Flags are per-member options fixed by the owning type's descriptor.
type Flags uint8

const (
	// NonPersistent members are replicated but never saved.
	NonPersistent Flags = 1 << iota
	// NonDrivable members reject drive links.
	NonDrivable
	// Inheritable members accept links inherited from a parent element.
	Inheritable
)

func (f Flags) Has(o Flags) bool { return f&o == o }

// Owner is the element a member belongs to. It is a non-owning back
// reference: the owner holds its members, never the other way round.
type Owner interface {
	ReferenceID() refid.RefID
	Registry() *registry.Registry
	// IsInitializing is true while the owner sets itself up; writes bypass
	// hooks during that window.
	IsInitializing() bool
	// MemberChanged is called after every stored change.
	MemberChanged(m Member)
}

// Member is the type-erased view of a synchronized member.
type Member interface {
	registry.Element
	Name() string
	Flags() Flags
	Owner() Owner
	IsDirty() bool
	ClearDirty()
	MarkDirty()
	Encode(w *Writer)
	Decode(r *Reader) error
	Load(data []byte) error
	// Assign sets the member from loosely typed template data.
	Assign(v any) error
	Initialize(owner Owner, id refid.RefID, name string, flags Flags)
	Dispose()
	// Revive undoes Dispose when the owner is restored from the trash.
	Revive()
}

// Value is a synchronized member holding a T.
type Value[T comparable] struct {
	id        refid.RefID
	name      string
	flags     Flags
	owner     Owner
	codec     Codec[T]
	value     T
	dirty     bool
	disposed  bool
	direct    *Link[T]
	inherited *Link[T]
	permit    int
	loading   bool
	listeners []func(*Value[T])
}

// NewValue returns a standalone value with initial content. Members
// declared on workers are zero values initialized by their descriptor.
func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

// UseCodec overrides the codec picked from T. Required for enum types.
func (f *Value[T]) UseCodec(c Codec[T]) { f.codec = c }

// Initialize binds the member to its owner and identity.
func (f *Value[T]) Initialize(owner Owner, id refid.RefID, name string, flags Flags) {
	if f.codec == nil {
		f.codec = CodecFor[T]()
		if f.codec == nil {
			var zero T
			panic(fmt.Sprintf("field %s: no codec for %T", name, zero))
		}
	}
	f.owner = owner
	f.id = id
	f.name = name
	f.flags = flags
}

func (f *Value[T]) ReferenceID() refid.RefID { return f.id }
func (f *Value[T]) IsDestroyed() bool        { return f.disposed }
func (f *Value[T]) Name() string             { return f.name }
func (f *Value[T]) Flags() Flags             { return f.flags }
func (f *Value[T]) Owner() Owner             { return f.owner }
func (f *Value[T]) IsDirty() bool            { return f.dirty }
func (f *Value[T]) ClearDirty()              { f.dirty = false }

// Registry is the registry of the owning world, nil for standalone values.
func (f *Value[T]) Registry() *registry.Registry {
	if f.owner == nil {
		return nil
	}
	return f.owner.Registry()
}

// Get returns the current value.
func (f *Value[T]) Get() T { return f.value }

// Reset stores v without notifications, dirtiness or link checks. Used to
// apply descriptor defaults before the member is registered.
func (f *Value[T]) Reset(v T) { f.value = f.normalize(v) }

// OnChanged subscribes fn to every stored change.
func (f *Value[T]) OnChanged(fn func(*Value[T])) {
	f.listeners = append(f.listeners, fn)
}

// ActiveLink returns the link in control: the inherited link if any,
// otherwise the direct one.
func (f *Value[T]) ActiveLink() *Link[T] {
	if f.inherited != nil {
		return f.inherited
	}
	return f.direct
}

func (f *Value[T]) IsLinked() bool { return f.ActiveLink() != nil }

func (f *Value[T]) IsDriven() bool {
	l := f.ActiveLink()
	return l != nil && l.kind == LinkDrive
}

func (f *Value[T]) IsHooked() bool {
	l := f.ActiveLink()
	return l != nil && l.kind == LinkHook
}

// Link makes l the direct link, superseding any previous direct link.
func (f *Value[T]) Link(l *Link[T]) {
	if l.kind == LinkDrive && f.flags.Has(NonDrivable) {
		fault.Raise("drive field "+f.name, f.id, fault.ErrNotDrivable)
	}
	if f.direct == l {
		return
	}
	if l.field != nil && l.field != f {
		l.Release()
	}
	if prev := f.direct; prev != nil {
		prev.field = nil
	}
	l.field = f
	l.inherited = false
	f.direct = l
}

// ReleaseLink clears the direct link if it is l. Returns false and does
// nothing otherwise.
func (f *Value[T]) ReleaseLink(l *Link[T]) bool {
	if f.direct != l || l == nil {
		return false
	}
	f.direct = nil
	l.field = nil
	return true
}

// InheritLink installs l as the inherited link, which takes precedence over
// the direct one. Only Inheritable members support it.
func (f *Value[T]) InheritLink(l *Link[T]) {
	if !f.flags.Has(Inheritable) {
		fault.Raise("inherit link on "+f.name, f.id, fault.ErrInheritUnsupported)
	}
	if l.kind == LinkDrive && f.flags.Has(NonDrivable) {
		fault.Raise("drive field "+f.name, f.id, fault.ErrNotDrivable)
	}
	if f.inherited == l {
		return
	}
	if l.field != nil && l.field != f {
		l.Release()
	}
	if prev := f.inherited; prev != nil {
		prev.field = nil
	}
	l.field = f
	l.inherited = true
	f.inherited = l
}

// ReleaseInheritedLink clears the inherited link if it is l.
func (f *Value[T]) ReleaseInheritedLink(l *Link[T]) bool {
	if !f.flags.Has(Inheritable) {
		fault.Raise("release inherited link on "+f.name, f.id, fault.ErrInheritUnsupported)
	}
	if f.inherited != l || l == nil {
		return false
	}
	f.inherited = nil
	l.field = nil
	return true
}

// Set requests a change. With an active hook the write is redirected into
// the hook callback; with an active drive it is ignored; otherwise unequal
// values are stored, marked dirty and announced. Values are normalized by
// the codec first (strings to NFC).
func (f *Value[T]) Set(v T) {
	v = f.normalize(v)
	if l := f.ActiveLink(); l != nil {
		switch l.kind {
		case LinkDrive:
			return
		case LinkHook:
			if !f.modificationPermitted() {
				f.permit++
				defer func() { f.permit-- }()
				l.hook(f, v)
				return
			}
		}
	}
	f.store(v, true)
}

func (f *Value[T]) normalize(v T) T {
	if n, ok := f.codecOrDefault().(Normalizer[T]); ok {
		return n.Normalize(v)
	}
	return v
}

func (f *Value[T]) modificationPermitted() bool {
	if f.permit > 0 || f.loading {
		return true
	}
	return f.owner != nil && f.owner.IsInitializing()
}

func (f *Value[T]) store(v T, replicate bool) bool {
	if f.value == v {
		return false
	}
	f.value = v
	if replicate && !f.loading {
		f.dirty = true
	}
	if f.owner != nil {
		f.owner.MemberChanged(f)
	}
	for _, fn := range f.listeners {
		fn(f)
	}
	return true
}

// MarkDirty forces the member into the next replication batch.
func (f *Value[T]) MarkDirty() {
	f.dirty = true
	if f.owner != nil {
		f.owner.MemberChanged(f)
	}
}

// Encode writes the current value only.
func (f *Value[T]) Encode(w *Writer) {
	f.codecOrDefault().Encode(w, f.value)
}

// Decode replaces the value with one read from r. Loading bypasses links and
// does not mark the member dirty.
func (f *Value[T]) Decode(r *Reader) error {
	v, err := f.codecOrDefault().Decode(r)
	if err != nil {
		return fmt.Errorf("decode %s: %w", f.name, err)
	}
	f.load(v)
	return nil
}

// Load decodes one complete value from data, as received from a peer.
// Trailing bytes are an error and leave the value untouched.
func (f *Value[T]) Load(data []byte) error {
	r := NewReader(data)
	v, err := f.codecOrDefault().Decode(r)
	if err != nil {
		return fmt.Errorf("decode %s: %w", f.name, err)
	}
	if r.Remaining() != 0 {
		return fmt.Errorf("decode %s: %w", f.name, ErrTrailingBytes)
	}
	f.load(v)
	return nil
}

func (f *Value[T]) load(v T) {
	f.loading = true
	defer func() { f.loading = false }()
	f.store(v, false)
}

// Assign converts template data and sets it through the normal write path.
func (f *Value[T]) Assign(v any) error {
	t, err := f.codecOrDefault().FromAny(v)
	if err != nil {
		return fmt.Errorf("assign %s: %w", f.name, err)
	}
	f.Set(t)
	return nil
}

// Dispose detaches links and marks the member destroyed.
func (f *Value[T]) Dispose() {
	f.disposed = true
	if f.direct != nil {
		f.direct.field = nil
		f.direct = nil
	}
	if f.inherited != nil {
		f.inherited.field = nil
		f.inherited = nil
	}
}

// Revive clears the destroyed mark. Links released by Dispose stay released.
func (f *Value[T]) Revive() { f.disposed = false }

func (f *Value[T]) codecOrDefault() Codec[T] {
	if f.codec == nil {
		f.codec = CodecFor[T]()
	}
	return f.codec
}

func (f *Value[T]) String() string {
	return fmt.Sprintf("%s(%s)=%v", f.name, f.id, f.value)
}
