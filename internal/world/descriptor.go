package world

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/registry"
)

// memberDesc describes one sync member of a component type. prepare runs
// before the member is initialized, defaults after.
type memberDesc struct {
	name     string
	flags    field.Flags
	get      func(Component) field.Member
	prepare  func(Component)
	defaults func(Component)
}

// Descriptor is the static metadata of a component type: its name, factory
// and sync members in allocation order. Built once per type.
type Descriptor struct {
	name    string
	goType  reflect.Type
	factory func() Component
	members []memberDesc
}

func (d *Descriptor) Name() string { return d.name }

// MemberNames lists the sync members in allocation order.
func (d *Descriptor) MemberNames() []string {
	out := make([]string, len(d.members))
	for i, m := range d.members {
		out[i] = m.name
	}
	return out
}

// Builder accumulates the members of component type C.
type Builder[C Component] struct {
	d *Descriptor
}

// Describe starts a descriptor for C. Every component carries the Enabled
// and UpdateOrder members first.
func Describe[C Component](name string, factory func() C) *Builder[C] {
	b := &Builder[C]{d: &Descriptor{
		name:    name,
		goType:  reflect.TypeFor[C](),
		factory: func() Component { return factory() },
	}}
	b.d.members = append(b.d.members,
		memberDesc{
			name:     "Enabled",
			get:      func(c Component) field.Member { return &c.componentBase().Enabled },
			defaults: func(c Component) { c.componentBase().Enabled.Reset(true) },
		},
		memberDesc{
			name: "UpdateOrder",
			get:  func(c Component) field.Member { return &c.componentBase().UpdateOrder },
		},
	)
	return b
}

// Field declares a value member with its default.
func Field[C Component, T comparable](b *Builder[C], name string, get func(C) *field.Value[T], def T, flags ...field.Flags) *Builder[C] {
	b.d.members = append(b.d.members, memberDesc{
		name:     name,
		flags:    joinFlags(flags),
		get:      func(c Component) field.Member { return get(c.(C)) },
		defaults: func(c Component) { get(c.(C)).Reset(def) },
	})
	return b
}

// FieldCodec declares a value member whose type needs an explicit codec,
// such as an enum.
func FieldCodec[C Component, T comparable](b *Builder[C], name string, get func(C) *field.Value[T], def T, codec field.Codec[T], flags ...field.Flags) *Builder[C] {
	b.d.members = append(b.d.members, memberDesc{
		name:     name,
		flags:    joinFlags(flags),
		get:      func(c Component) field.Member { return get(c.(C)) },
		prepare:  func(c Component) { get(c.(C)).UseCodec(codec) },
		defaults: func(c Component) { get(c.(C)).Reset(def) },
	})
	return b
}

// Reference declares a reference member. References default to null.
func Reference[C Component, T registry.Element](b *Builder[C], name string, get func(C) *field.Ref[T], flags ...field.Flags) *Builder[C] {
	b.d.members = append(b.d.members, memberDesc{
		name:  name,
		flags: joinFlags(flags),
		get:   func(c Component) field.Member { return get(c.(C)) },
	})
	return b
}

// Build finishes the descriptor. Duplicate member names are a programming
// error and panic.
func (b *Builder[C]) Build() *Descriptor {
	seen := make(map[string]struct{}, len(b.d.members))
	for _, m := range b.d.members {
		if _, dup := seen[m.name]; dup {
			panic(fmt.Sprintf("component %s: duplicate member %q", b.d.name, m.name))
		}
		seen[m.name] = struct{}{}
	}
	return b.d
}

func joinFlags(flags []field.Flags) field.Flags {
	var f field.Flags
	for _, x := range flags {
		f |= x
	}
	return f
}

// TypeRegistry holds the component descriptors a world can instantiate.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]*Descriptor
	byType map[reflect.Type]*Descriptor
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: make(map[string]*Descriptor),
		byType: make(map[reflect.Type]*Descriptor),
	}
}

// Register adds d. Names must be unique.
func (r *TypeRegistry) Register(d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[d.name]; ok {
		return fmt.Errorf("component type %q already registered", d.name)
	}
	r.byName[d.name] = d
	r.byType[d.goType] = d
	return nil
}

// MustRegister is Register for init-time tables.
func (r *TypeRegistry) MustRegister(ds ...*Descriptor) {
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

func (r *TypeRegistry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

func (r *TypeRegistry) lookupType(t reflect.Type) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byType[t]
	return d, ok
}

// Names returns the registered type names, sorted.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
