package field

import "github.com/slotworld/datamodel/internal/core/refid"

// LinkKind tags the two ways an external party can possess a field.
type LinkKind uint8

const (
	// LinkDrive owns every write; ordinary Set calls are ignored.
	LinkDrive LinkKind = iota + 1
	// LinkHook intercepts ordinary Set calls and decides what gets stored.
	LinkHook
)

func (k LinkKind) String() string {
	switch k {
	case LinkDrive:
		return "drive"
	case LinkHook:
		return "hook"
	}
	return "unknown"
}

// HookFunc receives a redirected write. Calling f.Set inside the callback
// stores the value; returning without calling it suppresses the write.
type HookFunc[T comparable] func(f *Value[T], requested T)

// Link is a Drive or Hook possession of a single Value. A link is bound to at
// most one field at a time.
type Link[T comparable] struct {
	kind      LinkKind
	source    refid.RefID
	hook      HookFunc[T]
	field     *Value[T]
	inherited bool
}

// Drive creates a drive link. source identifies the driver for diagnostics.
func Drive[T comparable](source refid.RefID) *Link[T] {
	return &Link[T]{kind: LinkDrive, source: source}
}

// Hook creates a hook link calling fn for every redirected write.
func Hook[T comparable](source refid.RefID, fn HookFunc[T]) *Link[T] {
	return &Link[T]{kind: LinkHook, source: source, hook: fn}
}

func (l *Link[T]) Kind() LinkKind      { return l.kind }
func (l *Link[T]) Source() refid.RefID { return l.source }
func (l *Link[T]) Target() *Value[T]   { return l.field }
func (l *Link[T]) IsInherited() bool   { return l.inherited }
func (l *Link[T]) IsDrive() bool       { return l.kind == LinkDrive }
func (l *Link[T]) IsHook() bool        { return l.kind == LinkHook }

// IsActive reports whether l is the link currently in control of its field.
func (l *Link[T]) IsActive() bool {
	return l.field != nil && l.field.ActiveLink() == l
}

// Write is the privileged path: while l is active it stores v regardless of
// drive ownership. Driven values are local state and are not marked dirty
// for replication. Returns false when l no longer controls the field.
func (l *Link[T]) Write(v T) bool {
	if !l.IsActive() {
		return false
	}
	l.field.store(v, l.kind != LinkDrive)
	return true
}

// Release gives up the field if l still holds it. It is a no-op otherwise.
func (l *Link[T]) Release() {
	if l.field == nil {
		return
	}
	if l.inherited {
		l.field.ReleaseInheritedLink(l)
		return
	}
	l.field.ReleaseLink(l)
}
