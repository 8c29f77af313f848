package world

import (
	"sync"

	"github.com/slotworld/datamodel/internal/core/registry"
)

// HookOwner is the element a hook is attached to: a Slot or a component.
type HookOwner interface {
	registry.Element
	TypeName() string
	Slot() *Slot
}

// Hook bridges an element into an external rendering or physics layer.
type Hook interface {
	AssignOwner(owner HookOwner)
	RemoveOwner()
	// Initialize runs once, after the owner's startup.
	Initialize()
	// ApplyChanges runs during HookApply whenever the owner was queued.
	ApplyChanges()
	// Destroy releases the bridge. destroyingWorld is true when the whole
	// graph is being torn down and non-essential cleanup can be skipped.
	Destroy(destroyingWorld bool)
}

// HookFactory creates a hook for one owner.
type HookFactory func() Hook

// HookRegistry maps element type names to hook factories. Each world holds
// its own; a type without a registration runs headless.
type HookRegistry struct {
	mu        sync.RWMutex
	factories map[string]HookFactory
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{factories: make(map[string]HookFactory)}
}

// Register binds typeName to f, replacing any previous factory.
func (r *HookRegistry) Register(typeName string, f HookFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = f
}

// New returns a fresh hook for typeName, or nil when none is registered.
func (r *HookRegistry) New(typeName string) Hook {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	f, ok := r.factories[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return f()
}

// Focus is the world's presentation state.
type Focus uint8

const (
	FocusBackground Focus = iota
	FocusFocused
	FocusOverlay
)

func (f Focus) String() string {
	switch f {
	case FocusBackground:
		return "background"
	case FocusFocused:
		return "focused"
	case FocusOverlay:
		return "overlay"
	}
	return "unknown"
}

// WorldHook is the world-level bridge.
type WorldHook interface {
	Initialize(w *World)
	ChangeFocus(f Focus)
	Destroy()
}
