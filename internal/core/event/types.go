package event

import "github.com/slotworld/datamodel/internal/core/refid"

// Structural change events emitted by the world.

type SlotParentChanged struct {
	Slot      refid.RefID
	OldParent refid.RefID
	NewParent refid.RefID
}

type SlotDestroyed struct {
	Slot refid.RefID
}

// SlotRestored follows a rolled back deletion on a client.
type SlotRestored struct {
	Slot refid.RefID
}

type ComponentAttached struct {
	Slot      refid.RefID
	Component refid.RefID
	Type      string
}

type ComponentRemoved struct {
	Slot      refid.RefID
	Component refid.RefID
	Type      string
}

// FocusChanged carries world focus values (background, focused, overlay).
type FocusChanged struct {
	From uint8
	To   uint8
}

// Peer connection events emitted by the authority's replication input.

type PeerJoined struct {
	Domain  uint8
	Session uint64
}

type PeerLeft struct {
	Domain  uint8
	Session uint64
}
