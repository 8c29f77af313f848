package refid

import (
	"github.com/slotworld/datamodel/internal/core/fault"
)

// cursor is one allocation context: the domain being allocated from and the
// next sequence it will hand out. local marks contexts opened by
// BeginLocalBlock; only EndLocalBlock may close them.
type cursor struct {
	domain byte
	next   uint64
	local  bool
}

// Allocator hands out RefIDs from a context-sensitive cursor. Allocation
// blocks push and pop contexts; they must nest strictly.
// Owned by the DataModel role; no locks.
type Allocator struct {
	cur        cursor
	stack      []cursor
	localNext  uint64
	localDepth int
	blocked    bool
	tracker    *PositionTracker
}

// NewAllocator creates an allocator whose base context allocates from domain.
func NewAllocator(domain byte) *Allocator {
	return &Allocator{
		cur:       cursor{domain: domain, next: 1},
		stack:     make([]cursor, 0, 8),
		localNext: 1,
		tracker:   NewPositionTracker(),
	}
}

// Domain is the domain the current context allocates from.
func (a *Allocator) Domain() byte { return a.cur.domain }

// Tracker exposes the per-domain high-water marks.
func (a *Allocator) Tracker() *PositionTracker { return a.tracker }

// Depth is the number of saved contexts.
func (a *Allocator) Depth() int { return len(a.stack) }

// InLocalBlock reports whether a local block is open.
func (a *Allocator) InLocalBlock() bool { return a.localDepth > 0 }

// Block makes Allocate fail until Unblock is called.
func (a *Allocator) Block()          { a.blocked = true }
func (a *Allocator) Unblock()        { a.blocked = false }
func (a *Allocator) IsBlocked() bool { return a.blocked }

// Allocate consumes and returns the current position.
func (a *Allocator) Allocate() (RefID, error) {
	if a.blocked {
		return Null, fault.ErrAllocationBlocked
	}
	id := FromParts(a.cur.domain, a.cur.next)
	a.tracker.Observe(a.cur.domain, a.cur.next)
	a.cur.next++
	return id, nil
}

// Peek returns what the next Allocate would return, without consuming it.
func (a *Allocator) Peek() RefID {
	return FromParts(a.cur.domain, a.cur.next)
}

// BeginBlock redirects allocation to domain starting at seq. Used to replay
// the exact allocation order of another peer.
func (a *Allocator) BeginBlock(domain byte, seq uint64) {
	if domain == DomainAuthority && seq == 0 {
		seq = 1 // sequence 0 of the authority domain is the null id
	}
	a.push()
	a.cur = cursor{domain: domain, next: seq}
}

// EndBlock restores the context saved by the matching BeginBlock.
func (a *Allocator) EndBlock() {
	if len(a.stack) == 0 {
		fault.Raise("end allocation block", nil, fault.ErrEmptyBlockStack)
	}
	if a.cur.local {
		fault.Raise("end allocation block", nil, fault.ErrBlockMismatch)
	}
	a.pop()
}

// BeginLocalBlock switches to the local-only domain, continuing from where
// the last local block stopped.
func (a *Allocator) BeginLocalBlock() {
	if a.cur.local {
		a.localNext = a.cur.next
	}
	a.push()
	a.cur = cursor{domain: DomainLocal, next: a.localNext, local: true}
	a.localDepth++
}

// EndLocalBlock closes the innermost local block.
func (a *Allocator) EndLocalBlock() {
	if a.localDepth == 0 || !a.cur.local {
		fault.Raise("end local allocation block", nil, fault.ErrNotInLocalBlock)
	}
	if len(a.stack) == 0 {
		fault.Raise("end local allocation block", nil, fault.ErrEmptyBlockStack)
	}
	a.localNext = a.cur.next
	a.localDepth--
	a.pop()
	if a.cur.local {
		a.cur.next = a.localNext
	}
}

// Rebase moves the base context to a new domain, e.g. once a joining peer is
// assigned its domain. Only valid while no blocks are open.
func (a *Allocator) Rebase(domain byte) {
	if len(a.stack) != 0 {
		fault.Raise("rebase allocator", nil, fault.ErrBlocksOpen)
	}
	a.cur = cursor{domain: domain, next: a.tracker.Highest(domain) + 1}
}

// Restore resumes allocation after a reload. Cursors only ever move forward.
func (a *Allocator) Restore(positions map[byte]uint64) {
	for domain, highest := range positions {
		a.tracker.Observe(domain, highest)
		if domain == DomainLocal && a.localNext <= highest {
			a.localNext = highest + 1
		}
		if domain == a.cur.domain && a.cur.next <= highest {
			a.cur.next = highest + 1
		}
	}
}

func (a *Allocator) push() {
	a.stack = append(a.stack, a.cur)
}

func (a *Allocator) pop() {
	last := len(a.stack) - 1
	a.cur = a.stack[last]
	a.stack = a.stack[:last]
}

// PositionTracker records the highest sequence issued per domain.
type PositionTracker struct {
	highest map[byte]uint64
}

func NewPositionTracker() *PositionTracker {
	return &PositionTracker{highest: make(map[byte]uint64, 4)}
}

// Observe records seq if it is the highest seen for domain.
func (t *PositionTracker) Observe(domain byte, seq uint64) {
	if seq > t.highest[domain] {
		t.highest[domain] = seq
	}
}

// Highest returns the highest sequence issued in domain, 0 if none.
func (t *PositionTracker) Highest(domain byte) uint64 {
	return t.highest[domain]
}

// Positions returns a copy of all high-water marks.
func (t *PositionTracker) Positions() map[byte]uint64 {
	out := make(map[byte]uint64, len(t.highest))
	for d, s := range t.highest {
		out[d] = s
	}
	return out
}
