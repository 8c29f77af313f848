package world

import (
	"sync"
	"sync/atomic"
)

// Role is one of the two logical threads that may touch a world.
type Role uint8

const (
	RoleNone Role = iota
	// RoleDataModel runs the simulation tick.
	RoleDataModel
	// RoleImplementer applies hook updates and platform input.
	RoleImplementer
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleDataModel:
		return "datamodel"
	case RoleImplementer:
		return "implementer"
	}
	return "unknown"
}

// Lock is the world mutex with ownership typing: it remembers which role
// holds it. Acquire blocks on a condition variable, never spins.
type Lock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	holder  Role
	running atomic.Bool
}

func newLock() *Lock {
	l := &Lock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until the lock is free and records role as its holder.
func (l *Lock) Acquire(role Role) {
	l.mu.Lock()
	for l.holder != RoleNone {
		l.cond.Wait()
	}
	l.holder = role
	l.mu.Unlock()
}

// Release frees the lock if role holds it. A release by the wrong role, or
// a second release, is ignored.
func (l *Lock) Release(role Role) {
	l.mu.Lock()
	if l.holder != role || role == RoleNone {
		l.mu.Unlock()
		return
	}
	l.holder = RoleNone
	l.mu.Unlock()
	l.cond.Signal()
}

// Holder returns the role currently holding the lock.
func (l *Lock) Holder() Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// CanModify reports whether role may mutate the graph right now: the lock is
// free, the world has not started running, or role holds the lock.
func (l *Lock) CanModify(role Role) bool {
	if !l.running.Load() {
		return true
	}
	h := l.Holder()
	return h == RoleNone || h == role
}

func (l *Lock) markRunning() { l.running.Store(true) }
