// Package fault defines the contract-violation errors of the data model core.
//
// A Violation means an invariant of the replicated graph was about to be
// broken by the caller. Allocator, registry and link violations are raised
// with panic; operations that document an error return (SetParent, SetTarget)
// return the Violation instead.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrCollision          = errors.New("reference id already registered")
	ErrNullRef            = errors.New("null reference id cannot be registered")
	ErrEmptyBlockStack    = errors.New("allocation block stack is empty")
	ErrNotInLocalBlock    = errors.New("not inside a local allocation block")
	ErrBlockMismatch      = errors.New("allocation block closed by the wrong end call")
	ErrBlocksOpen         = errors.New("allocation blocks are still open")
	ErrCrossDomainRef     = errors.New("replicated element cannot reference a local element")
	ErrForeignWorld       = errors.New("target belongs to a different world")
	ErrCyclicParent       = errors.New("slot cannot be parented under its own descendant")
	ErrInheritUnsupported = errors.New("member does not support link inheritance")
	ErrNotDrivable        = errors.New("member cannot be driven")
)

// ErrAllocationBlocked is returned, not raised: allocating while the
// allocator is blocked is an expected condition.
var ErrAllocationBlocked = errors.New("reference allocation is blocked")

// ErrWrongRole is returned when the world lock is held by a role that may
// not perform the operation.
var ErrWrongRole = errors.New("world lock held by another role")

// Violation is a broken contract. Ref is the textual RefID of the element
// involved, empty when there is none.
type Violation struct {
	Op  string
	Ref string
	Err error
}

func (v *Violation) Error() string {
	if v.Ref != "" {
		return fmt.Sprintf("%s %s: %v", v.Op, v.Ref, v.Err)
	}
	return fmt.Sprintf("%s: %v", v.Op, v.Err)
}

func (v *Violation) Unwrap() error { return v.Err }

// New builds a Violation.
func New(op string, ref fmt.Stringer, err error) *Violation {
	v := &Violation{Op: op, Err: err}
	if ref != nil {
		v.Ref = ref.String()
	}
	return v
}

// Raise panics with a Violation.
func Raise(op string, ref fmt.Stringer, err error) {
	panic(New(op, ref, err))
}

// Recover converts a recovered panic value back into an error. It returns
// nil for a nil value and wraps non-error values.
func Recover(r any) error {
	switch v := r.(type) {
	case nil:
		return nil
	case error:
		return v
	default:
		return fmt.Errorf("panic: %v", v)
	}
}
