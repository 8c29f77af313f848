package refid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotworld/datamodel/internal/core/fault"
)

func mustAllocate(t *testing.T, a *Allocator) RefID {
	t.Helper()
	id, err := a.Allocate()
	require.NoError(t, err)
	return id
}

func violationOf(t *testing.T, fn func()) error {
	t.Helper()
	var got error
	func() {
		defer func() { got = fault.Recover(recover()) }()
		fn()
	}()
	require.Error(t, got, "expected a contract violation")
	var v *fault.Violation
	require.True(t, errors.As(got, &v), "panic value should be a *fault.Violation, got %T", got)
	return got
}

func TestAllocator_SequentialNeverNull(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	first := mustAllocate(t, a)
	assert.False(t, first.IsNull())
	assert.Equal(t, uint64(1), first.Sequence())
	second := mustAllocate(t, a)
	assert.Equal(t, first.Sequence()+1, second.Sequence())
}

func TestAllocator_PeekDoesNotConsume(t *testing.T) {
	a := NewAllocator(5)
	peeked := a.Peek()
	assert.Equal(t, peeked, a.Peek())
	assert.Equal(t, peeked, mustAllocate(t, a))
	assert.NotEqual(t, peeked, a.Peek())
}

func TestAllocator_BlockedSignalsError(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	a.Block()
	_, err := a.Allocate()
	assert.ErrorIs(t, err, fault.ErrAllocationBlocked)
	a.Unblock()
	id := mustAllocate(t, a)
	assert.Equal(t, uint64(1), id.Sequence(), "blocked attempt consumed nothing")
}

func TestAllocator_NestedBlocksRestoreContext(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	mustAllocate(t, a)
	before := a.Peek()

	a.BeginBlock(7, 100)
	assert.Equal(t, FromParts(7, 100), mustAllocate(t, a))
	a.BeginLocalBlock()
	local := mustAllocate(t, a)
	assert.Equal(t, DomainLocal, local.Domain())
	a.BeginBlock(9, 5)
	assert.Equal(t, FromParts(9, 5), mustAllocate(t, a))
	a.EndBlock()
	a.EndLocalBlock()
	assert.Equal(t, FromParts(7, 101), mustAllocate(t, a))
	a.EndBlock()

	assert.Equal(t, before, a.Peek())
	assert.Equal(t, 0, a.Depth())
}

func TestAllocator_UnbalancedEndBlockRejected(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	err := violationOf(t, a.EndBlock)
	assert.ErrorIs(t, err, fault.ErrEmptyBlockStack)

	a.BeginBlock(3, 1)
	a.EndBlock()
	err = violationOf(t, a.EndBlock)
	assert.ErrorIs(t, err, fault.ErrEmptyBlockStack)
}

func TestAllocator_EndLocalBlockOutsideLocalRejected(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	err := violationOf(t, a.EndLocalBlock)
	assert.ErrorIs(t, err, fault.ErrNotInLocalBlock)

	a.BeginLocalBlock()
	a.BeginBlock(4, 1)
	err = violationOf(t, a.EndLocalBlock)
	assert.ErrorIs(t, err, fault.ErrNotInLocalBlock, "an inner non-local block must be closed first")
}

func TestAllocator_EndBlockCannotCloseLocalBlock(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	a.BeginLocalBlock()
	first := mustAllocate(t, a)

	err := violationOf(t, a.EndBlock)
	assert.ErrorIs(t, err, fault.ErrBlockMismatch)
	assert.True(t, a.InLocalBlock(), "local block still open")
	assert.Equal(t, DomainLocal, a.Domain())

	a.EndLocalBlock()
	a.BeginLocalBlock()
	second := mustAllocate(t, a)
	a.EndLocalBlock()
	assert.NotEqual(t, first, second, "local sequence not reused")
	assert.Equal(t, 0, a.Depth())
}

func TestAllocator_EndLocalBlockCannotCloseReplayBlock(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	a.BeginLocalBlock()
	a.BeginBlock(DomainLocal, 40)
	err := violationOf(t, a.EndLocalBlock)
	assert.ErrorIs(t, err, fault.ErrNotInLocalBlock)
	a.EndBlock()
	a.EndLocalBlock()
	assert.Equal(t, 0, a.Depth())
}

func TestAllocator_LocalCursorSurvivesBlocks(t *testing.T) {
	a := NewAllocator(DomainAuthority)

	a.BeginLocalBlock()
	l1 := mustAllocate(t, a)
	a.BeginLocalBlock()
	l2 := mustAllocate(t, a)
	a.EndLocalBlock()
	l3 := mustAllocate(t, a)
	a.EndLocalBlock()

	a.BeginLocalBlock()
	l4 := mustAllocate(t, a)
	a.EndLocalBlock()

	seqs := []uint64{l1.Sequence(), l2.Sequence(), l3.Sequence(), l4.Sequence()}
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs, "local sequences never repeat")
	assert.False(t, a.InLocalBlock())
	assert.Equal(t, DomainAuthority, a.Domain())
}

func TestAllocator_TracksHighestPerDomain(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	mustAllocate(t, a)
	mustAllocate(t, a)
	a.BeginBlock(3, 50)
	mustAllocate(t, a)
	a.EndBlock()
	a.BeginBlock(3, 10)
	mustAllocate(t, a)
	a.EndBlock()

	pos := a.Tracker().Positions()
	assert.Equal(t, uint64(2), pos[DomainAuthority])
	assert.Equal(t, uint64(50), pos[3])
}

func TestAllocator_RestoreOnlyMovesForward(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	a.Restore(map[byte]uint64{DomainAuthority: 99, DomainLocal: 10})
	assert.Equal(t, FromParts(DomainAuthority, 100), mustAllocate(t, a))

	a.Restore(map[byte]uint64{DomainAuthority: 5})
	assert.Equal(t, FromParts(DomainAuthority, 101), mustAllocate(t, a))

	a.BeginLocalBlock()
	assert.Equal(t, FromParts(DomainLocal, 11), mustAllocate(t, a))
	a.EndLocalBlock()
}

func TestAllocator_Rebase(t *testing.T) {
	a := NewAllocator(DomainAuthority)
	a.Restore(map[byte]uint64{12: 30})
	a.Rebase(12)
	assert.Equal(t, FromParts(12, 31), mustAllocate(t, a))

	a.BeginBlock(1, 1)
	err := violationOf(t, func() { a.Rebase(2) })
	assert.ErrorIs(t, err, fault.ErrBlocksOpen)
}
