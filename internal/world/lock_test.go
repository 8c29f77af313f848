package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotworld/datamodel/internal/core/fault"
)

func TestLock_AcquireBlocksUntilRelease(t *testing.T) {
	l := newLock()
	l.Acquire(RoleDataModel)

	acquired := make(chan struct{})
	go func() {
		l.Acquire(RoleImplementer)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("implementer acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release(RoleDataModel)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("implementer never acquired the lock")
	}
	assert.Equal(t, RoleImplementer, l.Holder())
	l.Release(RoleImplementer)
	assert.Equal(t, RoleNone, l.Holder())
}

func TestLock_ReleaseByWrongRoleIgnored(t *testing.T) {
	l := newLock()
	l.Acquire(RoleDataModel)
	l.Release(RoleImplementer)
	l.Release(RoleNone)
	assert.Equal(t, RoleDataModel, l.Holder())

	l.Release(RoleDataModel)
	l.Release(RoleDataModel)
	assert.Equal(t, RoleNone, l.Holder())
}

func TestLock_CanModify(t *testing.T) {
	l := newLock()
	l.Acquire(RoleImplementer)
	assert.True(t, l.CanModify(RoleDataModel), "not running yet")

	l.markRunning()
	assert.False(t, l.CanModify(RoleDataModel))
	assert.True(t, l.CanModify(RoleImplementer))

	l.Release(RoleImplementer)
	assert.True(t, l.CanModify(RoleDataModel))
}

func TestLock_ModifyWaitsForTick(t *testing.T) {
	w := New()
	s, err := w.AddSlot("S")
	require.NoError(t, err)

	w.Lock().Acquire(RoleDataModel)
	done := make(chan struct{})
	go func() {
		w.Modify(RoleImplementer, func() { s.Name.Set("renamed") })
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("Modify ran while the tick held the lock")
	case <-time.After(20 * time.Millisecond):
	}
	w.Lock().Release(RoleDataModel)
	<-done
	assert.Equal(t, "renamed", s.Name.Get())
	assert.Equal(t, "implementer", RoleImplementer.String())
}

func TestLock_CreationRefusedWhileOtherRoleHolds(t *testing.T) {
	var log []string
	w := newTestWorld(t, &log)
	s, err := w.AddSlot("S")
	require.NoError(t, err)
	w.RunTick(dt)

	w.Lock().Acquire(RoleImplementer)
	_, err = w.AddSlot("late")
	assert.ErrorIs(t, err, fault.ErrWrongRole)
	_, err = s.AddSlot("child")
	assert.ErrorIs(t, err, fault.ErrWrongRole)
	_, err = Attach[*idle](s)
	assert.ErrorIs(t, err, fault.ErrWrongRole)
	w.Lock().Release(RoleImplementer)

	created := make(chan error, 1)
	w.Lock().Acquire(RoleImplementer)
	go func() {
		w.Modify(RoleDataModel, func() {
			_, err := w.AddSlot("queued")
			created <- err
		})
	}()
	select {
	case <-created:
		t.Fatal("DataModel created while the implementer held the lock")
	case <-time.After(20 * time.Millisecond):
	}
	w.Lock().Release(RoleImplementer)
	select {
	case err := <-created:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("DataModel never got the lock")
	}
	assert.NotNil(t, w.Root().FindChild("queued"))
}
