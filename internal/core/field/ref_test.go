package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotworld/datamodel/internal/core/fault"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/core/registry"
)

type target struct {
	id        refid.RefID
	reg       *registry.Registry
	destroyed bool
}

func (t *target) ReferenceID() refid.RefID     { return t.id }
func (t *target) IsDestroyed() bool            { return t.destroyed }
func (t *target) Registry() *registry.Registry { return t.reg }

type stranger struct{ id refid.RefID }

func (s *stranger) ReferenceID() refid.RefID { return s.id }
func (s *stranger) IsDestroyed() bool        { return false }

func TestRef_WaitsThenResolves(t *testing.T) {
	o := newOwner(0, 1)
	r := bind(o, &Ref[*target]{}, "Target", 0)
	assert.Equal(t, RefNull, r.State())

	var available, changed int
	r.OnAvailable(func(*Ref[*target]) { available++ })
	r.OnTargetChanged(func(*Ref[*target]) { changed++ })

	id := refid.FromParts(0, 500)
	r.Set(id)
	assert.Equal(t, RefWaiting, r.State())
	assert.Equal(t, 1, o.reg.PendingCount(id))
	_, ok := r.Target()
	assert.False(t, ok)

	tgt := &target{id: id, reg: o.reg}
	o.reg.Register(tgt)
	require.Equal(t, RefAvailable, r.State())
	got, ok := r.Target()
	require.True(t, ok)
	assert.Same(t, tgt, got)
	assert.Equal(t, 1, available)
	assert.Equal(t, 2, changed, "waiting then available")
	assert.Zero(t, o.reg.PendingCount(id))
}

func TestRef_ResolvesImmediatelyWhenPresent(t *testing.T) {
	o := newOwner(0, 1)
	tgt := &target{id: refid.FromParts(0, 501), reg: o.reg}
	o.reg.Register(tgt)

	r := bind(o, &Ref[*target]{}, "Target", 0)
	var changed int
	r.OnTargetChanged(func(*Ref[*target]) { changed++ })
	require.NoError(t, r.SetTarget(tgt))
	assert.Equal(t, RefAvailable, r.State())
	assert.Equal(t, 1, changed)
	assert.True(t, r.IsDirty())
}

func TestRef_WrongTypeIsInvalid(t *testing.T) {
	o := newOwner(0, 1)
	r := bind(o, &Ref[*target]{}, "Target", 0)
	id := refid.FromParts(0, 502)
	r.Set(id)
	o.reg.Register(&stranger{id: id})
	assert.Equal(t, RefInvalid, r.State())
	_, ok := r.Target()
	assert.False(t, ok)
}

func TestRef_DestroyedTargetIsRemoved(t *testing.T) {
	o := newOwner(0, 1)
	tgt := &target{id: refid.FromParts(0, 503), reg: o.reg}
	o.reg.Register(tgt)
	r := bind(o, &Ref[*target]{}, "Target", 0)
	require.NoError(t, r.SetTarget(tgt))

	tgt.destroyed = true
	assert.Equal(t, RefRemoved, r.State())
	assert.Equal(t, tgt.id, r.TargetID(), "id survives the target")
}

func TestRef_StaleDeliveryIgnored(t *testing.T) {
	o := newOwner(0, 1)
	r := bind(o, &Ref[*target]{}, "Target", 0)
	first := refid.FromParts(0, 504)
	second := refid.FromParts(0, 505)
	r.Set(first)
	r.Set(second)
	assert.Zero(t, o.reg.PendingCount(first))

	o.reg.Register(&target{id: first, reg: o.reg})
	assert.Equal(t, RefWaiting, r.State())

	o.reg.Register(&target{id: second, reg: o.reg})
	assert.Equal(t, RefAvailable, r.State())
}

func TestRef_LocalTargetRejected(t *testing.T) {
	o := newOwner(0, 1)
	local := &target{id: refid.FromParts(refid.DomainLocal, 1), reg: o.reg}
	r := bind(o, &Ref[*target]{}, "Target", 0)

	err := r.SetTarget(local)
	assert.ErrorIs(t, err, fault.ErrCrossDomainRef)
	var v *fault.Violation
	assert.ErrorAs(t, err, &v)
	assert.True(t, r.TargetID().IsNull())

	lo := newOwner(refid.DomainLocal, 2)
	lo.reg = o.reg
	lr := bind(lo, &Ref[*target]{}, "Target", 0)
	assert.NoError(t, lr.SetTarget(local), "local elements may reference local elements")
}

func TestRef_ForeignWorldRejected(t *testing.T) {
	o := newOwner(0, 1)
	other := registry.New()
	r := bind(o, &Ref[*target]{}, "Target", 0)
	err := r.SetTarget(&target{id: refid.FromParts(0, 9), reg: other})
	assert.ErrorIs(t, err, fault.ErrForeignWorld)
}

func TestRef_NilTargetClears(t *testing.T) {
	o := newOwner(0, 1)
	tgt := &target{id: refid.FromParts(0, 506), reg: o.reg}
	o.reg.Register(tgt)
	r := bind(o, &Ref[*target]{}, "Target", 0)
	require.NoError(t, r.SetTarget(tgt))
	require.NoError(t, r.SetTarget(nil))
	assert.Equal(t, RefNull, r.State())
}

func TestRef_DecodeResolves(t *testing.T) {
	o := newOwner(0, 1)
	tgt := &target{id: refid.FromParts(3, 77), reg: o.reg}
	o.reg.Register(tgt)

	w := NewWriter()
	w.WriteRefID(tgt.id)
	r := bind(o, &Ref[*target]{}, "Target", 0)
	require.NoError(t, r.Decode(NewReader(w.Bytes())))
	assert.Equal(t, RefAvailable, r.State())
	assert.False(t, r.IsDirty())
}

func TestRef_DisposeCancelsRequest(t *testing.T) {
	o := newOwner(0, 1)
	r := bind(o, &Ref[*target]{}, "Target", 0)
	id := refid.FromParts(0, 507)
	r.Set(id)
	r.Dispose()
	assert.Zero(t, o.reg.PendingCount(id))
	assert.True(t, r.IsDestroyed())
}

func TestRef_AssignParsesText(t *testing.T) {
	o := newOwner(0, 1)
	r := bind(o, &Ref[*target]{}, "Target", 0)
	id := refid.FromParts(2, 0xAB)
	require.NoError(t, r.Assign(id.String()))
	assert.Equal(t, id, r.TargetID())
	assert.Error(t, r.Assign(12))
}
