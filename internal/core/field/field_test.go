package field

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotworld/datamodel/internal/core/fault"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/core/registry"
	"github.com/slotworld/datamodel/internal/math3d"
)

type fakeOwner struct {
	id           refid.RefID
	reg          *registry.Registry
	initializing bool
	changes      []string
	destroyed    bool
}

func newOwner(domain byte, seq uint64) *fakeOwner {
	return &fakeOwner{id: refid.FromParts(domain, seq), reg: registry.New()}
}

func (o *fakeOwner) ReferenceID() refid.RefID     { return o.id }
func (o *fakeOwner) Registry() *registry.Registry { return o.reg }
func (o *fakeOwner) IsInitializing() bool         { return o.initializing }
func (o *fakeOwner) IsDestroyed() bool            { return o.destroyed }
func (o *fakeOwner) MemberChanged(m Member)       { o.changes = append(o.changes, m.Name()) }

var nextSeq uint64 = 1000

func bind[M Member](o *fakeOwner, m M, name string, flags Flags) M {
	nextSeq++
	m.Initialize(o, refid.FromParts(o.id.Domain(), nextSeq), name, flags)
	o.reg.Register(m)
	return m
}

func panicErr(fn func()) (err error) {
	defer func() { err = fault.Recover(recover()) }()
	fn()
	return nil
}

func TestValue_SetMarksDirtyAndNotifies(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[int32]{}, "Count", 0)
	var seen []int32
	f.OnChanged(func(v *Value[int32]) { seen = append(seen, v.Get()) })

	f.Set(3)
	assert.Equal(t, int32(3), f.Get())
	assert.True(t, f.IsDirty())
	assert.Equal(t, []string{"Count"}, o.changes)
	assert.Equal(t, []int32{3}, seen)

	f.ClearDirty()
	f.Set(3)
	assert.False(t, f.IsDirty(), "equal value is not a change")
	assert.Len(t, o.changes, 1)
}

func TestValue_DriveOverridesUserWrites(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[int32]{}, "F", 0)
	f.Set(1)
	f.ClearDirty()

	drive := Drive[int32](refid.FromParts(0, 77))
	f.Link(drive)
	assert.True(t, f.IsDriven())

	f.Set(99)
	assert.Equal(t, int32(1), f.Get())

	assert.True(t, drive.Write(42))
	assert.Equal(t, int32(42), f.Get())
	assert.False(t, f.IsDirty(), "driven values are local state")
}

func TestValue_LinkExclusivity(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[float32]{}, "Speed", 0)
	a := Drive[float32](refid.FromParts(0, 10))
	b := Drive[float32](refid.FromParts(0, 11))

	f.Link(a)
	f.Link(b)
	assert.Same(t, b, f.ActiveLink())
	assert.False(t, a.IsActive())

	a.Release()
	assert.Same(t, b, f.ActiveLink(), "releasing a superseded link is a no-op")
	assert.False(t, f.ReleaseLink(a))
	assert.False(t, a.Write(5), "superseded link cannot write")
	assert.Equal(t, float32(0), f.Get())

	b.Release()
	assert.Nil(t, f.ActiveLink())
	f.Set(2)
	assert.Equal(t, float32(2), f.Get())
}

func TestValue_HookRedirectsWrites(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[float32]{}, "Clamped", 0)
	calls := 0
	hook := Hook[float32](refid.FromParts(0, 12), func(v *Value[float32], requested float32) {
		calls++
		if requested > 10 {
			requested = 10
		}
		if requested < 0 {
			return // suppress
		}
		v.Set(requested)
	})
	f.Link(hook)

	f.Set(25)
	assert.Equal(t, float32(10), f.Get())
	assert.True(t, f.IsDirty())

	f.Set(-1)
	assert.Equal(t, float32(10), f.Get(), "hook suppressed the write")
	assert.Equal(t, 2, calls)
}

func TestValue_HookBypassedWhileInitializing(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[int32]{}, "V", 0)
	calls := 0
	f.Link(Hook[int32](refid.Null, func(*Value[int32], int32) { calls++ }))

	o.initializing = true
	f.Set(4)
	o.initializing = false
	assert.Equal(t, int32(4), f.Get())
	assert.Zero(t, calls)
}

func TestValue_DecodeBypassesLinksAndStaysClean(t *testing.T) {
	o := newOwner(0, 1)
	src := NewValue[string]("héllo")
	w := NewWriter()
	src.Encode(w)

	f := bind(o, &Value[string]{}, "Name", 0)
	f.Link(Hook[string](refid.Null, func(*Value[string], string) { t.Fatal("hook must not run while loading") }))
	require.NoError(t, f.Decode(NewReader(w.Bytes())))
	assert.Equal(t, "héllo", f.Get())
	assert.False(t, f.IsDirty())
	assert.Equal(t, []string{"Name"}, o.changes, "owner still learns about the change")
}

func TestValue_LoadRejectsTrailingBytes(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[int32]{}, "Count", 0)
	w := NewWriter()
	w.WriteI32(7)

	require.NoError(t, f.Load(w.Bytes()))
	assert.Equal(t, int32(7), f.Get())
	assert.False(t, f.IsDirty())

	w.Reset()
	w.WriteI32(9)
	w.WriteU8(1)
	assert.ErrorIs(t, f.Load(w.Bytes()), ErrTrailingBytes)
	assert.ErrorIs(t, f.Load([]byte{1}), ErrShortBuffer)
	assert.Equal(t, int32(7), f.Get())
}

func TestValue_InheritedLinkTakesPrecedence(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[int32]{}, "Order", Inheritable)
	direct := Drive[int32](refid.FromParts(0, 1))
	inherited := Drive[int32](refid.FromParts(0, 2))

	f.Link(direct)
	f.InheritLink(inherited)
	assert.Same(t, inherited, f.ActiveLink())
	assert.False(t, direct.Write(3))
	assert.True(t, inherited.Write(4))

	inherited.Release()
	assert.Same(t, direct, f.ActiveLink())
}

func TestValue_InheritUnsupported(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[int32]{}, "Plain", 0)
	err := panicErr(func() { f.InheritLink(Drive[int32](refid.Null)) })
	assert.ErrorIs(t, err, fault.ErrInheritUnsupported)
}

func TestValue_NonDrivable(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[bool]{}, "Locked", NonDrivable)
	err := panicErr(func() { f.Link(Drive[bool](refid.Null)) })
	assert.ErrorIs(t, err, fault.ErrNotDrivable)
	f.Link(Hook[bool](refid.Null, func(v *Value[bool], b bool) { v.Set(b) }))
	f.Set(true)
	assert.True(t, f.Get())
}

func TestValue_LinkMovesBetweenFields(t *testing.T) {
	o := newOwner(0, 1)
	a := bind(o, &Value[int32]{}, "A", 0)
	b := bind(o, &Value[int32]{}, "B", 0)
	l := Drive[int32](refid.Null)
	a.Link(l)
	b.Link(l)
	assert.False(t, a.IsLinked())
	assert.Same(t, b, l.Target())
}

func TestValue_Dispose(t *testing.T) {
	o := newOwner(0, 1)
	f := bind(o, &Value[int32]{}, "Gone", 0)
	l := Drive[int32](refid.Null)
	f.Link(l)
	f.Dispose()
	assert.True(t, f.IsDestroyed())
	assert.False(t, l.IsActive())
	assert.Nil(t, l.Target())
}

func TestValue_Assign(t *testing.T) {
	f := NewValue[math3d.Float3](math3d.Float3{})
	require.NoError(t, f.Assign([]any{1, 2.5, -3}))
	assert.Equal(t, math3d.Float3{X: 1, Y: 2.5, Z: -3}, f.Get())
	assert.Error(t, f.Assign("nope"))

	i := NewValue[int32](0)
	require.NoError(t, i.Assign(7))
	assert.Equal(t, int32(7), i.Get())
}

func TestValue_MissingCodecPanics(t *testing.T) {
	type custom struct{ A int }
	f := &Value[custom]{}
	assert.Panics(t, func() { f.Initialize(nil, refid.FromParts(0, 1), "c", 0) })
}

func TestLinkKind_String(t *testing.T) {
	assert.Equal(t, "drive", LinkDrive.String())
	assert.Equal(t, "hook", LinkHook.String())
	assert.True(t, errors.Is(fault.New("x", nil, fault.ErrNotDrivable), fault.ErrNotDrivable))
}
