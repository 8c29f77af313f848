package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/math3d"
)

func roundTrip[T comparable](t *testing.T, v T) {
	t.Helper()
	src := NewValue[T](v)
	w := NewWriter()
	src.Encode(w)

	dst := NewValue[T](*new(T))
	require.NoError(t, dst.Decode(NewReader(w.Bytes())))
	assert.Equal(t, v, dst.Get())
}

func TestCodecs_RoundTrip(t *testing.T) {
	roundTrip(t, true)
	roundTrip(t, int32(-123456))
	roundTrip(t, int64(1)<<62)
	roundTrip(t, uint64(1)<<63)
	roundTrip(t, float32(3.25))
	roundTrip(t, -2.5e100)
	roundTrip(t, "slot ✓")
	roundTrip(t, "")
	roundTrip(t, refid.FromParts(9, 12345))
	roundTrip(t, math3d.Float3{X: 1, Y: -2, Z: 3.5})
	roundTrip(t, math3d.AxisAngle(math3d.Float3{Y: 1}, 0.7))
}

type blend int32

const (
	blendOpaque blend = iota
	blendAlpha
)

func TestEnumCodec(t *testing.T) {
	c := EnumCodec(map[string]blend{"opaque": blendOpaque, "alpha": blendAlpha})
	f := &Value[blend]{}
	f.UseCodec(c)
	f.Initialize(nil, refid.FromParts(0, 1), "Blend", 0)
	require.NoError(t, f.Assign("alpha"))
	assert.Equal(t, blendAlpha, f.Get())
	assert.Error(t, f.Assign("glow"))

	w := NewWriter()
	f.Encode(w)
	g := &Value[blend]{}
	g.UseCodec(c)
	require.NoError(t, g.Decode(NewReader(w.Bytes())))
	assert.Equal(t, blendAlpha, g.Get())
}

func TestString_RoundTripKeepsBytes(t *testing.T) {
	decomposed := "e\u0301"
	src := NewValue(decomposed)
	w := NewWriter()
	src.Encode(w)

	dst := NewValue("")
	require.NoError(t, dst.Decode(NewReader(w.Bytes())))
	assert.Equal(t, decomposed, dst.Get())
	assert.Equal(t, src.Get(), dst.Get())
}

func TestString_SetNormalizes(t *testing.T) {
	v := NewValue("")
	v.Set("e\u0301")
	assert.Equal(t, "\u00e9", v.Get())

	w := NewWriter()
	v.Encode(w)
	got := NewValue("")
	require.NoError(t, got.Decode(NewReader(w.Bytes())))
	assert.Equal(t, v.Get(), got.Get())

	v.Reset("e\u0301")
	assert.Equal(t, "\u00e9", v.Get())
}

func TestDecode_Truncated(t *testing.T) {
	w := NewWriter()
	Float3Codec.Encode(w, math3d.Float3{X: 1, Y: 2, Z: 3})
	short := w.Bytes()[:7]

	f := NewValue[math3d.Float3](math3d.One3)
	err := f.Decode(NewReader(short))
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Equal(t, math3d.One3, f.Get(), "failed decode leaves the value untouched")

	r := NewReader([]byte{5, 'a'})
	assert.Equal(t, "", r.ReadString())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
}

func TestCodecFor(t *testing.T) {
	assert.NotNil(t, CodecFor[float32]())
	assert.NotNil(t, CodecFor[math3d.FloatQ]())
	assert.Nil(t, CodecFor[blend]())
}
