package field

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/math3d"
)

// Codec serializes one value type. FromAny converts loosely typed template
// data (YAML scalars and lists) into T.
type Codec[T any] interface {
	Encode(w *Writer, v T)
	Decode(r *Reader) (T, error)
	FromAny(v any) (T, error)
}

// Normalizer is implemented by codecs that canonicalize values before they
// are stored through the write path. Decoding never normalizes.
type Normalizer[T any] interface {
	Normalize(v T) T
}

type codecFuncs[T any] struct {
	enc  func(*Writer, T)
	dec  func(*Reader) T
	conv func(any) (T, error)
	norm func(T) T
}

func (c codecFuncs[T]) Encode(w *Writer, v T) { c.enc(w, v) }

func (c codecFuncs[T]) Decode(r *Reader) (T, error) {
	v := c.dec(r)
	if err := r.Err(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (c codecFuncs[T]) Normalize(v T) T {
	if c.norm == nil {
		return v
	}
	return c.norm(v)
}

func (c codecFuncs[T]) FromAny(v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	return c.conv(v)
}

var (
	BoolCodec Codec[bool] = codecFuncs[bool]{
		enc: (*Writer).WriteBool,
		dec: (*Reader).ReadBool,
		conv: func(v any) (bool, error) {
			return false, convErr[bool](v)
		},
	}
	Int32Codec Codec[int32] = codecFuncs[int32]{
		enc: (*Writer).WriteI32,
		dec: (*Reader).ReadI32,
		conv: func(v any) (int32, error) {
			f, err := toFloat(v)
			return int32(f), err
		},
	}
	Int64Codec Codec[int64] = codecFuncs[int64]{
		enc: (*Writer).WriteI64,
		dec: (*Reader).ReadI64,
		conv: func(v any) (int64, error) {
			if i, ok := v.(int); ok {
				return int64(i), nil
			}
			f, err := toFloat(v)
			return int64(f), err
		},
	}
	Uint64Codec Codec[uint64] = codecFuncs[uint64]{
		enc: (*Writer).WriteU64,
		dec: (*Reader).ReadU64,
		conv: func(v any) (uint64, error) {
			if i, ok := v.(int); ok && i >= 0 {
				return uint64(i), nil
			}
			f, err := toFloat(v)
			return uint64(f), err
		},
	}
	Float32Codec Codec[float32] = codecFuncs[float32]{
		enc: (*Writer).WriteF32,
		dec: (*Reader).ReadF32,
		conv: func(v any) (float32, error) {
			f, err := toFloat(v)
			return float32(f), err
		},
	}
	Float64Codec Codec[float64] = codecFuncs[float64]{
		enc:  (*Writer).WriteF64,
		dec:  (*Reader).ReadF64,
		conv: toFloat,
	}
	StringCodec Codec[string] = codecFuncs[string]{
		enc: (*Writer).WriteString,
		dec: (*Reader).ReadString,
		conv: func(v any) (string, error) {
			if s, ok := v.(fmt.Stringer); ok {
				return s.String(), nil
			}
			return fmt.Sprint(v), nil
		},
		// Text typed on different peers compares equal once stored.
		norm: norm.NFC.String,
	}
	RefIDCodec Codec[refid.RefID] = codecFuncs[refid.RefID]{
		enc: (*Writer).WriteRefID,
		dec: (*Reader).ReadRefID,
		conv: func(v any) (refid.RefID, error) {
			s, ok := v.(string)
			if !ok {
				return refid.Null, convErr[refid.RefID](v)
			}
			return refid.Parse(s)
		},
	}
	Float3Codec Codec[math3d.Float3] = codecFuncs[math3d.Float3]{
		enc: func(w *Writer, v math3d.Float3) {
			w.WriteF32(v.X)
			w.WriteF32(v.Y)
			w.WriteF32(v.Z)
		},
		dec: func(r *Reader) math3d.Float3 {
			return math3d.Float3{X: r.ReadF32(), Y: r.ReadF32(), Z: r.ReadF32()}
		},
		conv: func(v any) (math3d.Float3, error) {
			f, err := toFloats(v, 3)
			if err != nil {
				return math3d.Float3{}, err
			}
			return math3d.Float3{X: f[0], Y: f[1], Z: f[2]}, nil
		},
	}
	FloatQCodec Codec[math3d.FloatQ] = codecFuncs[math3d.FloatQ]{
		enc: func(w *Writer, v math3d.FloatQ) {
			w.WriteF32(v.X)
			w.WriteF32(v.Y)
			w.WriteF32(v.Z)
			w.WriteF32(v.W)
		},
		dec: func(r *Reader) math3d.FloatQ {
			return math3d.FloatQ{X: r.ReadF32(), Y: r.ReadF32(), Z: r.ReadF32(), W: r.ReadF32()}
		},
		conv: func(v any) (math3d.FloatQ, error) {
			f, err := toFloats(v, 4)
			if err != nil {
				return math3d.FloatQ{}, err
			}
			return math3d.FloatQ{X: f[0], Y: f[1], Z: f[2], W: f[3]}.Normalized(), nil
		},
	}
)

// EnumCodec encodes an int32-backed enum. names maps template strings to
// values; it may be nil.
func EnumCodec[T ~int32](names map[string]T) Codec[T] {
	return codecFuncs[T]{
		enc: func(w *Writer, v T) { w.WriteI32(int32(v)) },
		dec: func(r *Reader) T { return T(r.ReadI32()) },
		conv: func(v any) (T, error) {
			if s, ok := v.(string); ok {
				if e, ok := names[s]; ok {
					return e, nil
				}
				return 0, fmt.Errorf("unknown enum name %q", s)
			}
			f, err := toFloat(v)
			return T(f), err
		},
	}
}

// CodecFor returns the built-in codec for T, or nil when T has none.
func CodecFor[T any]() Codec[T] {
	var zero T
	var c any
	switch any(zero).(type) {
	case bool:
		c = BoolCodec
	case int32:
		c = Int32Codec
	case int64:
		c = Int64Codec
	case uint64:
		c = Uint64Codec
	case float32:
		c = Float32Codec
	case float64:
		c = Float64Codec
	case string:
		c = StringCodec
	case refid.RefID:
		c = RefIDCodec
	case math3d.Float3:
		c = Float3Codec
	case math3d.FloatQ:
		c = FloatQCodec
	default:
		return nil
	}
	return c.(Codec[T])
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, convErr[float64](v)
}

func toFloats(v any, n int) ([]float32, error) {
	list, ok := v.([]any)
	if !ok || len(list) != n {
		return nil, fmt.Errorf("expected a list of %d numbers, got %v", n, v)
	}
	out := make([]float32, n)
	for i, item := range list {
		f, err := toFloat(item)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

func convErr[T any](v any) error {
	var zero T
	return fmt.Errorf("cannot convert %T to %T", v, zero)
}
