// Package math3d holds the small set of vector, quaternion and matrix value
// types the scene graph needs for slot transforms.
package math3d

import "math"

// Float3 is a 3-component vector.
type Float3 struct {
	X, Y, Z float32
}

var (
	Zero3 = Float3{}
	One3  = Float3{1, 1, 1}
)

func (a Float3) Add(b Float3) Float3 { return Float3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Float3) Sub(b Float3) Float3 { return Float3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Float3) Mul(b Float3) Float3 { return Float3{a.X * b.X, a.Y * b.Y, a.Z * b.Z} }
func (a Float3) Scale(s float32) Float3 {
	return Float3{a.X * s, a.Y * s, a.Z * s}
}

// Div divides component-wise. Zero components of b yield zero.
func (a Float3) Div(b Float3) Float3 {
	return Float3{safeDiv(a.X, b.X), safeDiv(a.Y, b.Y), safeDiv(a.Z, b.Z)}
}

func (a Float3) Dot(b Float3) float32 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func (a Float3) Cross(b Float3) Float3 {
	return Float3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

func (a Float3) Length() float32 {
	return float32(math.Sqrt(float64(a.Dot(a))))
}

// ApproxEqual compares component-wise within eps.
func (a Float3) ApproxEqual(b Float3, eps float32) bool {
	return abs(a.X-b.X) <= eps && abs(a.Y-b.Y) <= eps && abs(a.Z-b.Z) <= eps
}

// FloatQ is a rotation quaternion (X, Y, Z imaginary, W real).
type FloatQ struct {
	X, Y, Z, W float32
}

// IdentityQ is the no-rotation quaternion.
var IdentityQ = FloatQ{W: 1}

// AxisAngle builds a rotation of radians around axis.
func AxisAngle(axis Float3, radians float32) FloatQ {
	l := axis.Length()
	if l == 0 {
		return IdentityQ
	}
	axis = axis.Scale(1 / l)
	s, c := math.Sincos(float64(radians) / 2)
	return FloatQ{axis.X * float32(s), axis.Y * float32(s), axis.Z * float32(s), float32(c)}
}

// Mul composes rotations: the result applies b first, then q.
func (q FloatQ) Mul(b FloatQ) FloatQ {
	return FloatQ{
		X: q.W*b.X + q.X*b.W + q.Y*b.Z - q.Z*b.Y,
		Y: q.W*b.Y - q.X*b.Z + q.Y*b.W + q.Z*b.X,
		Z: q.W*b.Z + q.X*b.Y - q.Y*b.X + q.Z*b.W,
		W: q.W*b.W - q.X*b.X - q.Y*b.Y - q.Z*b.Z,
	}
}

// Conjugate is the inverse of a unit quaternion.
func (q FloatQ) Conjugate() FloatQ { return FloatQ{-q.X, -q.Y, -q.Z, q.W} }

func (q FloatQ) Normalized() FloatQ {
	l := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if l == 0 {
		return IdentityQ
	}
	return FloatQ{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// Rotate applies q to v.
func (q FloatQ) Rotate(v Float3) Float3 {
	u := Float3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// ApproxEqual treats q and -q as the same rotation.
func (q FloatQ) ApproxEqual(b FloatQ, eps float32) bool {
	d := q.X*b.X + q.Y*b.Y + q.Z*b.Z + q.W*b.W
	return abs(abs(d)-1) <= eps
}

// Float4x4 is a row-major 4x4 matrix; M[row][col]. Points are column vectors.
type Float4x4 struct {
	M [4][4]float32
}

func Identity4() Float4x4 {
	var m Float4x4
	for i := 0; i < 4; i++ {
		m.M[i][i] = 1
	}
	return m
}

// TRS composes translation * rotation * scale.
func TRS(t Float3, r FloatQ, s Float3) Float4x4 {
	r = r.Normalized()
	xx, yy, zz := r.X*r.X, r.Y*r.Y, r.Z*r.Z
	xy, xz, yz := r.X*r.Y, r.X*r.Z, r.Y*r.Z
	wx, wy, wz := r.W*r.X, r.W*r.Y, r.W*r.Z

	var m Float4x4
	m.M[0] = [4]float32{(1 - 2*(yy+zz)) * s.X, 2 * (xy - wz) * s.Y, 2 * (xz + wy) * s.Z, t.X}
	m.M[1] = [4]float32{2 * (xy + wz) * s.X, (1 - 2*(xx+zz)) * s.Y, 2 * (yz - wx) * s.Z, t.Y}
	m.M[2] = [4]float32{2 * (xz - wy) * s.X, 2 * (yz + wx) * s.Y, (1 - 2*(xx+yy)) * s.Z, t.Z}
	m.M[3] = [4]float32{0, 0, 0, 1}
	return m
}

func (a Float4x4) Mul(b Float4x4) Float4x4 {
	var r Float4x4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += a.M[i][k] * b.M[k][j]
			}
			r.M[i][j] = s
		}
	}
	return r
}

// MulPoint transforms p as a point (w = 1).
func (a Float4x4) MulPoint(p Float3) Float3 {
	return Float3{
		a.M[0][0]*p.X + a.M[0][1]*p.Y + a.M[0][2]*p.Z + a.M[0][3],
		a.M[1][0]*p.X + a.M[1][1]*p.Y + a.M[1][2]*p.Z + a.M[1][3],
		a.M[2][0]*p.X + a.M[2][1]*p.Y + a.M[2][2]*p.Z + a.M[2][3],
	}
}

// MulVector transforms v as a direction (w = 0).
func (a Float4x4) MulVector(v Float3) Float3 {
	return Float3{
		a.M[0][0]*v.X + a.M[0][1]*v.Y + a.M[0][2]*v.Z,
		a.M[1][0]*v.X + a.M[1][1]*v.Y + a.M[1][2]*v.Z,
		a.M[2][0]*v.X + a.M[2][1]*v.Y + a.M[2][2]*v.Z,
	}
}

// Inverse returns the inverse of an affine matrix. A singular linear part
// yields the identity.
func (a Float4x4) Inverse() Float4x4 {
	m := a.M
	c00 := m[1][1]*m[2][2] - m[1][2]*m[2][1]
	c01 := m[1][2]*m[2][0] - m[1][0]*m[2][2]
	c02 := m[1][0]*m[2][1] - m[1][1]*m[2][0]
	det := m[0][0]*c00 + m[0][1]*c01 + m[0][2]*c02
	if det == 0 {
		return Identity4()
	}
	inv := 1 / det

	var r Float4x4
	r.M[0][0] = c00 * inv
	r.M[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv
	r.M[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv
	r.M[1][0] = c01 * inv
	r.M[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv
	r.M[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv
	r.M[2][0] = c02 * inv
	r.M[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv
	r.M[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv

	t := Float3{m[0][3], m[1][3], m[2][3]}
	it := r.MulVector(t)
	r.M[0][3], r.M[1][3], r.M[2][3] = -it.X, -it.Y, -it.Z
	r.M[3] = [4]float32{0, 0, 0, 1}
	return r
}

// Decompose splits an affine matrix without shear into translation,
// rotation and scale.
func (a Float4x4) Decompose() (Float3, FloatQ, Float3) {
	m := a.M
	t := Float3{m[0][3], m[1][3], m[2][3]}
	cx := Float3{m[0][0], m[1][0], m[2][0]}
	cy := Float3{m[0][1], m[1][1], m[2][1]}
	cz := Float3{m[0][2], m[1][2], m[2][2]}
	s := Float3{cx.Length(), cy.Length(), cz.Length()}
	if cx.Cross(cy).Dot(cz) < 0 {
		s.X = -s.X
		cx = cx.Scale(-1)
	}
	if s.X == 0 || s.Y == 0 || s.Z == 0 {
		return t, IdentityQ, s
	}
	cx = cx.Scale(1 / abs(s.X))
	cy = cy.Scale(1 / s.Y)
	cz = cz.Scale(1 / s.Z)
	return t, quatFromBasis(cx, cy, cz), s
}

func quatFromBasis(x, y, z Float3) FloatQ {
	// x, y, z are the columns of the rotation matrix.
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z
	tr := m00 + m11 + m22
	var q FloatQ
	switch {
	case tr > 0:
		s := float32(math.Sqrt(float64(tr+1))) * 2
		q = FloatQ{(m21 - m12) / s, (m02 - m20) / s, (m10 - m01) / s, s / 4}
	case m00 > m11 && m00 > m22:
		s := float32(math.Sqrt(float64(1+m00-m11-m22))) * 2
		q = FloatQ{s / 4, (m01 + m10) / s, (m02 + m20) / s, (m21 - m12) / s}
	case m11 > m22:
		s := float32(math.Sqrt(float64(1+m11-m00-m22))) * 2
		q = FloatQ{(m01 + m10) / s, s / 4, (m12 + m21) / s, (m02 - m20) / s}
	default:
		s := float32(math.Sqrt(float64(1+m22-m00-m11))) * 2
		q = FloatQ{(m02 + m20) / s, (m12 + m21) / s, s / 4, (m10 - m01) / s}
	}
	return q.Normalized()
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func safeDiv(a, b float32) float32 {
	if b == 0 {
		return 0
	}
	return a / b
}
