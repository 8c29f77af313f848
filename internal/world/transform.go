package world

import "github.com/slotworld/datamodel/internal/math3d"

const (
	dirtyLocal uint8 = 1 << iota
	dirtyLocalToGlobal
	dirtyGlobalToLocal
	dirtyGlobalPosition
	dirtyGlobalRotation
	dirtyGlobalScale

	dirtyGlobal = dirtyLocalToGlobal | dirtyGlobalToLocal | dirtyGlobalPosition | dirtyGlobalRotation | dirtyGlobalScale
	dirtyAll    = dirtyLocal | dirtyGlobal
)

// transformCache holds the lazily recomputed matrices and decomposed
// globals of a slot, each behind its own dirty bit.
type transformCache struct {
	dirty uint8

	local         math3d.Float4x4
	localToGlobal math3d.Float4x4
	globalToLocal math3d.Float4x4
	position      math3d.Float3
	rotation      math3d.FloatQ
	scale         math3d.Float3

	// computeCount counts localToGlobal recomputations.
	computeCount int
}

// invalidateLocal marks the local matrix and every global cache on s dirty,
// then the global caches of all descendants.
func (s *Slot) invalidateLocal() {
	s.xf.dirty |= dirtyLocal
	s.invalidateGlobal(true)
}

// invalidateGlobal marks the global caches dirty. The walk stops at a
// descendant whose globals are already all dirty: its subtree is too.
func (s *Slot) invalidateGlobal(force bool) {
	if !force && s.xf.dirty&dirtyGlobal == dirtyGlobal {
		return
	}
	s.xf.dirty |= dirtyGlobal
	for _, c := range s.children {
		c.invalidateGlobal(false)
	}
}

// LocalMatrix is translation * rotation * scale of the local transform.
func (s *Slot) LocalMatrix() math3d.Float4x4 {
	if s.xf.dirty&dirtyLocal != 0 {
		s.xf.local = math3d.TRS(s.Position.Get(), s.Rotation.Get(), s.Scale.Get())
		s.xf.dirty &^= dirtyLocal
	}
	return s.xf.local
}

// LocalToGlobal maps local points of s into world space.
func (s *Slot) LocalToGlobal() math3d.Float4x4 {
	if s.xf.dirty&dirtyLocalToGlobal != 0 {
		local := s.LocalMatrix()
		if s.parent != nil {
			s.xf.localToGlobal = s.parent.LocalToGlobal().Mul(local)
		} else {
			s.xf.localToGlobal = local
		}
		s.xf.dirty &^= dirtyLocalToGlobal
		s.xf.computeCount++
	}
	return s.xf.localToGlobal
}

// GlobalToLocal maps world points into the local space of s.
func (s *Slot) GlobalToLocal() math3d.Float4x4 {
	if s.xf.dirty&dirtyGlobalToLocal != 0 {
		s.xf.globalToLocal = s.LocalToGlobal().Inverse()
		s.xf.dirty &^= dirtyGlobalToLocal
	}
	return s.xf.globalToLocal
}

func (s *Slot) GlobalPosition() math3d.Float3 {
	if s.xf.dirty&dirtyGlobalPosition != 0 {
		if s.parent != nil {
			s.xf.position = s.parent.LocalToGlobal().MulPoint(s.Position.Get())
		} else {
			s.xf.position = s.Position.Get()
		}
		s.xf.dirty &^= dirtyGlobalPosition
	}
	return s.xf.position
}

func (s *Slot) GlobalRotation() math3d.FloatQ {
	if s.xf.dirty&dirtyGlobalRotation != 0 {
		if s.parent != nil {
			s.xf.rotation = s.parent.GlobalRotation().Mul(s.Rotation.Get()).Normalized()
		} else {
			s.xf.rotation = s.Rotation.Get()
		}
		s.xf.dirty &^= dirtyGlobalRotation
	}
	return s.xf.rotation
}

// GlobalScale is the lossy world-space scale taken from the decomposed
// local-to-global matrix.
func (s *Slot) GlobalScale() math3d.Float3 {
	if s.xf.dirty&dirtyGlobalScale != 0 {
		_, _, sc := s.LocalToGlobal().Decompose()
		s.xf.scale = sc
		s.xf.dirty &^= dirtyGlobalScale
	}
	return s.xf.scale
}

func (s *Slot) SetGlobalPosition(p math3d.Float3) {
	if s.parent != nil {
		p = s.parent.GlobalToLocal().MulPoint(p)
	}
	s.Position.Set(p)
}

func (s *Slot) SetGlobalRotation(q math3d.FloatQ) {
	if s.parent != nil {
		q = s.parent.GlobalRotation().Conjugate().Mul(q).Normalized()
	}
	s.Rotation.Set(q)
}

func (s *Slot) SetGlobalScale(sc math3d.Float3) {
	if s.parent != nil {
		sc = sc.Div(s.parent.GlobalScale())
	}
	s.Scale.Set(sc)
}

// setGlobalTRS solves for the local transform reproducing the given global
// transform under the current parent.
func (s *Slot) setGlobalTRS(p math3d.Float3, r math3d.FloatQ, sc math3d.Float3) {
	s.SetGlobalPosition(p)
	s.SetGlobalRotation(r)
	s.SetGlobalScale(sc)
}

// LocalPointToGlobal transforms a point from the local space of s.
func (s *Slot) LocalPointToGlobal(p math3d.Float3) math3d.Float3 {
	return s.LocalToGlobal().MulPoint(p)
}

// GlobalPointToLocal transforms a world point into the local space of s.
func (s *Slot) GlobalPointToLocal(p math3d.Float3) math3d.Float3 {
	return s.GlobalToLocal().MulPoint(p)
}

// LocalDirectionToGlobal transforms a direction, ignoring translation.
func (s *Slot) LocalDirectionToGlobal(v math3d.Float3) math3d.Float3 {
	return s.LocalToGlobal().MulVector(v)
}
