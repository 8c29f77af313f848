package persist

import (
	"cmp"
	"slices"

	"github.com/google/uuid"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/world"
)

// FieldRow is the saved value of one member.
type FieldRow struct {
	RefID refid.RefID
	Owner refid.RefID
	Name  string
	Data  []byte
}

// Snapshot is the durable state of one world session: allocation high-water
// marks and the encoded value of every persistent member.
type Snapshot struct {
	Session   uuid.UUID
	Name      string
	Tick      uint64
	Positions map[byte]uint64
	Fields    []FieldRow
}

// Capture builds a snapshot of w. Local-only members and members flagged
// NonPersistent are left out. Rows are in RefID order.
func Capture(w *world.World) *Snapshot {
	s := &Snapshot{
		Session:   w.SessionID(),
		Name:      w.Name(),
		Tick:      w.Tick(),
		Positions: w.Allocator().Tracker().Positions(),
	}
	delete(s.Positions, refid.DomainLocal)

	buf := field.NewWriter()
	for _, el := range w.Registry().Snapshot() {
		m, ok := el.(field.Member)
		if !ok || m.IsDestroyed() || m.ReferenceID().IsLocal() || m.Flags().Has(field.NonPersistent) {
			continue
		}
		buf.Reset()
		m.Encode(buf)
		row := FieldRow{
			RefID: m.ReferenceID(),
			Name:  m.Name(),
			Data:  append([]byte(nil), buf.Bytes()...),
		}
		if o := m.Owner(); o != nil {
			row.Owner = o.ReferenceID()
		}
		s.Fields = append(s.Fields, row)
	}
	slices.SortFunc(s.Fields, func(a, b FieldRow) int { return cmp.Compare(a.RefID, b.RefID) })
	return s
}

// RestoreResult counts restored and unmatched rows.
type RestoreResult struct {
	Restored int
	Missing  int
	Corrupt  int
}

// Restore loads saved values into the members of w that carry the same ids,
// typically after the session's scene was spawned again, then moves the
// allocator past the saved high-water marks so new elements never reuse a
// saved id.
func Restore(w *world.World, s *Snapshot) RestoreResult {
	var res RestoreResult
	w.Modify(world.RoleDataModel, func() {
		for _, row := range s.Fields {
			el, ok := w.Lookup(row.RefID)
			if !ok {
				res.Missing++
				continue
			}
			m, ok := el.(field.Member)
			if !ok || m.Name() != row.Name {
				res.Missing++
				continue
			}
			if err := m.Load(row.Data); err != nil {
				res.Corrupt++
				continue
			}
			res.Restored++
		}
		w.Allocator().Restore(s.Positions)
	})
	return res
}
