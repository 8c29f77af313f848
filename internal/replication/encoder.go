package replication

import (
	"cmp"
	"slices"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/metric"
	"github.com/slotworld/datamodel/internal/world"
)

// DefaultMaxBatchBytes is the batch size the encoder splits at.
const DefaultMaxBatchBytes = 64 << 10

// Encoder drains a world's dirty set into batches.
type Encoder struct {
	maxBytes int
	metrics  *metric.Metrics
	buf      *field.Writer
}

// NewEncoder returns an encoder splitting batches at maxBytes; zero or less
// selects DefaultMaxBatchBytes. m may be nil.
func NewEncoder(maxBytes int, m *metric.Metrics) *Encoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBatchBytes
	}
	return &Encoder{maxBytes: maxBytes, metrics: m, buf: field.NewWriter()}
}

// Encode drains the dirty set of w and returns its members' current values
// in RefID order, split into batches of at most maxBytes. A single member
// larger than the limit gets a batch of its own. Dirty flags are cleared.
func (e *Encoder) Encode(w *world.World) []*Batch {
	dirty := w.Registry().DrainDirty()
	members := make([]field.Member, 0, len(dirty))
	for _, el := range dirty {
		m, ok := el.(field.Member)
		if !ok || m.IsDestroyed() || m.ReferenceID().IsLocal() {
			continue
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		return nil
	}
	return e.split(w, members, true)
}

// EncodeAll encodes every live non-local member of w without touching the
// dirty set. The authority sends it to a peer that just joined.
func (e *Encoder) EncodeAll(w *world.World) []*Batch {
	var members []field.Member
	for _, el := range w.Registry().Snapshot() {
		m, ok := el.(field.Member)
		if !ok || m.IsDestroyed() || m.ReferenceID().IsLocal() {
			continue
		}
		members = append(members, m)
	}
	if len(members) == 0 {
		return nil
	}
	return e.split(w, members, false)
}

func (e *Encoder) split(w *world.World, members []field.Member, clear bool) []*Batch {
	slices.SortFunc(members, func(a, b field.Member) int {
		return cmp.Compare(a.ReferenceID(), b.ReferenceID())
	})

	var (
		out  []*Batch
		cur  = &Batch{Source: w.Domain(), Tick: w.Tick()}
		size = batchHeader
	)
	for _, m := range members {
		e.buf.Reset()
		m.Encode(e.buf)
		if clear {
			m.ClearDirty()
		}
		data := append([]byte(nil), e.buf.Bytes()...)

		n := entryOverhead + len(data)
		if len(cur.Entries) > 0 && size+n > e.maxBytes {
			out = append(out, cur)
			e.metrics.ObserveBatch(len(cur.Entries), size)
			cur = &Batch{Source: w.Domain(), Tick: w.Tick()}
			size = batchHeader
		}
		cur.Entries = append(cur.Entries, Entry{ID: m.ReferenceID(), Data: data})
		size += n
	}
	out = append(out, cur)
	e.metrics.ObserveBatch(len(cur.Entries), size)
	return out
}
