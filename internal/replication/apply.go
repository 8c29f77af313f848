package replication

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/field"
	"github.com/slotworld/datamodel/internal/core/refid"
	"github.com/slotworld/datamodel/internal/world"
)

// ErrUntrustedSource rejects a whole batch from a peer this world does not
// accept writes from.
var ErrUntrustedSource = errors.New("untrusted batch source")

// Result counts what happened to the entries of one batch.
type Result struct {
	Applied  int
	Missing  int // target not registered here (yet)
	Rejected int // local-only or reserved ids
	Corrupt  int // entry failed to decode
}

// Apply decodes b into the members of w.
//
// A client accepts batches from the authority only. The authority accepts
// batches from connected peers; every value it applies is marked dirty again
// so the next broadcast confirms it to everyone (last confirmed writer wins).
// Values load through Member.Load: links are bypassed and, on clients,
// nothing is marked dirty.
func Apply(w *world.World, b *Batch) (Result, error) {
	var res Result
	if err := checkSource(w, b.Source); err != nil {
		res.Rejected = len(b.Entries)
		for range b.Entries {
			w.Metrics().WriteRejected()
		}
		return res, err
	}

	log := w.Logger()
	w.Modify(world.RoleDataModel, func() {
		for _, e := range b.Entries {
			if e.ID.IsNull() || e.ID.IsLocal() || e.ID.Domain() == refid.DomainReserved {
				res.Rejected++
				w.Metrics().WriteRejected()
				continue
			}
			el, ok := w.Lookup(e.ID)
			if !ok {
				res.Missing++
				continue
			}
			m, ok := el.(field.Member)
			if !ok || m.IsDestroyed() {
				res.Missing++
				continue
			}

			if err := m.Load(e.Data); err != nil {
				res.Corrupt++
				log.Warn("replicated value dropped",
					zap.Stringer("ref", e.ID),
					zap.Uint8("source", b.Source),
					zap.Error(err))
				continue
			}
			if w.IsAuthority() {
				m.MarkDirty()
			}
			res.Applied++
		}
	})
	return res, nil
}

func checkSource(w *world.World, src byte) error {
	switch {
	case src == w.Domain():
		return fmt.Errorf("%w: batch from own domain %d", ErrUntrustedSource, src)
	case src == refid.DomainLocal || src == refid.DomainReserved:
		return fmt.Errorf("%w: domain %d", ErrUntrustedSource, src)
	case !w.IsAuthority():
		if src != refid.DomainAuthority {
			return fmt.Errorf("%w: client accepts the authority only, got %d", ErrUntrustedSource, src)
		}
	case w.Peers() != nil && !w.Peers().InUse(src):
		return fmt.Errorf("%w: peer domain %d not connected", ErrUntrustedSource, src)
	}
	return nil
}
