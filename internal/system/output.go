package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/slotworld/datamodel/internal/core/system"
	gonet "github.com/slotworld/datamodel/internal/net"
	"github.com/slotworld/datamodel/internal/replication"
	"github.com/slotworld/datamodel/internal/world"
)

// OutputSystem drains the world's dirty set into batches and sends them to
// every session. Phase 2 (Output).
//
// The dirty set is drained even with nobody connected, so it never grows
// past one tick of writes.
type OutputSystem struct {
	world *world.World
	store *gonet.SessionStore
	enc   *replication.Encoder
	log   *zap.Logger
}

func NewOutputSystem(w *world.World, store *gonet.SessionStore, enc *replication.Encoder, log *zap.Logger) *OutputSystem {
	return &OutputSystem{world: w, store: store, enc: enc, log: log}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	var frames [][]byte
	s.world.Modify(world.RoleDataModel, func() {
		for _, b := range s.enc.Encode(s.world) {
			raw, err := b.MarshalBinary()
			if err != nil {
				s.log.Error("encode batch", zap.Error(err))
				continue
			}
			frames = append(frames, raw)
		}
	})

	s.store.ForEach(func(sess *gonet.Session) {
		if sess.IsClosed() || !sess.Assigned {
			return
		}
		for _, raw := range frames {
			sess.Send(raw)
		}
		sess.FlushOutput()
	})
}
