package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/event"
	coresys "github.com/slotworld/datamodel/internal/core/system"
	gonet "github.com/slotworld/datamodel/internal/net"
	"github.com/slotworld/datamodel/internal/replication"
	"github.com/slotworld/datamodel/internal/world"
)

// InputSystem admits attached sessions and applies the batch frames queued
// by every session. Phase 0 (Input).
//
// On the authority each new session is given a free peer domain and a full
// catch-up of the current values. On a peer the only session is the link to
// the authority.
type InputSystem struct {
	world      *world.World
	hub        *gonet.Hub
	store      *gonet.SessionStore
	enc        *replication.Encoder
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(w *world.World, hub *gonet.Hub, store *gonet.SessionStore, enc *replication.Encoder, maxPerTick int, log *zap.Logger) *InputSystem {
	return &InputSystem{
		world:      w,
		hub:        hub,
		store:      store,
		enc:        enc,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	s.acceptNew()

	s.store.ForEach(func(sess *gonet.Session) {
		if sess.IsClosed() {
			// 斷線前已送達的批次仍要套用，避免遺失最後的寫入
			s.drain(sess)
			s.leave(sess)
			return
		}
		s.drain(sess)
	})
}

func (s *InputSystem) acceptNew() {
	for {
		select {
		case sess := <-s.hub.NewSessions():
			s.join(sess)
		case <-s.hub.DeadSessions():
			// Closed sessions are found by IsClosed during the drain.
		default:
			return
		}
	}
}

func (s *InputSystem) join(sess *gonet.Session) {
	if sess.Assigned {
		if s.world.IsAuthority() {
			s.log.Error("authority link attached to the authority", zap.Uint64("session", sess.ID))
			sess.Close()
			return
		}
		s.store.Add(sess)
		s.log.Info("authority link up", zap.Uint64("session", sess.ID))
		return
	}

	peers := s.world.Peers()
	if peers == nil {
		s.log.Error("peer attached to a non-authority world", zap.Uint64("session", sess.ID))
		sess.Close()
		return
	}
	domain, err := peers.Acquire()
	if err != nil {
		s.log.Warn("peer rejected", zap.Uint64("session", sess.ID), zap.Error(err))
		sess.Close()
		return
	}
	sess.Assign(domain)

	// 新加入的節點先收到目前所有成員的值，之後才是每 tick 的增量
	s.world.Modify(world.RoleDataModel, func() {
		for _, b := range s.enc.EncodeAll(s.world) {
			raw, err := b.MarshalBinary()
			if err != nil {
				s.log.Error("encode catch-up batch", zap.Error(err))
				continue
			}
			sess.Send(raw)
		}
	})
	sess.FlushOutput()
	s.store.Add(sess)

	event.Emit(s.world.Events(), event.PeerJoined{Domain: domain, Session: sess.ID})
	s.log.Info("peer joined", zap.Uint64("session", sess.ID), zap.Uint8("domain", domain))
}

func (s *InputSystem) leave(sess *gonet.Session) {
	s.store.Remove(sess.ID)
	if !s.world.IsAuthority() {
		s.log.Error("authority link lost", zap.Uint64("session", sess.ID))
		return
	}
	s.world.Peers().Release(sess.Domain)
	event.Emit(s.world.Events(), event.PeerLeft{Domain: sess.Domain, Session: sess.ID})
	s.log.Info("peer left", zap.Uint64("session", sess.ID), zap.Uint8("domain", sess.Domain))
}

// drain applies up to maxPerTick frames from sess.
func (s *InputSystem) drain(sess *gonet.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case raw := <-sess.InQueue:
			s.apply(sess, raw)
		default:
			return
		}
	}
}

func (s *InputSystem) apply(sess *gonet.Session, raw []byte) {
	b, err := replication.ParseBatch(raw)
	if err != nil {
		s.log.Warn("bad batch frame", zap.Uint64("session", sess.ID), zap.Error(err))
		return
	}
	if b.Source != sess.Domain {
		s.log.Warn("batch source does not match session",
			zap.Uint64("session", sess.ID),
			zap.Uint8("source", b.Source),
			zap.Uint8("domain", sess.Domain))
		return
	}
	res, err := replication.Apply(s.world, b)
	if err != nil {
		s.log.Warn("batch rejected", zap.Uint64("session", sess.ID), zap.Error(err))
		return
	}
	if res.Missing > 0 || res.Rejected > 0 || res.Corrupt > 0 {
		s.log.Debug("batch applied with skips",
			zap.Uint64("session", sess.ID),
			zap.Int("applied", res.Applied),
			zap.Int("missing", res.Missing),
			zap.Int("rejected", res.Rejected),
			zap.Int("corrupt", res.Corrupt))
	}
}
