// Package net moves replication batch frames between the tick loop and the
// connections an external session layer has negotiated.
//
// Discovery, handshakes and the sockets themselves belong to that layer: it
// hands each ready connection to a Hub and the tick loop picks the session
// up on its next Input phase.
package net

import (
	"io"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/core/refid"
)

// Hub hands attached sessions to the tick loop.
// New/dead sessions are communicated via channels.
type Hub struct {
	nextID       atomic.Uint64
	newConns     chan *Session
	deadCh       chan uint64 // session IDs of dead sessions
	inSize       int
	outSize      int
	framesPerSec int
	log          *zap.Logger
}

func NewHub(inSize, outSize, framesPerSec int, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		newConns:     make(chan *Session, 64),
		deadCh:       make(chan uint64, 64),
		inSize:       inSize,
		outSize:      outSize,
		framesPerSec: framesPerSec,
		log:          log,
	}
}

// Attach wraps a peer connection on the authority. The tick loop assigns
// the peer a free allocation domain and reports it through onAssign, so the
// session layer can tell the peer before any batch reaches it. onAssign runs
// on the tick loop and may be nil.
func (h *Hub) Attach(conn io.ReadWriteCloser, onAssign func(domain byte)) *Session {
	sess := h.newSession(conn)
	sess.onAssign = onAssign
	return h.push(sess)
}

// AttachAuthority wraps a peer's connection to its authority.
func (h *Hub) AttachAuthority(conn io.ReadWriteCloser) *Session {
	sess := h.newSession(conn)
	sess.Domain = refid.DomainAuthority
	sess.Assigned = true
	return h.push(sess)
}

func (h *Hub) newSession(conn io.ReadWriteCloser) *Session {
	id := h.nextID.Add(1)
	sess := NewSession(conn, id, h.inSize, h.outSize, h.framesPerSec, h.log)
	sess.onClose = h.NotifyDead
	return sess
}

func (h *Hub) push(sess *Session) *Session {
	sess.Start()
	select {
	case h.newConns <- sess:
		h.log.Info("session attached", zap.Uint64("session", sess.ID))
	default:
		h.log.Warn("attach queue full, rejecting session", zap.Uint64("session", sess.ID))
		sess.Close()
	}
	return sess
}

// NewSessions returns the channel of newly attached sessions.
func (h *Hub) NewSessions() <-chan *Session {
	return h.newConns
}

// NotifyDead reports a dead session ID to the tick loop.
func (h *Hub) NotifyDead(sessionID uint64) {
	select {
	case h.deadCh <- sessionID:
	default:
	}
}

// DeadSessions returns the channel of dead session IDs.
func (h *Hub) DeadSessions() <-chan uint64 {
	return h.deadCh
}
