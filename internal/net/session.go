package net

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/slotworld/datamodel/internal/replication"
)

const writeTimeout = 10 * time.Second

// writeDeadliner is implemented by net.Conn.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Session is one connected peer. Network I/O runs in dedicated goroutines;
// world state is touched only from the tick loop, which drains InQueue and
// feeds the output buffer.
type Session struct {
	ID uint64
	// Domain is the allocation domain of the remote side: the assigned peer
	// domain on the authority, 0 on a client.
	Domain   byte
	Assigned bool

	conn io.ReadWriteCloser

	InQueue  chan []byte // tick loop reads batch frames from here
	OutQueue chan []byte // writer goroutine reads from here

	outBuf [][]byte // buffered frames, flushed once per tick (tick loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	onClose   func(id uint64)
	onAssign  func(domain byte)

	// Per-second frame limiter (readLoop goroutine only)
	framesPerSec int
	frameCount   int
	frameResetAt int64

	log *zap.Logger
}

func NewSession(conn io.ReadWriteCloser, id uint64, inSize, outSize, framesPerSec int, log *zap.Logger) *Session {
	return &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, inSize),
		OutQueue:     make(chan []byte, outSize),
		closeCh:      make(chan struct{}),
		framesPerSec: framesPerSec,
		log:          log.With(zap.Uint64("session", id)),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Assign records the peer domain picked for this session and reports it to
// the session layer. Tick loop only.
func (s *Session) Assign(domain byte) {
	s.Domain = domain
	s.Assigned = true
	if s.onAssign != nil {
		s.onAssign(domain)
	}
}

// Send buffers a frame. Nothing reaches the socket until FlushOutput.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writer.
// Non-blocking: a peer whose OutQueue is full is disconnected.
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow peer")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s.ID)
		}
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads batch frames and pushes them onto InQueue.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		payload, err := replication.ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		if s.framesPerSec > 0 {
			now := time.Now().Unix()
			if now != s.frameResetAt {
				s.frameCount = 0
				s.frameResetAt = now
			}
			s.frameCount++
			if s.frameCount > s.framesPerSec {
				s.log.Warn("frame rate exceeded, disconnecting", zap.Int("fps", s.frameCount))
				return
			}
		}

		// Block until the tick loop catches up. Dropping a batch would lose
		// member writes for good.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop writes queued frames to the connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if d, ok := s.conn.(writeDeadliner); ok {
				d.SetWriteDeadline(time.Now().Add(writeTimeout))
			}
			if err := replication.WriteFrame(s.conn, data); err != nil {
				if !s.closed.Load() {
					s.log.Debug("write error", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
