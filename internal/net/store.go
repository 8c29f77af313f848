package net

import (
	"maps"
	"slices"
)

// SessionStore holds the live sessions by ID. Tick loop only.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (s *SessionStore) Add(sess *Session)      { s.sessions[sess.ID] = sess }
func (s *SessionStore) Remove(id uint64)       { delete(s.sessions, id) }
func (s *SessionStore) Get(id uint64) *Session { return s.sessions[id] }
func (s *SessionStore) Count() int             { return len(s.sessions) }

// ForEach visits the sessions in ID order.
func (s *SessionStore) ForEach(fn func(*Session)) {
	for _, id := range slices.Sorted(maps.Keys(s.sessions)) {
		fn(s.sessions[id])
	}
}
