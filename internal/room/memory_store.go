package room

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/oichokabu/internal/game"
)

// MemoryStore keeps sessions in process memory. It suits a single long-lived server.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*game.Session
	players  map[uuid.UUID]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*game.Session),
		players:  make(map[uuid.UUID]string),
	}
}

func (s *MemoryStore) Load(_ context.Context, code string) (*game.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[code]
	if !ok {
		return nil, notFound("room %s", code)
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Create(_ context.Context, sess *game.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.Code]; exists {
		return ErrCodeTaken
	}
	s.sessions[sess.Code] = sess.Clone()
	return nil
}

func (s *MemoryStore) Save(_ context.Context, sess *game.Session, prevVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sess.Code]
	if !ok {
		return notFound("room %s", sess.Code)
	}
	if cur.Version != prevVersion {
		return ErrConflict
	}
	s.sessions[sess.Code] = sess.Clone()
	return nil
}

func (s *MemoryStore) DeleteIfVersion(_ context.Context, code string, prevVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[code]
	if !ok {
		return notFound("room %s", code)
	}
	if cur.Version != prevVersion {
		return ErrConflict
	}
	delete(s.sessions, code)
	return nil
}

func (s *MemoryStore) BindPlayer(_ context.Context, playerID uuid.UUID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[playerID] = code
	return nil
}

func (s *MemoryStore) UnbindPlayer(_ context.Context, playerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, playerID)
	return nil
}

func (s *MemoryStore) PlayerRoom(_ context.Context, playerID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.players[playerID]
	if !ok {
		return "", notFound("player %s is not in a room", playerID)
	}
	return code, nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
