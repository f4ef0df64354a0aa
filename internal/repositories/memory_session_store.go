package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avelery/jobdeck/internal/models"
)

// MemorySessionStore keeps session records in process memory behind a single
// mutex, so a completed revoke is visible to every later read regardless of
// which goroutine issued it.
//
// Single-process only, same caveat as MemoryAttemptStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*models.Session),
	}
}

func (s *MemorySessionStore) Insert(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return models.ErrConflict
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

// ListByUser returns the user's non-revoked, unexpired sessions, newest
// first.
func (s *MemorySessionStore) ListByUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Session
	for _, session := range s.sessions {
		if session.UserID != userID || !session.IsActive(now) {
			continue
		}
		cp := *session
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Revoke marks one session revoked. Revoking an already revoked session is
// a no-op that still succeeds.
func (s *MemorySessionStore) Revoke(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	if session.RevokedAt == nil {
		revokedAt := at
		session.RevokedAt = &revokedAt
	}
	return nil
}

// Touch bumps lastActiveAt. Best effort: unknown ids are ignored.
func (s *MemorySessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[id]; ok && session.RevokedAt == nil {
		session.LastActiveAt = at
	}
	return nil
}

// DeleteExpired drops sessions that are past expiry or already revoked,
// returning the number removed.
func (s *MemorySessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.RevokedAt != nil || now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
