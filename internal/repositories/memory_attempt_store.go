package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/avelery/jobdeck/internal/models"
)

// MemoryAttemptStore keeps brute-force counters in process memory. All
// mutations run under one mutex, so read-modify-write cycles issued through
// Update are atomic with respect to concurrent logins on the same key.
//
// Single-process only. A horizontally scaled deployment needs a shared,
// TTL-capable keyed store behind the same interface.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]*models.AttemptRecord
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		records: make(map[string]*models.AttemptRecord),
	}
}

// Get returns a copy of the record for key, or nil when none exists.
func (s *MemoryAttemptStore) Get(ctx context.Context, key string) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Update applies fn to the current record (nil when absent) under the store
// lock and persists the result. Returning nil from fn deletes the record.
func (s *MemoryAttemptStore) Update(ctx context.Context, key string, fn func(*models.AttemptRecord) *models.AttemptRecord) (*models.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *models.AttemptRecord
	if rec, ok := s.records[key]; ok {
		cp := *rec
		current = &cp
	}

	next := fn(current)
	if next == nil {
		delete(s.records, key)
		return nil, nil
	}

	stored := *next
	s.records[key] = &stored
	cp := stored
	return &cp, nil
}

// Delete removes the record for key, if any.
func (s *MemoryAttemptStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// DeleteStale drops records whose window and lockout both lie in the past.
// Called by the background cleanup task to bound memory growth.
func (s *MemoryAttemptStore) DeleteStale(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.IsLocked(now) {
			continue
		}
		if now.Sub(rec.WindowStart) > window {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}
