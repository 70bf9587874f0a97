package memory

import (
	"context"
	"sync"
	"time"

	"haven/internal/ratelimit/models"
)

// InMemoryWindowStore implements the counter store with in-process fixed windows.
// Counters are per node; use the Redis store when several instances share limits.
type InMemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*models.Window
}

// NewInMemoryWindowStore creates a new in-memory window store.
func NewInMemoryWindowStore() *InMemoryWindowStore {
	return &InMemoryWindowStore{
		windows: make(map[string]*models.Window),
	}
}

// Hit counts one request against key. A window past its reset time starts
// over at one; a full window rejects without counting.
func (s *InMemoryWindowStore) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (models.Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil || w.Expired(now) {
		w = &models.Window{Count: 1, ResetAt: now.Add(window)}
		s.windows[key] = w
		return *w, true, nil
	}
	if w.Count >= limit {
		return *w, false, nil
	}
	w.Count++
	return *w, true, nil
}

// Reset clears the counter for a key.
func (s *InMemoryWindowStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Get returns the current window for a key, if any.
func (s *InMemoryWindowStore) Get(_ context.Context, key string) (models.Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[key]
	if !ok {
		return models.Window{}, false, nil
	}
	return *w, true, nil
}

// Sweep removes windows that expired before now and returns how many.
func (s *InMemoryWindowStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if w.Expired(now) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked windows.
func (s *InMemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
