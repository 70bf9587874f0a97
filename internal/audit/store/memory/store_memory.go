// Package memory is an in-process audit record store for development and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"haven/internal/audit/models"
	id "haven/pkg/domain"
)

// InMemoryStore keeps records in insertion order keyed by event ID.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []models.EncryptedRecord
	ids     map[id.EventID]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[id.EventID]struct{})}
}

func (s *InMemoryStore) CreateMany(_ context.Context, records []models.EncryptedRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range records {
		if _, dup := s.ids[r.EventID]; dup {
			continue
		}
		s.ids[r.EventID] = struct{}{}
		s.records = append(s.records, cloneRecord(r))
		inserted++
	}
	return inserted, nil
}

func (s *InMemoryStore) Count(_ context.Context, q models.RecordQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if q.Matches(r) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) FindMany(_ context.Context, q models.RecordQuery) ([]models.EncryptedRecord, error) {
	s.mu.RLock()
	matched := make([]models.EncryptedRecord, 0)
	for _, r := range s.records {
		if q.Matches(r) {
			matched = append(matched, cloneRecord(r))
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, compareBy(q.SortBy, q.SortOrder))

	skip := max(q.Skip, 0)
	if skip >= len(matched) {
		return []models.EncryptedRecord{}, nil
	}
	matched = matched[skip:]
	if q.Take > 0 && q.Take < len(matched) {
		matched = matched[:q.Take]
	}
	return matched, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	deleted := 0
	for _, r := range s.records {
		if r.RetainUntil.Before(now) {
			delete(s.ids, r.EventID)
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

// Records returns a snapshot of everything stored. Tests use it to inspect
// and tamper with ciphertext.
func (s *InMemoryStore) Records() []models.EncryptedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EncryptedRecord, len(s.records))
	for i, r := range s.records {
		out[i] = cloneRecord(r)
	}
	return out
}

// Replace overwrites a stored record in place. It exists only to simulate
// tampering at rest in tests.
func (s *InMemoryStore) Replace(rec models.EncryptedRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].EventID == rec.EventID {
			s.records[i] = cloneRecord(rec)
			return true
		}
	}
	return false
}

func compareBy(field models.SortField, order models.SortOrder) func(a, b models.EncryptedRecord) int {
	return func(a, b models.EncryptedRecord) int {
		var c int
		switch field {
		case models.SortByCategory:
			c = cmp.Compare(a.Category, b.Category)
		case models.SortByRiskLevel:
			c = cmp.Compare(a.RiskLevel.Rank(), b.RiskLevel.Rank())
		case models.SortByOutcome:
			c = cmp.Compare(a.Outcome, b.Outcome)
		default:
			c = a.Timestamp.Compare(b.Timestamp)
		}
		if c == 0 && field != models.SortByTimestamp && field != "" {
			c = a.Timestamp.Compare(b.Timestamp)
		}
		if order == models.SortAsc {
			return c
		}
		return -c
	}
}

func cloneRecord(r models.EncryptedRecord) models.EncryptedRecord {
	r.IV = slices.Clone(r.IV)
	r.Ciphertext = slices.Clone(r.Ciphertext)
	r.AuthTag = slices.Clone(r.AuthTag)
	return r
}
