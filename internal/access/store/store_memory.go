package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"clubgate/internal/access"
	id "clubgate/pkg/domain"
)

// InMemoryStore keeps access records in memory for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  id.AccessID
	records []access.Record
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Create(_ context.Context, record *access.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record.ID = s.nextID
	s.records = append(s.records, *record)
	return nil
}

// All returns every record in insertion order.
func (s *InMemoryStore) All() []access.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]access.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *InMemoryStore) List(_ context.Context, filter access.HistoryFilter) ([]access.Record, int, error) {
	matched := s.newestFirst(func(r access.Record) bool { return matches(r, filter) })
	total := len(matched)
	if filter.Offset >= total {
		return []access.Record{}, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *InMemoryStore) CountSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if !r.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]access.Record, error) {
	out := s.newestFirst(func(access.Record) bool { return true })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) OutcomeCounts(_ context.Context, from, to time.Time) (map[access.Outcome]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[access.Outcome]int)
	for _, r := range s.records {
		if inRange(r.OccurredAt, from, to) {
			counts[r.Outcome]++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) HourlyCounts(_ context.Context, from, to time.Time) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int]int)
	for _, r := range s.records {
		if inRange(r.OccurredAt, from, to) {
			counts[r.OccurredAt.UTC().Hour()]++
		}
	}
	return counts, nil
}

func (s *InMemoryStore) newestFirst(keep func(access.Record) bool) []access.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]access.Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out
}

func matches(r access.Record, f access.HistoryFilter) bool {
	if !f.MemberID.IsNil() && r.MemberID != f.MemberID {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if !f.From.IsZero() && r.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !r.OccurredAt.Before(f.To) {
		return false
	}
	return true
}

// inRange is half-open: [from, to).
func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
