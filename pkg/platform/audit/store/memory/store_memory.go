package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	id "clubgate/pkg/domain"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/sentinel"
)

// InMemoryStore is an audit.Store for tests and local runs without Postgres.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID id.EventID
	events map[id.EventID]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.EventID]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.EventID]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	event.ID = s.nextID
	stored := *event
	stored.Details = maps.Clone(event.Details)
	s.events[stored.ID] = stored
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, eventID id.EventID) (*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("audit event %d: %w", eventID, sentinel.ErrNotFound)
	}
	return &event, nil
}

func (s *InMemoryStore) List(_ context.Context, filter audit.Filter) ([]audit.Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Event
	for _, event := range s.events {
		if matches(event, filter) {
			matched = append(matched, event)
		}
	}
	slices.SortFunc(matched, func(a, b audit.Event) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	return matched[start:end], total, nil
}

func (s *InMemoryStore) ListBefore(_ context.Context, cutoff time.Time, afterID id.EventID, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eventIDs := make([]id.EventID, 0, len(s.events))
	for eventID := range s.events {
		eventIDs = append(eventIDs, eventID)
	}
	slices.Sort(eventIDs)

	var out []audit.Event
	for _, eventID := range eventIDs {
		event := s.events[eventID]
		if eventID <= afterID || !event.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, event)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) DeleteByIDs(_ context.Context, ids []id.EventID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for _, eventID := range ids {
		if _, ok := s.events[eventID]; ok {
			delete(s.events, eventID)
			deleted++
		}
	}
	return deleted, nil
}

func matches(event audit.Event, f audit.Filter) bool {
	switch {
	case f.Kind != "" && event.Kind != f.Kind:
		return false
	case f.Severity != "" && event.Severity != f.Severity:
		return false
	case !f.ActorID.IsNil() && event.ActorID != f.ActorID:
		return false
	case f.SubjectKind != "" && event.SubjectKind != f.SubjectKind:
		return false
	case f.SubjectID != 0 && event.SubjectID != f.SubjectID:
		return false
	case !f.From.IsZero() && event.Timestamp.Before(f.From):
		return false
	case !f.To.IsZero() && event.Timestamp.After(f.To):
		return false
	case f.Search != "" && !strings.Contains(strings.ToLower(event.Description), strings.ToLower(f.Search)):
		return false
	}
	return true
}
