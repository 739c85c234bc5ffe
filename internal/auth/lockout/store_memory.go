package lockout

import (
	"context"
	"sync"
	"time"

	"clubgate/pkg/requestcontext"
)

type counter struct {
	count     int
	expiresAt time.Time
}

// InMemoryStore keeps counters in process memory. Expired counters are
// dropped lazily on access.
type InMemoryStore struct {
	mu       sync.Mutex
	counters map[string]counter
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{counters: make(map[string]counter)}
}

func (s *InMemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !now.Before(c.expiresAt) {
		c = counter{expiresAt: now.Add(window)}
	}
	c.count++
	s.counters[key] = c
	return c.count, nil
}

func (s *InMemoryStore) Count(ctx context.Context, key string) (int, error) {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return 0, nil
	}
	if !now.Before(c.expiresAt) {
		delete(s.counters, key)
		return 0, nil
	}
	return c.count, nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}
