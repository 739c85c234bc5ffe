package user

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"clubgate/internal/auth/models"
	id "clubgate/pkg/domain"
	"clubgate/pkg/platform/sentinel"
)

// InMemoryUserStore keeps users in memory. Lookups return copies so callers
// cannot mutate stored state.
type InMemoryUserStore struct {
	mu     sync.RWMutex
	nextID id.UserID
	users  map[id.UserID]*models.User
}

func New() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[id.UserID]*models.User)}
}

func (s *InMemoryUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Deleted {
			continue
		}
		if strings.EqualFold(existing.Username, user.Username) || strings.EqualFold(existing.Email, user.Email) {
			return fmt.Errorf("user %q: %w", user.Username, sentinel.ErrConflict)
		}
	}

	s.nextID++
	user.ID = s.nextID
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *user
	return &found, nil
}

// FindByLogin matches username or email case-insensitively, preferring a
// live account over a deleted one.
func (s *InMemoryUserStore) FindByLogin(_ context.Context, login string) (*models.User, error) {
	return s.findFirst(func(u *models.User) bool {
		return strings.EqualFold(u.Username, login) || strings.EqualFold(u.Email, login)
	})
}

func (s *InMemoryUserStore) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return s.findFirst(func(u *models.User) bool {
		return strings.EqualFold(u.Username, username)
	})
}

func (s *InMemoryUserStore) findFirst(match func(*models.User) bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.User
	for _, user := range s.users {
		if !match(user) {
			continue
		}
		if best == nil || (best.Deleted && !user.Deleted) || (best.Deleted == user.Deleted && user.ID > best.ID) {
			best = user
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	found := *best
	return &found, nil
}

func (s *InMemoryUserStore) Taken(_ context.Context, username, email string) (usernameTaken, emailTaken bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Deleted {
			continue
		}
		usernameTaken = usernameTaken || strings.EqualFold(user.Username, username)
		emailTaken = emailTaken || strings.EqualFold(user.Email, email)
	}
	return usernameTaken, emailTaken, nil
}

func (s *InMemoryUserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return sentinel.ErrNotFound
	}
	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (s *InMemoryUserStore) TouchLastLogin(_ context.Context, userID id.UserID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	user.LastLoginAt = &at
	return nil
}

// List returns live users ordered by id.
func (s *InMemoryUserStore) List(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, user := range s.users {
		if user.Deleted {
			continue
		}
		found := *user
		out = append(out, &found)
	}
	slices.SortFunc(out, func(a, b *models.User) int { return int(a.ID - b.ID) })
	return out, nil
}
