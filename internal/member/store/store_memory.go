package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clubgate/internal/member"
	id "clubgate/pkg/domain"
	"clubgate/pkg/platform/sentinel"
)

// InMemoryStore keeps members in memory for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  id.MemberID
	members map[id.MemberID]*member.Member
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{members: make(map[id.MemberID]*member.Member)}
}

// Create assigns an id. Document numbers are unique among live members.
func (s *InMemoryStore) Create(_ context.Context, m *member.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.members {
		if !existing.Deleted && existing.DocumentType == m.DocumentType && existing.DocumentNumber == m.DocumentNumber {
			return fmt.Errorf("member document %s: %w", m.DocumentNumber, sentinel.ErrConflict)
		}
	}
	s.nextID++
	m.ID = s.nextID
	stored := *m
	s.members[m.ID] = &stored
	return nil
}

// Put stores m under its own id, replacing any previous value. Tests use it to
// place members in a given state.
func (s *InMemoryStore) Put(m *member.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *m
	s.members[m.ID] = &stored
	if m.ID > s.nextID {
		s.nextID = m.ID
	}
}

// FindLive returns a non-deleted member.
func (s *InMemoryStore) FindLive(_ context.Context, memberID id.MemberID) (*member.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberID]
	if !ok || m.Deleted {
		return nil, sentinel.ErrNotFound
	}
	found := *m
	return &found, nil
}

// IssueCredential binds a credential to a member once.
func (s *InMemoryStore) IssueCredential(_ context.Context, memberID id.MemberID, payload, hash string, issuedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok || m.Deleted {
		return sentinel.ErrNotFound
	}
	if m.CredentialIssuedAt != nil {
		return fmt.Errorf("member %d credential: %w", memberID, sentinel.ErrInvalidState)
	}
	for _, other := range s.members {
		if other.CredentialPayload == payload || other.CredentialHash == hash {
			return fmt.Errorf("credential payload: %w", sentinel.ErrConflict)
		}
	}
	m.CredentialPayload = payload
	m.CredentialHash = hash
	m.CredentialIssuedAt = &issuedAt
	return nil
}

// SetNumber records the member number derived from the assigned id.
func (s *InMemoryStore) SetNumber(_ context.Context, memberID id.MemberID, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberID]
	if !ok {
		return sentinel.ErrNotFound
	}
	m.Number = number
	return nil
}
