package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"clubgate/internal/member"
	"clubgate/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) create(document string) *member.Member {
	m := &member.Member{DocumentType: "DNI", DocumentNumber: document, FullName: "Ana", State: member.StateActive}
	s.Require().NoError(s.store.Create(s.ctx, m))
	return m
}

func (s *InMemoryStoreSuite) TestCreateAssignsSequentialIDs() {
	first := s.create("1")
	second := s.create("2")
	s.Equal(first.ID+1, second.ID)
}

func (s *InMemoryStoreSuite) TestDocumentUniqueAmongLiveMembers() {
	m := s.create("1")
	err := s.store.Create(s.ctx, &member.Member{DocumentType: "DNI", DocumentNumber: "1"})
	s.ErrorIs(err, sentinel.ErrConflict)

	deleted := *m
	deleted.Deleted = true
	s.store.Put(&deleted)
	s.NoError(s.store.Create(s.ctx, &member.Member{DocumentType: "DNI", DocumentNumber: "1"}))
}

func (s *InMemoryStoreSuite) TestFindLiveSkipsDeleted() {
	s.store.Put(&member.Member{ID: 5, Deleted: true})
	_, err := s.store.FindLive(s.ctx, 5)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestIssueCredentialOnce() {
	m := s.create("1")
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.Require().NoError(s.store.IssueCredential(s.ctx, m.ID, "CLUB-1-abc", "h1", issued))
	err := s.store.IssueCredential(s.ctx, m.ID, "CLUB-1-def", "h2", issued.Add(time.Hour))
	s.ErrorIs(err, sentinel.ErrInvalidState)

	found, err := s.store.FindLive(s.ctx, m.ID)
	s.Require().NoError(err)
	s.Equal("CLUB-1-abc", found.CredentialPayload)
	s.Equal(issued, *found.CredentialIssuedAt)
}

func (s *InMemoryStoreSuite) TestIssueCredentialRejectsDuplicatePayload() {
	a := s.create("1")
	b := s.create("2")
	s.Require().NoError(s.store.IssueCredential(s.ctx, a.ID, "CLUB-1-abc", "h1", time.Now()))
	err := s.store.IssueCredential(s.ctx, b.ID, "CLUB-1-abc", "h2", time.Now())
	s.ErrorIs(err, sentinel.ErrConflict)
}
