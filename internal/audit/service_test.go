package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "clubgate/pkg/domain-errors"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/audit/store/memory"
)

func seedStore(t *testing.T) *memory.InMemoryStore {
	t.Helper()
	store := memory.NewInMemoryStore()
	base := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	events := []audit.Event{
		{Kind: audit.KindLoginSucceeded, Severity: audit.SeverityInfo, Description: "login succeeded", ActorID: 1},
		{Kind: audit.KindLoginFailed, Severity: audit.SeverityWarning, Description: "login failed: bad password"},
		{Kind: audit.KindAccessDenied, Severity: audit.SeverityWarning, Description: "access denied: membership suspended", ActorID: 2, SubjectKind: audit.SubjectAccess, SubjectID: 9},
		{Kind: audit.KindCredentialTampered, Severity: audit.SeverityWarning, Description: "tampered credential: checksum mismatch", ActorID: 2},
	}
	for i := range events {
		events[i].Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Append(context.Background(), &events[i]))
	}
	return store
}

func TestList(t *testing.T) {
	svc := NewService(seedStore(t))
	ctx := context.Background()

	page, err := svc.List(ctx, audit.Filter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 50, page.PageSize)
	require.Len(t, page.Events, 4)
	assert.Equal(t, audit.KindCredentialTampered, page.Events[0].Kind)

	page, err = svc.List(ctx, audit.Filter{Severity: audit.SeverityWarning, ActorID: 2}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Events, 1)

	page, err = svc.List(ctx, audit.Filter{Search: "SUSPENDED"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, int64(9), page.Events[0].SubjectID)
}

func TestListValidation(t *testing.T) {
	svc := NewService(seedStore(t))
	now := time.Now()
	cases := map[string]struct {
		filter   audit.Filter
		page     int
		pageSize int
	}{
		"negative page":    {page: -2},
		"oversized page":   {pageSize: 500},
		"unknown kind":     {filter: audit.Filter{Kind: "coffee_break"}},
		"unknown severity": {filter: audit.Filter{Severity: "fatal"}},
		"inverted range":   {filter: audit.Filter{From: now, To: now.Add(-time.Minute)}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.List(context.Background(), tc.filter, tc.page, tc.pageSize)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestGet(t *testing.T) {
	svc := NewService(seedStore(t))

	event, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, audit.KindLoginSucceeded, event.Kind)

	_, err = svc.Get(context.Background(), 999)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
