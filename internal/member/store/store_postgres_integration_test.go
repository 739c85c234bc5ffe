//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubgate/internal/member"
	"clubgate/pkg/platform/sentinel"
	"clubgate/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	st := NewPostgres(pg.DB)
	ctx := context.Background()

	due := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	m := &member.Member{
		DocumentType:   "DNI",
		DocumentNumber: "10203040",
		FullName:       "Ana Pérez",
		Category:       "Activo",
		State:          member.StateDelinquent,
		Balance:        -250.5,
		NextDueDate:    &due,
	}
	require.NoError(t, st.Create(ctx, m))
	require.NoError(t, st.SetNumber(ctx, m.ID, member.FormatNumber("CLUB", int64(m.ID))))

	issued := time.Date(2025, 1, 1, 0, 0, 0, 123456000, time.UTC)
	require.NoError(t, st.IssueCredential(ctx, m.ID, "CLUB-1-0123456789abcdef", "hash-1", issued))
	assert.ErrorIs(t, st.IssueCredential(ctx, m.ID, "CLUB-1-fedcba9876543210", "hash-2", issued), sentinel.ErrInvalidState)

	found, err := st.FindLive(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "CLUB000001", found.Number)
	assert.Equal(t, member.StateDelinquent, found.State)
	assert.InDelta(t, -250.5, found.Balance, 0.001)
	require.NotNil(t, found.CredentialIssuedAt)
	assert.True(t, issued.Equal(*found.CredentialIssuedAt))
	require.NotNil(t, found.NextDueDate)
	assert.True(t, due.Equal(*found.NextDueDate))
	assert.Nil(t, found.LastPaidPeriod)

	err = st.Create(ctx, &member.Member{DocumentType: "DNI", DocumentNumber: "10203040", FullName: "Dup", State: member.StateActive})
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	_, err = st.FindLive(ctx, 999)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, st.IssueCredential(ctx, 999, "CLUB-999-x", "h", issued), sentinel.ErrNotFound)
}
