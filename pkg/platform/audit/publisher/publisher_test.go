package publisher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "clubgate/pkg/domain"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/audit/store/memory"
	"clubgate/pkg/requestcontext"
)

type failingStore struct {
	*memory.InMemoryStore
	err error
}

func (s *failingStore) Append(ctx context.Context, event *audit.Event) error {
	if s.err != nil {
		return s.err
	}
	return s.InMemoryStore.Append(ctx, event)
}

type recordingSink struct {
	events []audit.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, event audit.Event) error {
	s.events = append(s.events, event)
	return s.err
}

func listAll(t *testing.T, store audit.Store) []audit.Event {
	t.Helper()
	events, _, err := store.List(context.Background(), audit.Filter{})
	require.NoError(t, err)
	return events
}

func TestPublisher_EnrichesFromRequestContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)

	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.9", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	ctx = requestcontext.WithUserID(ctx, id.UserID(3))

	pub.Append(ctx, audit.Event{Kind: audit.KindUserCreated, Description: "user created"})

	events := listAll(t, store)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, id.EventID(1), got.ID)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "10.0.0.9", got.IP)
	assert.Equal(t, id.UserID(3), got.ActorID)
	assert.Equal(t, audit.SeverityInfo, got.Severity)
	require.Contains(t, got.Details, "client")
	client := got.Details["client"].(map[string]any)
	assert.Equal(t, "Chrome", client["browser"])
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))

	pub.Append(context.Background(), audit.Event{Kind: audit.KindLoginSucceeded})

	events := listAll(t, store)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	pub.Append(context.Background(), audit.Event{Kind: audit.KindUserCreated, Timestamp: customTime})

	events := listAll(t, store)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_StoreFailureIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore(), err: errors.New("db down")}
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(store, WithLogger(logger), WithMetrics(metrics))

	assert.NotPanics(t, func() {
		pub.Append(context.Background(), audit.Event{Kind: audit.KindAccessPermitted})
	})
	assert.Contains(t, buf.String(), "failed to append audit event")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PersistFailures))
}

func TestPublisher_BreakerFallsBackToLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store := &failingStore{InMemoryStore: memory.NewInMemoryStore(), err: errors.New("db down")}
	metrics := NewMetrics(prometheus.NewRegistry())
	pub := NewPublisher(store, WithLogger(logger), WithMetrics(metrics))

	for iter := 0; iter < 6; iter++ {
		pub.Append(context.Background(), audit.Event{Kind: audit.KindAccessDenied, Description: "rejected"})
	}
	assert.Contains(t, buf.String(), "audit store circuit opened")
	assert.Contains(t, buf.String(), "audit event not persisted")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BreakerState))

	store.err = nil
	pub.Append(context.Background(), audit.Event{Kind: audit.KindAccessPermitted})
	pub.Append(context.Background(), audit.Event{Kind: audit.KindAccessPermitted})
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.BreakerState))
	assert.Len(t, listAll(t, store), 2)
}

func TestPublisher_ErrorSeverityGoesToProcessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pub := NewPublisher(memory.NewInMemoryStore(), WithLogger(logger))

	pub.Append(context.Background(), audit.Event{Kind: audit.KindAccessPermitted, Severity: audit.SeverityInfo})
	assert.Empty(t, buf.String())

	pub.Append(context.Background(), audit.Event{Kind: audit.KindCredentialTampered, Severity: audit.SeverityCritical, Description: "tampered"})
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), "credential_tampered")
}

func TestPublisher_MirrorsToSinks(t *testing.T) {
	store := memory.NewInMemoryStore()
	ok := &recordingSink{}
	broken := &recordingSink{err: errors.New("broker down")}
	pub := NewPublisher(store, WithSink(ok), WithSink(broken))

	pub.Append(context.Background(), audit.Event{Kind: audit.KindUserDeleted})

	require.Len(t, ok.events, 1)
	assert.Equal(t, id.EventID(1), ok.events[0].ID, "sinks receive the stored id")
	assert.Len(t, broken.events, 1)
	assert.Len(t, listAll(t, store), 1)
}
