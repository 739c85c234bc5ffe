//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/audit/sink"
	"clubgate/pkg/testutil/containers"
)

func TestClientMirrorsAuditEvents(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	const topic = "clubgate.audit.test"
	client, err := New(ctx, Config{Brokers: []string{rp.Broker}, Topic: topic, Partitions: 1}, logger)
	require.NoError(t, err)
	defer client.Close(context.Background())

	require.NoError(t, client.EnsureTopic(ctx))
	require.NoError(t, client.EnsureTopic(ctx), "second call must tolerate an existing topic")

	mirror := sink.NewKafka(client, topic, logger)
	require.NoError(t, mirror.Publish(ctx, audit.Event{
		ID:          7,
		Kind:        audit.KindAccessDenied,
		Severity:    audit.SeverityWarning,
		Description: "access denied: membership suspended",
		SubjectKind: audit.SubjectMember,
		SubjectID:   42,
		Timestamp:   time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC),
	}))
	require.NoError(t, client.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) == 0 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		require.Empty(t, fetches.Errors())
		records = append(records, fetches.Records()...)
	}
	require.Len(t, records, 1)
	assert.Equal(t, "member:42", string(records[0].Key))

	var body map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &body))
	assert.Equal(t, "access_denied", body["kind"])
	assert.Equal(t, "compliance", body["category"])
}

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(context.Background(), Config{Topic: "t"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}
