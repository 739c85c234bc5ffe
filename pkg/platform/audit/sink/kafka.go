// Package sink mirrors persisted audit events to Kafka so downstream SIEM and
// reporting consumers can follow them without polling Postgres.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "clubgate/pkg/platform/audit"
)

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// payload is the JSON published for each event.
type payload struct {
	ID          int64          `json:"id"`
	Category    string         `json:"category"`
	Kind        string         `json:"kind"`
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	ActorUserID *int64         `json:"actor_user_id,omitempty"`
	SubjectKind string         `json:"subject_kind,omitempty"`
	SubjectID   int64          `json:"subject_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	IP          string         `json:"ip,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

// Kafka publishes events asynchronously; delivery failures are logged by the
// produce callback. A full producer buffer drops the event rather than
// stalling the caller.
type Kafka struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

func NewKafka(producer Producer, topic string, logger *slog.Logger) *Kafka {
	return &Kafka{producer: producer, topic: topic, logger: logger}
}

// Publish enqueues the event. The record outlives the request, so the
// request's cancellation is detached.
func (k *Kafka) Publish(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(payload{
		ID:          int64(event.ID),
		Category:    string(event.Kind.Category()),
		Kind:        string(event.Kind),
		Severity:    string(event.Severity),
		Description: event.Description,
		ActorUserID: event.ActorID.Int64Ptr(),
		SubjectKind: string(event.SubjectKind),
		SubjectID:   event.SubjectID,
		Details:     event.Details,
		IP:          event.IP,
		RequestID:   event.RequestID,
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit event %d: %w", event.ID, err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(recordKey(event)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Kind.Category())},
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
		Timestamp: event.Timestamp,
	}

	k.producer.TryProduce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		switch {
		case err == nil:
		case errors.Is(err, kgo.ErrMaxBuffered):
			k.logger.Warn("audit event dropped, producer buffer full",
				"event_id", event.ID,
				"kind", event.Kind,
			)
		default:
			k.logger.Warn("audit event delivery failed",
				"event_id", event.ID,
				"kind", event.Kind,
				"error", err,
			)
		}
	})
	return nil
}

// recordKey keeps every event about one subject on one partition.
func recordKey(event audit.Event) string {
	if event.SubjectKind != "" && event.SubjectID != 0 {
		return fmt.Sprintf("%s:%d", event.SubjectKind, event.SubjectID)
	}
	return string(event.Kind.Category())
}
