// Package publisher is the single entry point for writing audit events.
//
// Append is best-effort: persistence failures are logged and counted, never
// returned, so an audit outage cannot fail the operation being audited.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/mssola/useragent"

	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/circuit"
	"clubgate/pkg/requestcontext"
)

// Publisher enriches events with request metadata and persists them.
type Publisher struct {
	store   audit.Store
	sinks   []audit.Sink
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker
	now     func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithSink adds a sink that receives every persisted event.
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

// WithClock overrides the timestamp source for events without one.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a publisher over store.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		logger:  slog.Default(),
		breaker: circuit.New("audit-store", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Append persists event. It never fails: errors are logged and counted.
// Error and critical events are also written to the process log.
func (p *Publisher) Append(ctx context.Context, event audit.Event) {
	p.enrich(ctx, &event)

	if event.Severity == audit.SeverityError || event.Severity == audit.SeverityCritical {
		p.logger.ErrorContext(ctx, "audit event",
			"kind", event.Kind,
			"severity", event.Severity,
			"description", event.Description,
			"actor_user_id", event.ActorID,
			"request_id", event.RequestID,
		)
	}

	if err := p.store.Append(ctx, &event); err != nil {
		p.metrics.IncPersistFailures()
		useFallback, change := p.breaker.RecordFailure()
		if change.Opened {
			p.metrics.SetBreakerState(true)
			p.logger.ErrorContext(ctx, "audit store circuit opened", "error", err)
		}
		if useFallback {
			// The store is down: keep the event in the process log.
			p.logger.WarnContext(ctx, "audit event not persisted",
				"kind", event.Kind,
				"severity", event.Severity,
				"description", event.Description,
				"details", event.Details,
				"request_id", event.RequestID,
			)
			return
		}
		p.logger.ErrorContext(ctx, "failed to append audit event",
			"kind", event.Kind,
			"request_id", event.RequestID,
			"error", err,
		)
		return
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.metrics.SetBreakerState(false)
		p.logger.InfoContext(ctx, "audit store circuit closed")
	}
	p.metrics.IncAppended(string(event.Kind), string(event.Severity))

	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			p.metrics.IncSinkFailures()
			p.logger.WarnContext(ctx, "failed to mirror audit event",
				"kind", event.Kind,
				"event_id", event.ID,
				"request_id", event.RequestID,
				"error", err,
			)
		}
	}
}

func (p *Publisher) enrich(ctx context.Context, event *audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	event.Timestamp = event.Timestamp.UTC()
	if event.Severity == "" {
		event.Severity = audit.SeverityInfo
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}
	if event.ActorID.IsNil() {
		event.ActorID = requestcontext.UserID(ctx)
	}
	if event.UserAgent != "" {
		if event.Details == nil {
			event.Details = map[string]any{}
		}
		if _, ok := event.Details["client"]; !ok {
			event.Details["client"] = describeAgent(event.UserAgent)
		}
	}
}

// describeAgent summarizes a User-Agent header for the details column.
func describeAgent(raw string) map[string]any {
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return map[string]any{
		"browser": name,
		"version": version,
		"os":      ua.OS(),
		"mobile":  ua.Mobile(),
		"bot":     ua.Bot(),
	}
}
