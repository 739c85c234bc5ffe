// Package service is the access decision engine: it validates presented
// credentials, applies the admission policy and records every decision.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"clubgate/internal/access"
	"clubgate/internal/access/metrics"
	"clubgate/internal/credential"
	"clubgate/internal/member"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/sentinel"
	"clubgate/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks MemberStore,RecordStore,Verifier,AuditPublisher

const (
	auditPayloadLimit  = 64
	recordPayloadLimit = 512
	recentLimit        = 10
	defaultPageSize    = 20
	maxPageSize        = 100
)

// MemberStore loads live members.
type MemberStore interface {
	FindLive(ctx context.Context, memberID id.MemberID) (*member.Member, error)
}

// RecordStore persists and queries access records.
type RecordStore interface {
	Create(ctx context.Context, record *access.Record) error
	List(ctx context.Context, filter access.HistoryFilter) ([]access.Record, int, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
	Recent(ctx context.Context, limit int) ([]access.Record, error)
	OutcomeCounts(ctx context.Context, from, to time.Time) (map[access.Outcome]int, error)
	HourlyCounts(ctx context.Context, from, to time.Time) (map[int]int, error)
}

// Verifier parses and checks QR payloads.
type Verifier interface {
	ExtractID(payload string) (id.MemberID, bool)
	Verify(payload string, memberID id.MemberID, document string, issuedAt time.Time) error
}

type AuditPublisher interface {
	Append(ctx context.Context, event audit.Event)
}

// Service is the decision engine. It holds no per-member state; every
// decision reads the member fresh from the store.
type Service struct {
	members  MemberStore
	records  RecordStore
	verifier Verifier
	auditor  AuditPublisher
	ceiling  float64
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New builds the engine. ceiling is the largest debt admitted with a warning.
func New(members MemberStore, records RecordStore, verifier Verifier, auditor AuditPublisher, ceiling float64, opts ...Option) (*Service, error) {
	if members == nil {
		return nil, errors.New("member store is required")
	}
	if records == nil {
		return nil, errors.New("access record store is required")
	}
	if verifier == nil {
		return nil, errors.New("credential verifier is required")
	}
	if auditor == nil {
		return nil, errors.New("audit publisher is required")
	}
	if ceiling < 0 {
		return nil, errors.New("warning debt ceiling must not be negative")
	}
	s := &Service{
		members:  members,
		records:  records,
		verifier: verifier,
		auditor:  auditor,
		ceiling:  ceiling,
		logger:   slog.Default(),
		tracer:   otel.Tracer("clubgate/internal/access"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ValidateQR decides on a scanned QR credential.
//
// Unparseable payloads and unknown members fail without a record. A payload
// that fails verification is recorded as rejected and fails with
// tampered_credential. Otherwise the admission policy decides and the record
// is persisted before the result is returned.
func (s *Service) ValidateQR(ctx context.Context, scan access.QRScan) (*access.Result, error) {
	ctx, span := s.tracer.Start(ctx, "access.ValidateQR",
		trace.WithAttributes(attribute.String("access.channel", string(access.ChannelQR))))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveDecision(string(access.ChannelQR), time.Since(start)) }()

	payload := strings.TrimSpace(scan.Payload)
	memberID, ok := s.verifier.ExtractID(payload)
	if !ok {
		s.metrics.IncCredentialFailure("unparseable")
		s.auditor.Append(ctx, audit.Event{
			Kind:        audit.KindCredentialUnparseable,
			Severity:    audit.SeverityWarning,
			Description: "unparseable QR",
			Details: map[string]any{
				"payload":   truncate(payload, auditPayloadLimit),
				"location":  scan.Location,
				"device_id": scan.DeviceID,
			},
		})
		return nil, fail(span, dErrors.New(dErrors.CodeMalformedCredential, "QR credential could not be parsed"))
	}
	span.SetAttributes(attribute.Int64("access.member_id", int64(memberID)))

	m, err := s.loadMember(ctx, memberID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnknownMember) {
			s.metrics.IncCredentialFailure("unknown_member")
			s.auditor.Append(ctx, audit.Event{
				Kind:        audit.KindCredentialUnknown,
				Severity:    audit.SeverityWarning,
				Description: "QR credential for unknown member",
				SubjectKind: audit.SubjectMember,
				SubjectID:   int64(memberID),
				Details: map[string]any{
					"payload":   truncate(payload, auditPayloadLimit),
					"location":  scan.Location,
					"device_id": scan.DeviceID,
				},
			})
		}
		return nil, fail(span, err)
	}

	var issuedAt time.Time
	if m.CredentialIssuedAt != nil {
		issuedAt = *m.CredentialIssuedAt
	}
	if verr := s.verifier.Verify(payload, m.ID, m.DocumentNumber, issuedAt); verr != nil {
		return nil, fail(span, s.rejectTampered(ctx, m, payload, scan.ScanContext, verr))
	}

	decision := access.EvaluateAdmission(m.State, m.Balance, s.ceiling)
	record := s.newRecord(ctx, m, access.ChannelQR, decision, scan.ScanContext)
	record.ScannedPayload = truncate(payload, recordPayloadLimit)
	record.PayloadVerified = true

	if err := s.persist(ctx, record); err != nil {
		return nil, fail(span, err)
	}
	s.auditDecision(ctx, record, false)
	span.SetAttributes(attribute.String("access.outcome", string(record.Outcome)))
	return s.result(record, m), nil
}

// RecordManual records an admission decided by an operator without a
// credential. With Force the member is admitted regardless of the policy.
func (s *Service) RecordManual(ctx context.Context, entry access.ManualEntry) (*access.Result, error) {
	ctx, span := s.tracer.Start(ctx, "access.RecordManual",
		trace.WithAttributes(
			attribute.String("access.channel", string(access.ChannelManual)),
			attribute.Int64("access.member_id", int64(entry.MemberID)),
			attribute.Bool("access.forced", entry.Force),
		))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveDecision(string(access.ChannelManual), time.Since(start)) }()

	if entry.MemberID.IsNil() {
		return nil, fail(span, dErrors.New(dErrors.CodeValidation, "miembro_id is required"))
	}
	m, err := s.loadMember(ctx, entry.MemberID)
	if err != nil {
		return nil, fail(span, err)
	}

	decision := access.EvaluateAdmission(m.State, m.Balance, s.ceiling)
	if entry.Force {
		decision = access.ForcedAdmission(m.State, m.Balance)
	}
	record := s.newRecord(ctx, m, access.ChannelManual, decision, access.ScanContext{
		Location:     entry.Location,
		Observations: entry.Observations,
	})
	if err := s.persist(ctx, record); err != nil {
		return nil, fail(span, err)
	}
	s.auditDecision(ctx, record, entry.Force)
	span.SetAttributes(attribute.String("access.outcome", string(record.Outcome)))
	return s.result(record, m), nil
}

func (s *Service) loadMember(ctx context.Context, memberID id.MemberID) (*member.Member, error) {
	ctx, span := s.tracer.Start(ctx, "access.loadMember")
	defer span.End()

	m, err := s.members.FindLive(ctx, memberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnknownMember, "member not found")
		}
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}
	return m, nil
}

// rejectTampered records the failed verification and returns the error the
// caller sees. A record that cannot be written turns the failure into an
// internal error.
func (s *Service) rejectTampered(ctx context.Context, m *member.Member, payload string, scan access.ScanContext, verr error) error {
	reason := "verification failed"
	if r, ok := credential.ReasonOf(verr); ok {
		reason = string(r)
	}
	s.metrics.IncCredentialFailure("tampered")

	record := s.newRecord(ctx, m, access.ChannelQR, access.TamperedDecision(reason), scan)
	record.ScannedPayload = truncate(payload, recordPayloadLimit)
	record.PayloadVerified = false
	if err := s.persist(ctx, record); err != nil {
		return err
	}

	s.auditor.Append(ctx, audit.Event{
		Kind:        audit.KindCredentialTampered,
		Severity:    audit.SeverityWarning,
		Description: record.Message,
		SubjectKind: audit.SubjectAccess,
		SubjectID:   int64(record.ID),
		Details: map[string]any{
			"member_id": int64(m.ID),
			"reason":    reason,
			"payload":   truncate(payload, auditPayloadLimit),
			"location":  scan.Location,
			"device_id": scan.DeviceID,
		},
	})
	s.logger.WarnContext(ctx, "tampered QR credential",
		"member_id", m.ID,
		"reason", reason,
		"access_id", record.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.New(dErrors.CodeTamperedCredential, "tampered credential: "+reason)
}

func (s *Service) newRecord(ctx context.Context, m *member.Member, channel access.Channel, d access.Decision, scan access.ScanContext) *access.Record {
	return &access.Record{
		MemberID:      m.ID,
		OccurredAt:    requestcontext.Now(ctx).UTC(),
		Channel:       channel,
		Outcome:       d.Outcome,
		Level:         d.Level,
		Location:      strings.TrimSpace(scan.Location),
		DeviceID:      strings.TrimSpace(scan.DeviceID),
		Message:       d.Message,
		OperatorID:    requestcontext.UserID(ctx),
		MemberState:   m.State,
		MemberBalance: m.Balance,
		Latitude:      scan.Latitude,
		Longitude:     scan.Longitude,
		Observations:  strings.TrimSpace(scan.Observations),
	}
}

func (s *Service) persist(ctx context.Context, record *access.Record) error {
	ctx, span := s.tracer.Start(ctx, "access.persistRecord")
	defer span.End()

	if err := s.records.Create(ctx, record); err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "failed to persist access record",
			"member_id", record.MemberID,
			"channel", record.Channel,
			"outcome", record.Outcome,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record access decision")
	}
	s.metrics.IncDecision(string(record.Channel), string(record.Outcome))
	return nil
}

func (s *Service) auditDecision(ctx context.Context, record *access.Record, forced bool) {
	kind, severity := audit.KindAccessPermitted, audit.SeverityInfo
	switch record.Outcome {
	case access.OutcomeWarned:
		kind = audit.KindAccessWarned
	case access.OutcomeRejected:
		kind, severity = audit.KindAccessDenied, audit.SeverityWarning
	}
	details := map[string]any{
		"member_id":      int64(record.MemberID),
		"channel":        string(record.Channel),
		"outcome":        string(record.Outcome),
		"member_state":   string(record.MemberState),
		"member_balance": record.MemberBalance,
		"location":       record.Location,
	}
	if record.DeviceID != "" {
		details["device_id"] = record.DeviceID
	}
	if forced {
		details["forced"] = true
	}
	s.auditor.Append(ctx, audit.Event{
		Kind:        kind,
		Severity:    severity,
		Description: record.Message,
		SubjectKind: audit.SubjectAccess,
		SubjectID:   int64(record.ID),
		Details:     details,
	})
}

func (s *Service) result(record *access.Record, m *member.Member) *access.Result {
	res := &access.Result{
		Record:      record,
		Member:      m,
		DaysOverdue: m.DaysOverdue(record.OccurredAt),
	}
	if m.Balance < 0 {
		debt := m.Debt()
		res.Debt = &debt
	}
	return res
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, dErrors.MessageOf(err))
	return err
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
