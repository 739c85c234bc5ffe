// Package service enrolls members and issues their QR credentials.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"clubgate/internal/member"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/sentinel"
	"clubgate/pkg/requestcontext"
)

// Store persists members.
type Store interface {
	Create(ctx context.Context, m *member.Member) error
	FindLive(ctx context.Context, memberID id.MemberID) (*member.Member, error)
	SetNumber(ctx context.Context, memberID id.MemberID, number string) error
	IssueCredential(ctx context.Context, memberID id.MemberID, payload, hash string, issuedAt time.Time) error
}

// Issuer produces credential payloads.
type Issuer interface {
	Prefix() string
	Issue(memberID id.MemberID, document string, issuedAt time.Time) (payload, hash string)
}

type AuditPublisher interface {
	Append(ctx context.Context, event audit.Event)
}

// TxRunner runs fn in a single transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Service struct {
	store   Store
	issuer  Issuer
	auditor AuditPublisher
	runTx   TxRunner
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTxRunner makes enrollment atomic.
func WithTxRunner(run TxRunner) Option {
	return func(s *Service) {
		if run != nil {
			s.runTx = run
		}
	}
}

func New(store Store, issuer Issuer, auditor AuditPublisher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("member store is required")
	}
	if issuer == nil {
		return nil, errors.New("credential issuer is required")
	}
	if auditor == nil {
		return nil, errors.New("audit publisher is required")
	}
	s := &Service{
		store:   store,
		issuer:  issuer,
		auditor: auditor,
		runTx:   noTx,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enroll creates a member, assigns the member number and issues the
// credential in one unit.
func (s *Service) Enroll(ctx context.Context, in member.Enrollment) (*member.Member, error) {
	if err := validateEnrollment(&in); err != nil {
		return nil, err
	}

	// Postgres keeps microseconds; the checksum must survive a round trip.
	issuedAt := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)
	m := &member.Member{
		DocumentType:   in.DocumentType,
		DocumentNumber: in.DocumentNumber,
		FullName:       in.FullName,
		Category:       in.Category,
		PhotoURL:       in.PhotoURL,
		State:          in.State,
		Balance:        in.Balance,
		LastPaidPeriod: in.LastPaidPeriod,
		NextDueDate:    in.NextDueDate,
		CreatedAt:      issuedAt,
	}

	err := s.runTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, m); err != nil {
			return err
		}
		m.Number = member.FormatNumber(s.issuer.Prefix(), int64(m.ID))
		if err := s.store.SetNumber(ctx, m.ID, m.Number); err != nil {
			return err
		}
		payload, hash := s.issuer.Issue(m.ID, m.DocumentNumber, issuedAt)
		if err := s.store.IssueCredential(ctx, m.ID, payload, hash, issuedAt); err != nil {
			return err
		}
		m.CredentialPayload = payload
		m.CredentialHash = hash
		m.CredentialIssuedAt = &issuedAt
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a member with this document already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to enroll member")
	}

	s.auditor.Append(ctx, audit.Event{
		Kind:        audit.KindMemberCreated,
		Severity:    audit.SeverityInfo,
		Description: "member enrolled",
		SubjectKind: audit.SubjectMember,
		SubjectID:   int64(m.ID),
		Details: map[string]any{
			"member_number": m.Number,
			"state":         string(m.State),
		},
	})
	s.logger.InfoContext(ctx, "member enrolled",
		"member_id", m.ID,
		"member_number", m.Number,
		"request_id", requestcontext.RequestID(ctx),
	)
	return m, nil
}

// Get returns a live member.
func (s *Service) Get(ctx context.Context, memberID id.MemberID) (*member.Member, error) {
	m, err := s.store.FindLive(ctx, memberID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "member not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member")
	}
	return m, nil
}

func validateEnrollment(in *member.Enrollment) error {
	in.DocumentType = strings.TrimSpace(in.DocumentType)
	in.DocumentNumber = strings.TrimSpace(in.DocumentNumber)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.DocumentType == "" {
		in.DocumentType = "DNI"
	}
	if in.State == "" {
		in.State = member.StateActive
	}
	switch {
	case in.DocumentNumber == "":
		return dErrors.New(dErrors.CodeValidation, "document number is required")
	case strings.Contains(in.DocumentNumber, "|"):
		return dErrors.New(dErrors.CodeValidation, "document number must not contain '|'")
	case in.FullName == "":
		return dErrors.New(dErrors.CodeValidation, "full name is required")
	case !in.State.IsValid():
		return dErrors.New(dErrors.CodeValidation, "unknown member state")
	}
	return nil
}
