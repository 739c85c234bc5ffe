// Package service implements operator identity: login, token refresh,
// password changes and account administration.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"clubgate/internal/auth/models"
	"clubgate/internal/auth/password"
	jwttoken "clubgate/internal/jwt_token"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/platform/audit"
	"clubgate/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,TokenIssuer,AuditPublisher,LoginThrottle

// UserStore persists operator accounts. Lookups return soft-deleted users too.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Taken(ctx context.Context, username, email string) (usernameTaken, emailTaken bool, err error)
	Update(ctx context.Context, user *models.User) error
	TouchLastLogin(ctx context.Context, userID id.UserID, at time.Time) error
	List(ctx context.Context) ([]*models.User, error)
}

// TokenIssuer signs and validates session tokens.
type TokenIssuer interface {
	GenerateAccessToken(subject jwttoken.AccessSubject) (string, error)
	GenerateRefreshToken(username string) (string, error)
	ValidateRefreshToken(token string) (*jwttoken.Claims, error)
	AccessTTL() time.Duration
}

// AuditPublisher records security and compliance events.
type AuditPublisher interface {
	Append(ctx context.Context, event audit.Event)
}

// LoginThrottle counts failed logins per login+ip.
type LoginThrottle interface {
	Locked(ctx context.Context, login, ip string) (bool, error)
	RecordFailure(ctx context.Context, login, ip string) (bool, error)
	Reset(ctx context.Context, login, ip string) error
}

// Actor is the authenticated user performing an administrative action.
type Actor struct {
	ID   id.UserID
	Role id.Role
}

// ActorFrom reads the actor the authorization gate placed on ctx.
func ActorFrom(ctx context.Context) Actor {
	role, _ := id.ParseRole(requestcontext.UserRole(ctx))
	return Actor{ID: requestcontext.UserID(ctx), Role: role}
}

const tokenTypeBearer = "bearer"

type Service struct {
	users    UserStore
	tokens   TokenIssuer
	hasher   passwordHasher
	auditor  AuditPublisher
	throttle LoginThrottle
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLoginThrottle enables login lockout.
func WithLoginThrottle(throttle LoginThrottle) Option {
	return func(s *Service) {
		s.throttle = throttle
	}
}

func New(users UserStore, tokens TokenIssuer, hasher *password.Hasher, auditor AuditPublisher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if hasher == nil {
		return nil, errors.New("password hasher is required")
	}
	if auditor == nil {
		return nil, errors.New("audit publisher is required")
	}
	s := &Service{
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		auditor: auditor,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func invalidCredentials() error {
	return dErrors.New(dErrors.CodeInvalidCredentials, "invalid credentials")
}

// userEvent builds an audit event about a user account.
func userEvent(kind audit.Kind, severity audit.Severity, subject id.UserID, description string, details map[string]any) audit.Event {
	return audit.Event{
		Kind:        kind,
		Severity:    severity,
		Description: description,
		SubjectKind: audit.SubjectUser,
		SubjectID:   int64(subject),
		Details:     details,
	}
}

func normalizeLogin(login string) string {
	return strings.TrimSpace(login)
}
