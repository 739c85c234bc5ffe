package service

import (
	"context"
	"errors"

	"clubgate/internal/auth/models"
	jwttoken "clubgate/internal/jwt_token"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/sentinel"
	"clubgate/pkg/requestcontext"
)

// passwordHasher is satisfied by *password.Hasher.
type passwordHasher interface {
	Hash(plain string) (string, error)
	Matches(hash, plain string) bool
	Equalize(plain string)
}

// Authenticate checks login (username or email) and password. Every failure
// returns the same invalid-credentials error and spends one bcrypt
// comparison; the specific cause is written to the audit log.
func (s *Service) Authenticate(ctx context.Context, login, plain string) (*models.User, error) {
	login = normalizeLogin(login)
	ip := requestcontext.ClientIP(ctx)

	if s.throttle != nil {
		locked, err := s.throttle.Locked(ctx, login, ip)
		if err != nil {
			return nil, err
		}
		if locked {
			s.hasher.Equalize(plain)
			s.auditor.Append(ctx, audit.Event{
				Kind:        audit.KindLoginLocked,
				Severity:    audit.SeverityWarning,
				Description: "login attempt while locked out",
				Details:     map[string]any{"login": login, "reason": string(models.FailureLocked)},
			})
			return nil, invalidCredentials()
		}
	}

	user, err := s.users.FindByLogin(ctx, login)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	var failure models.AuthFailure
	switch {
	case user == nil:
		s.hasher.Equalize(plain)
		failure = models.FailureUnknownUser
	case !s.hasher.Matches(user.PasswordHash, plain):
		failure = models.FailureBadPassword
	default:
		failure = user.UsabilityFailure()
	}

	if failure != "" {
		s.recordLoginFailure(ctx, login, ip, user, failure)
		return nil, invalidCredentials()
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, login, ip); err != nil {
			s.logger.WarnContext(ctx, "failed to reset login attempts",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	now := requestcontext.Now(ctx)
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record last login")
	}
	user.LastLoginAt = &now
	return user, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, login, ip string, user *models.User, failure models.AuthFailure) {
	event := audit.Event{
		Kind:        audit.KindLoginFailed,
		Severity:    audit.SeverityWarning,
		Description: "login failed: " + string(failure),
		Details:     map[string]any{"login": login, "reason": string(failure)},
	}
	if user != nil {
		event.SubjectKind = audit.SubjectUser
		event.SubjectID = int64(user.ID)
	}
	s.auditor.Append(ctx, event)

	if s.throttle == nil {
		return
	}
	locked, err := s.throttle.RecordFailure(ctx, login, ip)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record login failure",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}
	if locked {
		s.auditor.Append(ctx, audit.Event{
			Kind:        audit.KindLoginLocked,
			Severity:    audit.SeverityError,
			Description: "too many failed logins",
			Details:     map[string]any{"login": login},
		})
	}
}

// Login authenticates and issues a token pair.
func (s *Service) Login(ctx context.Context, login, plain string) (*models.TokenResult, error) {
	user, err := s.Authenticate(ctx, login, plain)
	if err != nil {
		return nil, err
	}
	result, err := s.IssueTokens(user)
	if err != nil {
		return nil, err
	}
	s.auditor.Append(ctx, userEvent(audit.KindLoginSucceeded, audit.SeverityInfo, user.ID,
		"user logged in", map[string]any{"username": user.Username}))
	return result, nil
}

// IssueTokens signs an access and a refresh token for user.
func (s *Service) IssueTokens(user *models.User) (*models.TokenResult, error) {
	access, err := s.tokens.GenerateAccessToken(accessSubject(user))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate access token")
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.Username)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate refresh token")
	}
	return &models.TokenResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    s.tokens.AccessTTL(),
		User:         user,
	}, nil
}

// RefreshAccess exchanges a refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *Service) RefreshAccess(ctx context.Context, refreshToken string) (*models.TokenResult, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.auditor.Append(ctx, audit.Event{
			Kind:        audit.KindTokenRefreshFailed,
			Severity:    audit.SeverityWarning,
			Description: "refresh token rejected",
			Details:     map[string]any{"reason": string(dErrors.CodeOf(err))},
		})
		return nil, err
	}

	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if failure := user.UsabilityFailure(); failure != "" {
		event := audit.Event{
			Kind:        audit.KindTokenRefreshFailed,
			Severity:    audit.SeverityWarning,
			Description: "refresh for unusable account",
			Details:     map[string]any{"reason": string(failure), "username": claims.Subject},
		}
		if user != nil {
			event.SubjectKind = audit.SubjectUser
			event.SubjectID = int64(user.ID)
		}
		s.auditor.Append(ctx, event)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid refresh token")
	}

	access, err := s.tokens.GenerateAccessToken(accessSubject(user))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate access token")
	}
	s.auditor.Append(ctx, userEvent(audit.KindTokenRefreshed, audit.SeverityInfo, user.ID, "access token refreshed", nil))
	return &models.TokenResult{
		AccessToken: access,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   s.tokens.AccessTTL(),
		User:        user,
	}, nil
}

func accessSubject(user *models.User) jwttoken.AccessSubject {
	return jwttoken.AccessSubject{
		Username: user.Username,
		UserID:   user.ID,
		Role:     string(user.Role),
		Email:    user.Email,
	}
}
