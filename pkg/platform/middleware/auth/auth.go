// Package auth is the authorization gate: it turns a bearer access token into
// an authenticated principal and enforces minimum roles per route.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/httputil"
	request "clubgate/pkg/platform/middleware/request"
	"clubgate/pkg/requestcontext"
)

// JWTValidator validates access tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims are the access-token claims the gate relies on.
type JWTClaims struct {
	Subject string
	UserID  id.UserID
	Role    string
	Email   string
	JTI     string
}

// Principal is the current state of the user behind a token.
type Principal struct {
	ID       id.UserID
	Username string
	Email    string
	Role     id.Role
	Active   bool
	Deleted  bool
}

// UserResolver loads the principal for a token. A missing user is reported
// with dErrors.CodeNotFound.
type UserResolver interface {
	ResolvePrincipal(ctx context.Context, userID id.UserID) (*Principal, error)
}

// AuditAppender records gate denials.
type AuditAppender interface {
	Append(ctx context.Context, event audit.Event)
}

// Failure is the specific reason a request was turned away. Callers only see
// the collapsed 401 or the 403; the failure goes to the audit log.
type Failure string

const (
	FailureMissingToken     Failure = "missing_token"
	FailureMalformedToken   Failure = "malformed_token"
	FailureExpiredToken     Failure = "expired_token"
	FailureWrongTokenType   Failure = "wrong_token_type"
	FailureUnknownUser      Failure = "unknown_user"
	FailureInactive         Failure = "inactive"
	FailureDeleted          Failure = "deleted"
	FailureInsufficientRole Failure = "insufficient_role"
)

const unauthorizedDescription = "invalid or expired token"

type Gate struct {
	validator JWTValidator
	users     UserResolver
	auditor   AuditAppender
	logger    *slog.Logger
}

func NewGate(validator JWTValidator, users UserResolver, auditor AuditAppender, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{validator: validator, users: users, auditor: auditor, logger: logger}
}

func (g *Gate) RequireSuperAdmin() func(http.Handler) http.Handler {
	return g.Require(id.RoleSuperAdmin)
}

func (g *Gate) RequireAdmin() func(http.Handler) http.Handler {
	return g.Require(id.RoleAdministrator)
}

func (g *Gate) RequireOperator() func(http.Handler) http.Handler {
	return g.Require(id.RoleOperator)
}

func (g *Gate) RequireGatekeeper() func(http.Handler) http.Handler {
	return g.Require(id.RoleGatekeeper)
}

// RequireAuthenticated admits any active user.
func (g *Gate) RequireAuthenticated() func(http.Handler) http.Handler {
	return g.Require(id.RoleReadOnly)
}

// Require admits active users whose role ranks at least min.
func (g *Gate) Require(min id.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, failure, err := g.authenticate(ctx, r)
			if err != nil {
				g.logger.ErrorContext(ctx, "failed to resolve token user",
					"request_id", request.GetRequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to authorize request"))
				return
			}
			if failure != "" {
				g.deny(ctx, r, principal, failure, min)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, unauthorizedDescription))
				return
			}
			if !principal.Role.AtLeast(min) {
				g.deny(ctx, r, principal, FailureInsufficientRole, min)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInsufficientRole, "insufficient role for this operation"))
				return
			}

			ctx = requestcontext.WithUserID(ctx, principal.ID)
			ctx = requestcontext.WithUserRole(ctx, string(principal.Role))
			ctx = requestcontext.WithUserEmail(ctx, principal.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate returns a principal, or the failure that stops the request.
// err is set only for infrastructure failures.
func (g *Gate) authenticate(ctx context.Context, r *http.Request) (*Principal, Failure, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, FailureMissingToken, nil
	}

	claims, err := g.validator.ValidateToken(token)
	if err != nil {
		switch dErrors.CodeOf(err) {
		case dErrors.CodeExpiredToken:
			return nil, FailureExpiredToken, nil
		case dErrors.CodeWrongTokenType:
			return nil, FailureWrongTokenType, nil
		default:
			return nil, FailureMalformedToken, nil
		}
	}
	if claims.UserID.IsNil() {
		return nil, FailureMalformedToken, nil
	}

	principal, err := g.users.ResolvePrincipal(ctx, claims.UserID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return &Principal{ID: claims.UserID, Username: claims.Subject}, FailureUnknownUser, nil
		}
		return nil, "", err
	}
	switch {
	case principal.Deleted:
		return principal, FailureDeleted, nil
	case !principal.Active:
		return principal, FailureInactive, nil
	}
	return principal, "", nil
}

func (g *Gate) deny(ctx context.Context, r *http.Request, principal *Principal, failure Failure, min id.Role) {
	requestID := request.GetRequestID(ctx)
	g.logger.WarnContext(ctx, "request denied",
		"request_id", requestID,
		"reason", string(failure),
		"path", r.URL.Path,
	)
	if g.auditor == nil {
		return
	}

	details := map[string]any{
		"reason":        string(failure),
		"method":        r.Method,
		"path":          r.URL.Path,
		"required_role": string(min),
	}
	event := audit.Event{
		Kind:        audit.KindAuthorizationDenied,
		Severity:    audit.SeverityWarning,
		Description: "request denied: " + string(failure),
		Details:     details,
	}
	if principal != nil {
		event.ActorID = principal.ID
		if principal.Role != "" {
			details["role"] = string(principal.Role)
		}
	}
	g.auditor.Append(ctx, event)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
