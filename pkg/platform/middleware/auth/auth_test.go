package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/platform/audit"
	"clubgate/pkg/requestcontext"
)

type stubValidator struct {
	claims map[string]*JWTClaims
	errs   map[string]error
}

func (v *stubValidator) ValidateToken(token string) (*JWTClaims, error) {
	if err, ok := v.errs[token]; ok {
		return nil, err
	}
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token")
}

type stubResolver struct {
	users map[id.UserID]*Principal
	err   error
}

func (r *stubResolver) ResolvePrincipal(_ context.Context, userID id.UserID) (*Principal, error) {
	if r.err != nil {
		return nil, r.err
	}
	if p, ok := r.users[userID]; ok {
		return p, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Append(_ context.Context, event audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

type GateSuite struct {
	suite.Suite
	validator *stubValidator
	resolver  *stubResolver
	auditor   *recordingAuditor
	gate      *Gate
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.validator = &stubValidator{
		claims: map[string]*JWTClaims{
			"admin":    {Subject: "admin", UserID: 1},
			"keeper":   {Subject: "keeper", UserID: 2},
			"inactive": {Subject: "inactive", UserID: 3},
			"deleted":  {Subject: "deleted", UserID: 4},
			"ghost":    {Subject: "ghost", UserID: 99},
			"no-user":  {Subject: "no-user"},
		},
		errs: map[string]error{
			"expired": dErrors.New(dErrors.CodeExpiredToken, "token has expired"),
			"refresh": dErrors.New(dErrors.CodeWrongTokenType, "unexpected token type"),
		},
	}
	s.resolver = &stubResolver{users: map[id.UserID]*Principal{
		1: {ID: 1, Username: "admin", Role: id.RoleAdministrator, Active: true},
		2: {ID: 2, Username: "keeper", Role: id.RoleGatekeeper, Active: true},
		3: {ID: 3, Username: "inactive", Role: id.RoleSuperAdmin, Active: false},
		4: {ID: 4, Username: "deleted", Role: id.RoleSuperAdmin, Active: true, Deleted: true},
	}}
	s.auditor = &recordingAuditor{}
	s.gate = NewGate(s.validator, s.resolver, s.auditor, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *GateSuite) serve(mw func(http.Handler) http.Handler, authHeader string) (*httptest.ResponseRecorder, context.Context) {
	var seen context.Context
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/accesos/resumen", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, seen
}

func (s *GateSuite) lastReason() string {
	s.Require().NotEmpty(s.auditor.events)
	last := s.auditor.events[len(s.auditor.events)-1]
	s.Equal(audit.KindAuthorizationDenied, last.Kind)
	return last.Details["reason"].(string)
}

func (s *GateSuite) TestAdmitsAndPopulatesContext() {
	rr, ctx := s.serve(s.gate.RequireOperator(), "Bearer admin")
	s.Equal(http.StatusOK, rr.Code)
	s.Equal(id.UserID(1), requestcontext.UserID(ctx))
	s.Equal("administrator", requestcontext.UserRole(ctx))
	s.Empty(s.auditor.events)
}

func (s *GateSuite) TestTokenAndUserFailuresCollapseTo401() {
	cases := []struct {
		header string
		reason Failure
	}{
		{"", FailureMissingToken},
		{"Basic abc", FailureMissingToken},
		{"Bearer garbage", FailureMalformedToken},
		{"Bearer expired", FailureExpiredToken},
		{"Bearer refresh", FailureWrongTokenType},
		{"Bearer no-user", FailureMalformedToken},
		{"Bearer ghost", FailureUnknownUser},
		{"Bearer inactive", FailureInactive},
		{"Bearer deleted", FailureDeleted},
	}
	for _, tc := range cases {
		s.Run(string(tc.reason)+" "+tc.header, func() {
			rr, _ := s.serve(s.gate.RequireAuthenticated(), tc.header)
			s.Equal(http.StatusUnauthorized, rr.Code)

			var body map[string]string
			s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
			s.Equal("unauthorized", body["error"])
			s.Equal(unauthorizedDescription, body["error_description"])
			s.Equal(string(tc.reason), s.lastReason())
		})
	}
}

func (s *GateSuite) TestInsufficientRoleIs403() {
	rr, _ := s.serve(s.gate.RequireAdmin(), "Bearer keeper")
	s.Equal(http.StatusForbidden, rr.Code)
	s.Contains(rr.Body.String(), `"error":"insufficient_role"`)
	s.Equal(string(FailureInsufficientRole), s.lastReason())
	s.Equal(id.UserID(2), s.auditor.events[0].ActorID)
}

func (s *GateSuite) TestRoleHierarchy() {
	rr, _ := s.serve(s.gate.RequireGatekeeper(), "Bearer keeper")
	s.Equal(http.StatusOK, rr.Code)
	rr, _ = s.serve(s.gate.RequireOperator(), "Bearer keeper")
	s.Equal(http.StatusForbidden, rr.Code)
	rr, _ = s.serve(s.gate.RequireSuperAdmin(), "Bearer admin")
	s.Equal(http.StatusForbidden, rr.Code)
}

func (s *GateSuite) TestResolverFailureIs500() {
	s.resolver.err = errors.New("db down")
	rr, _ := s.serve(s.gate.RequireAuthenticated(), "Bearer admin")
	s.Equal(http.StatusInternalServerError, rr.Code)
	s.Empty(s.auditor.events)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer   tok ")
	token, ok := bearerToken(req)
	require.True(t, ok)
	assert.Equal(t, "tok", token)

	req.Header.Set("Authorization", "Bearer ")
	_, ok = bearerToken(req)
	assert.False(t, ok)
}
