package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	auditsvc "clubgate/internal/audit"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/audit/store/memory"
	authmw "clubgate/pkg/platform/middleware/auth"
	request "clubgate/pkg/platform/middleware/request"
	"clubgate/pkg/testutil"
)

type staticValidator map[string]id.UserID

func (v staticValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	if userID, ok := v[token]; ok {
		return &authmw.JWTClaims{UserID: userID}, nil
	}
	return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token")
}

type staticUsers map[id.UserID]id.Role

func (u staticUsers) ResolvePrincipal(_ context.Context, userID id.UserID) (*authmw.Principal, error) {
	if role, ok := u[userID]; ok {
		return &authmw.Principal{ID: userID, Role: role, Active: true}, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

type discardAuditor struct{}

func (discardAuditor) Append(context.Context, audit.Event) {}

type HandlerSuite struct {
	suite.Suite
	store  *memory.InMemoryStore
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = memory.NewInMemoryStore()
	base := time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)
	for i, e := range []audit.Event{
		{Kind: audit.KindUserCreated, Severity: audit.SeverityInfo, Description: "user created", ActorID: 1, SubjectKind: audit.SubjectUser, SubjectID: 5},
		{Kind: audit.KindCredentialUnparseable, Severity: audit.SeverityWarning, Description: "unparseable QR", Details: map[string]any{"payload": "NOT-A-QR"}},
		{Kind: audit.KindLoginFailed, Severity: audit.SeverityWarning, Description: "login failed"},
	} {
		e.Timestamp = base.AddDate(0, 0, i)
		s.Require().NoError(s.store.Append(context.Background(), &e))
	}

	gate := authmw.NewGate(
		staticValidator{"admin": 1, "operator": 2},
		staticUsers{1: id.RoleAdministrator, 2: id.RoleOperator},
		discardAuditor{}, logger,
	)
	r := chi.NewRouter()
	r.Use(request.RequestID)
	New(auditsvc.NewService(s.store), gate, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) get(path, token string) *http.Request {
	req := testutil.NewRequest(s.T(), http.MethodGet, path)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func (s *HandlerSuite) TestListRequiresAdmin() {
	rr := testutil.DoRequest(s.router, s.get("/auditoria", "operator"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "insufficient_role")
}

func (s *HandlerSuite) TestList() {
	rr := testutil.DoRequest(s.router, s.get("/auditoria?page_size=2", "admin"))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.UnmarshalResponse[ListResponse](s.T(), rr)
	s.Equal(3, resp.Total)
	s.Equal(2, resp.Pages)
	s.Require().Len(resp.Items, 2)
	s.Equal("login_failed", resp.Items[0].Kind)
	s.Equal("security", resp.Items[0].Category)

	rr = testutil.DoRequest(s.router, s.get("/auditoria?severidad=warning&fecha_inicio=2025-03-16&fecha_fin=2025-03-16", "admin"))
	s.Require().Equal(http.StatusOK, rr.Code)
	resp = testutil.UnmarshalResponse[ListResponse](s.T(), rr)
	s.Require().Equal(1, resp.Total)
	s.Equal("credential_unparseable", resp.Items[0].Kind)
	s.Equal("NOT-A-QR", resp.Items[0].Details["payload"])

	rr = testutil.DoRequest(s.router, s.get("/auditoria?usuario_id=1&entidad=user&entidad_id=5", "admin"))
	s.Require().Equal(http.StatusOK, rr.Code)
	resp = testutil.UnmarshalResponse[ListResponse](s.T(), rr)
	s.Require().Equal(1, resp.Total)
	s.Require().NotNil(resp.Items[0].ActorID)
	s.Equal(int64(1), *resp.Items[0].ActorID)
}

func (s *HandlerSuite) TestListRejectsBadParams() {
	rr := testutil.DoRequest(s.router, s.get("/auditoria?usuario_id=x", "admin"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	rr = testutil.DoRequest(s.router, s.get("/auditoria?tipo=nope", "admin"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")
}

func (s *HandlerSuite) TestGet() {
	rr := testutil.DoRequest(s.router, s.get("/auditoria/1", "admin"))
	s.Require().Equal(http.StatusOK, rr.Code)
	event := testutil.UnmarshalResponse[EventResponse](s.T(), rr)
	s.Equal("user_created", event.Kind)
	s.Require().NotNil(event.SubjectID)
	s.Equal(int64(5), *event.SubjectID)

	rr = testutil.DoRequest(s.router, s.get("/auditoria/99", "admin"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")

	rr = testutil.DoRequest(s.router, s.get("/auditoria/abc", "admin"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}
