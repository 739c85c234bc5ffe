// Package handler serves the audit log to administrators.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	auditsvc "clubgate/internal/audit"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/httputil"
	authmw "clubgate/pkg/platform/middleware/auth"
	request "clubgate/pkg/platform/middleware/request"
)

const dateLayout = "2006-01-02"

type Service interface {
	List(ctx context.Context, filter audit.Filter, page, pageSize int) (*auditsvc.Page, error)
	Get(ctx context.Context, eventID id.EventID) (*audit.Event, error)
}

type Handler struct {
	service Service
	gate    *authmw.Gate
	logger  *slog.Logger
}

func New(service Service, gate *authmw.Gate, logger *slog.Logger) *Handler {
	return &Handler{service: service, gate: gate, logger: logger}
}

// Register mounts /auditoria behind the administrator predicate.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAdmin())
		r.Get("/auditoria", h.HandleList)
		r.Get("/auditoria/{id}", h.HandleGet)
	})
}

type EventResponse struct {
	ID          int64          `json:"id"`
	Kind        string         `json:"tipo"`
	Category    string         `json:"categoria"`
	Severity    string         `json:"severidad"`
	Description string         `json:"descripcion"`
	ActorID     *int64         `json:"usuario_id"`
	SubjectKind string         `json:"entidad,omitempty"`
	SubjectID   *int64         `json:"entidad_id,omitempty"`
	Details     map[string]any `json:"detalles,omitempty"`
	IP          string         `json:"ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

type ListResponse struct {
	Items    []EventResponse `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Pages    int             `json:"pages"`
}

func toEventResponse(e audit.Event) EventResponse {
	resp := EventResponse{
		ID:          int64(e.ID),
		Kind:        string(e.Kind),
		Category:    string(e.Kind.Category()),
		Severity:    string(e.Severity),
		Description: e.Description,
		ActorID:     e.ActorID.Int64Ptr(),
		SubjectKind: string(e.SubjectKind),
		Details:     e.Details,
		IP:          e.IP,
		UserAgent:   e.UserAgent,
		RequestID:   e.RequestID,
		Timestamp:   e.Timestamp,
	}
	if e.SubjectID != 0 {
		subjectID := e.SubjectID
		resp.SubjectID = &subjectID
	}
	return resp
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	filter, page, pageSize, err := parseFilter(r.URL.Query())
	if err != nil {
		h.fail(ctx, w, requestID, "invalid audit query", err)
		return
	}
	result, err := h.service.List(ctx, filter, page, pageSize)
	if err != nil {
		h.fail(ctx, w, requestID, "failed to list audit events", err)
		return
	}

	items := make([]EventResponse, 0, len(result.Events))
	for _, e := range result.Events {
		items = append(items, toEventResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, &ListResponse{
		Items:    items,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
		Pages:    (result.Total + result.PageSize - 1) / result.PageSize,
	})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	eventID, err := id.ParseEventID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid audit event id"))
		return
	}
	event, err := h.service.Get(ctx, eventID)
	if err != nil {
		h.fail(ctx, w, requestID, "failed to load audit event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toEventResponse(*event))
}

// parseFilter reads tipo, severidad, usuario_id, entidad, entidad_id,
// fecha_inicio, fecha_fin, buscar, page and page_size.
func parseFilter(q url.Values) (audit.Filter, int, int, error) {
	filter := audit.Filter{
		Kind:        audit.Kind(strings.TrimSpace(q.Get("tipo"))),
		Severity:    audit.Severity(strings.ToLower(strings.TrimSpace(q.Get("severidad")))),
		SubjectKind: audit.SubjectKind(strings.TrimSpace(q.Get("entidad"))),
		Search:      strings.TrimSpace(q.Get("buscar")),
	}
	bad := func(param string) (audit.Filter, int, int, error) {
		return audit.Filter{}, 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid "+param)
	}

	if raw := q.Get("usuario_id"); raw != "" {
		actor, err := id.ParseUserID(raw)
		if err != nil {
			return bad("usuario_id")
		}
		filter.ActorID = actor
	}
	if raw := q.Get("entidad_id"); raw != "" {
		subjectID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || subjectID <= 0 {
			return bad("entidad_id")
		}
		filter.SubjectID = subjectID
	}
	if raw := q.Get("fecha_inicio"); raw != "" {
		from, _, err := parseBound(raw)
		if err != nil {
			return bad("fecha_inicio")
		}
		filter.From = from
	}
	if raw := q.Get("fecha_fin"); raw != "" {
		to, dateOnly, err := parseBound(raw)
		if err != nil {
			return bad("fecha_fin")
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.To = to
	}

	page, pageSize := 0, 0
	var err error
	if raw := q.Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			return bad("page")
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		if pageSize, err = strconv.Atoi(raw); err != nil {
			return bad("page_size")
		}
	}
	return filter, page, pageSize, nil
}

func parseBound(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(dateLayout, raw); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, raw)
	return t.UTC(), false, err
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.InfoContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}
