// Package audit is the read side of the audit log: filtered, paginated
// queries over the events the publisher appended.
package audit

import (
	"context"
	"errors"

	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	audit "clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/sentinel"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Reader is the query subset of audit.Store.
type Reader interface {
	Get(ctx context.Context, eventID id.EventID) (*audit.Event, error)
	List(ctx context.Context, filter audit.Filter) ([]audit.Event, int, error)
}

// Page is one page of events, newest first.
type Page struct {
	Events   []audit.Event
	Total    int
	Page     int
	PageSize int
}

type Service struct {
	store Reader
}

func NewService(store Reader) *Service {
	return &Service{store: store}
}

// List validates filter and returns the requested page. page is 1-based.
func (s *Service) List(ctx context.Context, filter audit.Filter, page, pageSize int) (*Page, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	switch {
	case page < 1:
		return nil, dErrors.New(dErrors.CodeValidation, "page must be at least 1")
	case pageSize < 1 || pageSize > maxPageSize:
		return nil, dErrors.New(dErrors.CodeValidation, "page_size must be between 1 and 200")
	case filter.Kind != "" && !filter.Kind.IsValid():
		return nil, dErrors.New(dErrors.CodeValidation, "unknown event kind")
	case filter.Severity != "" && !filter.Severity.IsValid():
		return nil, dErrors.New(dErrors.CodeValidation, "unknown severity")
	case !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From):
		return nil, dErrors.New(dErrors.CodeValidation, "fecha_fin must not be before fecha_inicio")
	}

	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize
	events, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return &Page{Events: events, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *Service) Get(ctx context.Context, eventID id.EventID) (*audit.Event, error) {
	event, err := s.store.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit event")
	}
	return event, nil
}
