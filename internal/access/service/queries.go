package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"clubgate/internal/access"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/requestcontext"
)

// History returns one page of records matching filter, newest first. page is
// 1-based; a zero pageSize selects the default.
func (s *Service) History(ctx context.Context, filter access.HistoryFilter, page, pageSize int) (*access.Page, error) {
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
		return nil, dErrors.New(dErrors.CodeValidation, "page_size must be between 1 and 100")
	case filter.Outcome != "" && !filter.Outcome.IsValid():
		return nil, dErrors.New(dErrors.CodeValidation, "unknown resultado")
	case !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From):
		return nil, dErrors.New(dErrors.CodeValidation, "fecha_fin must not be before fecha_inicio")
	}

	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize
	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access history")
	}
	return &access.Page{Records: records, Total: total, Page: page, PageSize: pageSize}, nil
}

// Summary counts decisions since the start of the current UTC day, ISO week
// and month, and returns the most recent records.
func (s *Service) Summary(ctx context.Context) (*access.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "access.Summary")
	defer span.End()

	day := startOfDay(requestcontext.Now(ctx))
	week := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	month := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)

	var summary access.Summary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		summary.Today, err = s.records.CountSince(gctx, day)
		return err
	})
	g.Go(func() (err error) {
		summary.Week, err = s.records.CountSince(gctx, week)
		return err
	})
	g.Go(func() (err error) {
		summary.Month, err = s.records.CountSince(gctx, month)
		return err
	})
	g.Go(func() (err error) {
		summary.Recent, err = s.records.Recent(gctx, recentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access summary"))
	}
	return &summary, nil
}

// Statistics returns today's per-hour histogram (UTC), the peak hour and
// totals per outcome.
func (s *Service) Statistics(ctx context.Context) (*access.Statistics, error) {
	ctx, span := s.tracer.Start(ctx, "access.Statistics")
	defer span.End()

	day := startOfDay(requestcontext.Now(ctx))
	next := day.Add(24 * time.Hour)

	var (
		outcomes map[access.Outcome]int
		hourly   map[int]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		outcomes, err = s.records.OutcomeCounts(gctx, day, next)
		return err
	})
	g.Go(func() (err error) {
		hourly, err = s.records.HourlyCounts(gctx, day, next)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load access statistics"))
	}

	stats := &access.Statistics{
		Day:       day,
		Hourly:    make([]access.HourCount, 24),
		Permitted: outcomes[access.OutcomePermitted],
		Warned:    outcomes[access.OutcomeWarned],
		Rejected:  outcomes[access.OutcomeRejected],
	}
	for hour := 0; hour < 24; hour++ {
		n := hourly[hour]
		stats.Hourly[hour] = access.HourCount{Hour: hour, Count: n}
		if n > stats.PeakCount {
			stats.PeakHour, stats.PeakCount = hour, n
		}
	}
	return stats, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
