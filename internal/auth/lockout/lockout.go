// Package lockout throttles password guessing by counting failed logins per
// login+ip inside a fixed window.
package lockout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	dErrors "clubgate/pkg/domain-errors"
)

// Store counts failures per key. Counters expire one window after the first
// failure.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	Count(ctx context.Context, key string) (int, error)
	Clear(ctx context.Context, key string) error
}

type Service struct {
	store       Store
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New builds a lockout service. maxAttempts of zero disables locking.
func New(store Store, maxAttempts int, window time.Duration, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	if maxAttempts < 0 {
		return nil, errors.New("max attempts must be non-negative")
	}
	if window <= 0 {
		return nil, errors.New("lockout window must be positive")
	}
	s := &Service{store: store, maxAttempts: maxAttempts, window: window, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Key normalizes login so "Admin" and "admin " share a counter.
func Key(login, ip string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(login)) + "|" + ip
}

// Locked reports whether the login+ip pair has exhausted its attempts.
func (s *Service) Locked(ctx context.Context, login, ip string) (bool, error) {
	if s.maxAttempts == 0 {
		return false, nil
	}
	n, err := s.store.Count(ctx, Key(login, ip))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read login attempts")
	}
	return n >= s.maxAttempts, nil
}

// RecordFailure counts a failed attempt and reports whether the pair is now
// locked.
func (s *Service) RecordFailure(ctx context.Context, login, ip string) (bool, error) {
	if s.maxAttempts == 0 {
		return false, nil
	}
	n, err := s.store.Increment(ctx, Key(login, ip), s.window)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record login failure")
	}
	if n == s.maxAttempts {
		s.logger.WarnContext(ctx, "login locked", "attempts", n, "window", s.window.String())
	}
	return n >= s.maxAttempts, nil
}

// Reset clears the counter after a successful login.
func (s *Service) Reset(ctx context.Context, login, ip string) error {
	if s.maxAttempts == 0 {
		return nil
	}
	if err := s.store.Clear(ctx, Key(login, ip)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear login attempts")
	}
	return nil
}
