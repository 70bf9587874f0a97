// Package fallback keeps rate limiting alive while the shared counter store is
// down. Calls go to the primary store until its consecutive failures open the
// breaker; from then on, and for every failed call, counters live in process.
package fallback

import (
	"context"
	"log/slog"
	"time"

	"haven/internal/ratelimit/models"
	"haven/internal/ratelimit/ports"
	"haven/internal/ratelimit/store/memory"
	"haven/pkg/platform/circuit"
)

type Store struct {
	primary  ports.WindowStore
	fallback *memory.InMemoryWindowStore
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Store) {
		if b != nil {
			s.breaker = b
		}
	}
}

// New wraps primary with an in-process fallback.
func New(primary ports.WindowStore, opts ...Option) *Store {
	s := &Store{
		primary:  primary,
		fallback: memory.NewInMemoryWindowStore(),
		breaker:  circuit.New("ratelimit-store", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(3)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hit counts against the primary store, or the in-process store when the
// primary is failing.
func (s *Store) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.Window, bool, error) {
	if !s.breaker.Allow() {
		return s.fallback.Hit(ctx, key, limit, window, now)
	}

	w, ok, err := s.primary.Hit(ctx, key, limit, window, now)
	if err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "rate limit store degraded, using in-process counters",
				"breaker", s.breaker.Name(), "error", err)
		}
		return s.fallback.Hit(ctx, key, limit, window, now)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "rate limit store recovered", "breaker", s.breaker.Name())
	}
	return w, ok, nil
}

// Reset clears the key in both stores.
func (s *Store) Reset(ctx context.Context, key string) error {
	_ = s.fallback.Reset(ctx, key)
	return s.primary.Reset(ctx, key)
}

// Sweep evicts expired in-process windows; the primary expires its own.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	return s.fallback.Sweep(ctx, now)
}

// Degraded reports whether counters are currently kept in process.
func (s *Store) Degraded() bool {
	return s.breaker.IsOpen()
}
