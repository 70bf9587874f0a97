// Package service enforces per-action fixed-window limits for users and client IPs.
//
// Unconfigured actions are denied. Every denial is recorded in the audit log with
// the action and scope only.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"haven/internal/ratelimit/config"
	"haven/internal/ratelimit/metrics"
	"haven/internal/ratelimit/models"
	"haven/internal/ratelimit/observability"
	"haven/internal/ratelimit/ports"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/requestcontext"
)

// Type aliases for collaborator interfaces.
type (
	WindowStore = ports.WindowStore
	Auditor     = ports.Auditor
)

type Service struct {
	store         WindowStore
	config        *config.Config
	auditor       Auditor
	logger        *slog.Logger
	metrics       *metrics.Metrics
	clock         func() time.Time
	sweepInterval time.Duration

	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(auditor Auditor) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the request-time clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

func New(store WindowStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("window store is required")
	}

	svc := &Service{
		store:         store,
		config:        config.DefaultConfig(),
		logger:        slog.Default(),
		sweepInterval: config.DefaultSweepInterval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckUserRateLimit counts one request by userID against action.
func (s *Service) CheckUserRateLimit(ctx context.Context, userID, action string) (*models.RateLimitResult, error) {
	limit, ok := s.config.UserLimit(action)
	return s.checkRateLimit(ctx, models.ScopeUser, userID, action, limit, ok)
}

// CheckIPRateLimit counts one request from ip against action at twice the user limit.
func (s *Service) CheckIPRateLimit(ctx context.Context, ip, action string) (*models.RateLimitResult, error) {
	limit, ok := s.config.IPLimit(action)
	return s.checkRateLimit(ctx, models.ScopeIP, ip, action, limit, ok)
}

// CheckBothLimits applies the IP limit, then the user limit. The first denial is
// returned; when both pass the more restrictive result is returned.
// An empty identifier skips that scope.
func (s *Service) CheckBothLimits(ctx context.Context, ip, userID, action string) (*models.RateLimitResult, error) {
	var ipRes, userRes *models.RateLimitResult
	var err error

	if ip != "" {
		ipRes, err = s.CheckIPRateLimit(ctx, ip, action)
		if err != nil {
			return nil, err
		}
		if !ipRes.Allowed {
			return ipRes, nil
		}
	}
	if userID != "" {
		userRes, err = s.CheckUserRateLimit(ctx, userID, action)
		if err != nil {
			return nil, err
		}
		if !userRes.Allowed {
			return userRes, nil
		}
	}

	switch {
	case ipRes == nil && userRes == nil:
		return nil, dErrors.New(dErrors.CodeBadRequest, "rate limit check needs a user or client IP")
	case ipRes == nil:
		return userRes, nil
	case userRes == nil:
		return ipRes, nil
	case ipRes.Remaining < userRes.Remaining:
		return ipRes, nil
	case userRes.Remaining < ipRes.Remaining:
		return userRes, nil
	case ipRes.ResetAt.Before(userRes.ResetAt):
		return ipRes, nil
	default:
		return userRes, nil
	}
}

// Reset clears the counter for an identifier and action.
func (s *Service) Reset(ctx context.Context, scope models.Scope, identifier, action string) error {
	if err := s.store.Reset(ctx, models.Key(scope, identifier, action)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset rate limit")
	}
	return nil
}

func (s *Service) checkRateLimit(
	ctx context.Context,
	scope models.Scope,
	identifier string,
	action string,
	limit config.ActionLimit,
	configured bool,
) (*models.RateLimitResult, error) {
	if !configured {
		s.metrics.IncrementConfigMissing(action)
		observability.LogAudit(ctx, s.logger, s.auditor, "rate_limit_config_missing",
			"action", action,
			"scope", string(scope),
			"reason", "no limit configured for action",
		)
		return models.Denied(action, scope), nil
	}

	now := s.now(ctx)
	window, allowed, err := s.store.Hit(ctx, models.Key(scope, identifier, action), limit.MaxRequests, limit.Window, now)
	if err != nil {
		s.metrics.IncrementStoreErrors()
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check rate limit")
	}
	s.metrics.IncrementCheck(action, string(scope), allowed)

	result := models.NewResult(action, scope, limit.MaxRequests, window, allowed, now)
	if !allowed {
		observability.LogAudit(ctx, s.logger, s.auditor, string(scope)+"_rate_limit_exceeded",
			"action", action,
			"scope", string(scope),
			"limit", limit.MaxRequests,
			"window_seconds", int(limit.Window.Seconds()),
		)
	}
	return result, nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// Start launches the background sweep when the store needs one.
func (s *Service) Start() {
	sweeper, ok := s.store.(ports.Sweeper)
	if !ok {
		return
	}
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run(sweeper)
	})
}

func (s *Service) run(sweeper ports.Sweeper) {
	defer close(s.done)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(context.Background(), sweeper)
		case <-s.stop:
			return
		}
	}
}

// Sweep evicts expired windows once and returns how many were removed.
// Stores that expire keys on their own report zero.
func (s *Service) Sweep(ctx context.Context) int {
	sweeper, ok := s.store.(ports.Sweeper)
	if !ok {
		return 0
	}
	return s.sweep(ctx, sweeper)
}

func (s *Service) sweep(ctx context.Context, sweeper ports.Sweeper) int {
	removed, err := sweeper.Sweep(ctx, s.now(ctx))
	if err != nil {
		s.logger.WarnContext(ctx, "rate limit sweep failed", "error", err)
		return 0
	}
	s.metrics.AddSwept(removed)
	if removed > 0 {
		s.logger.DebugContext(ctx, "rate limit windows swept", "removed", removed)
	}
	return removed
}

// Close stops the sweep loop and waits for it to exit.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.done
	}
}
