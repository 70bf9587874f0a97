package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"haven/internal/ratelimit/models"
	"haven/pkg/platform/httputil"
	"haven/pkg/requestcontext"
)

type RateLimiter interface {
	CheckBothLimits(ctx context.Context, ip, userID, action string) (*models.RateLimitResult, error)
}

// DegradedReporter is implemented by stores that can fall back to in-process counters.
type DegradedReporter interface {
	Degraded() bool
}

type Middleware struct {
	limiter  RateLimiter
	degraded DegradedReporter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithDegradedReporter sets X-RateLimit-Status: degraded while r reports fallback mode.
func WithDegradedReporter(r DegradedReporter) Option {
	return func(m *Middleware) {
		m.degraded = r
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits the wrapped routes by client IP and, once authenticated, by user.
// Limiter errors fail open and are logged.
func (m *Middleware) RateLimit(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			userID := requestcontext.UserID(ctx)

			result, err := m.limiter.CheckBothLimits(ctx, ip, userID, action)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err, "action", action, "user_id", userID)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			if m.degraded != nil && m.degraded.Degraded() {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}

			if !result.Allowed {
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil || result.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	if result.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	}
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		Action:     result.Action,
		RetryAfter: result.RetryAfter,
		ResetAt:    result.ResetAt,
	})
}
