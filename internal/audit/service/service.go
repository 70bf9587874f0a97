// Package service is the audit log coordinator: it seals, validates, buffers and
// persists events, and answers queries, statistics and compliance reports over
// the stored log.
//
// The write path (LogEvent and the typed wrappers, Flush) never returns errors to
// business callers. Failures are logged and recorded as audit events of their own.
// The read path (QueryEvents, GetStatistics, GenerateComplianceReport) returns
// coded errors with generic messages; details stay in the server log.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"haven/internal/audit/codec"
	"haven/internal/audit/integrity"
	"haven/internal/audit/metrics"
	"haven/internal/audit/models"
	"haven/internal/audit/ports"
	"haven/internal/audit/validator"
	id "haven/pkg/domain"
	"haven/pkg/requestcontext"
)

// Type aliases for collaborator interfaces.
type (
	Store    = ports.Store
	Notifier = ports.Notifier
)

const (
	DefaultFlushInterval = 5 * time.Second
	DefaultBatchSize     = 100
	DefaultStoreTimeout  = 10 * time.Second

	// parallelThreshold is the batch size above which encryption and decryption
	// are spread over a worker pool.
	parallelThreshold = 64

	shutdownAttempts = 3
	shutdownBackoff  = 200 * time.Millisecond
	notifyTimeout    = 2 * time.Second
)

type Service struct {
	store    Store
	codec    *codec.Codec
	signer   *integrity.Signer
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	clock    func() time.Time

	flushInterval         time.Duration
	batchSize             int
	storeTimeout          time.Duration
	retentionDays         int
	securityRetentionDays int
	thresholds            Thresholds
	alerts                *alertTracker

	mu     sync.Mutex
	buffer []models.AuditEvent

	// flushMu serializes flushes so a critical-event flush never overlaps the timer.
	flushMu      sync.Mutex
	storeFailing bool

	wake      chan struct{}
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

// WithNotifier sets the alert collaborator. Without one, alerts are only logged.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithRetention sets default retention in days. Values below the category
// floors are ignored.
func WithRetention(generalDays, securityDays int) Option {
	return func(s *Service) {
		s.retentionDays = max(generalDays, models.RetentionGeneralDays)
		s.securityRetentionDays = max(securityDays, models.RetentionSecurityDays)
	}
}

func WithThresholds(t Thresholds) Option {
	return func(s *Service) {
		s.thresholds = t
	}
}

// WithClock overrides the time source for event timestamps and alert windows.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(store Store, c *codec.Codec, signer *integrity.Signer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if c == nil {
		return nil, fmt.Errorf("%w: record codec is required", models.ErrConfiguration)
	}
	if signer == nil {
		return nil, fmt.Errorf("%w: signer is required", models.ErrConfiguration)
	}

	svc := &Service{
		store:                 store,
		codec:                 c,
		signer:                signer,
		logger:                slog.Default(),
		tracer:                otel.Tracer("haven/audit"),
		flushInterval:         DefaultFlushInterval,
		batchSize:             DefaultBatchSize,
		storeTimeout:          DefaultStoreTimeout,
		retentionDays:         models.RetentionGeneralDays,
		securityRetentionDays: models.RetentionSecurityDays,
		thresholds:            DefaultThresholds(),
		alerts:                newAlertTracker(),
		wake:                  make(chan struct{}, 1),
		stop:                  make(chan struct{}),
		done:                  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Start launches the periodic flush loop. Calling it more than once is a no-op.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

func (s *Service) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush(context.Background())
		case <-s.wake:
			s.Flush(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Shutdown stops the flush loop and drains the buffer. It returns an error only
// if events are still buffered after the final attempts.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	for attempt := 1; ; attempt++ {
		_ = s.flush(ctx)
		if s.Pending() == 0 {
			s.logger.InfoContext(ctx, "audit log drained")
			return nil
		}
		if attempt == shutdownAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(shutdownBackoff):
		}
	}

	pending := s.Pending()
	s.logger.ErrorContext(ctx, "audit log shutdown with unpersisted events", "pending", pending, "log_type", "audit")
	return fmt.Errorf("%w: %d audit events not persisted at shutdown", models.ErrPersistenceFailure, pending)
}

// Pending reports how many events are buffered.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// LogEvent fills defaults, seals and validates the event, then buffers it.
// CRITICAL events are flushed before LogEvent returns. Invalid events are
// dropped and replaced by a sanitized failure event.
func (s *Service) LogEvent(ctx context.Context, e models.AuditEvent) {
	prepared, err := s.prepare(ctx, e)
	if err != nil {
		s.recordRejection(ctx, e.Category, err)
		return
	}
	s.enqueue(ctx, prepared)
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// prepare applies defaults and context enrichment, then seals and validates.
func (s *Service) prepare(ctx context.Context, e models.AuditEvent) (models.AuditEvent, error) {
	ev := e.Clone()

	if ev.EventID.IsNil() {
		ev.EventID = id.NewEventID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now(ctx)
	}
	// Stores keep microsecond precision; sealing a finer timestamp would break
	// the authenticated index columns on read.
	ev.Timestamp = ev.Timestamp.UTC().Truncate(time.Microsecond)
	if ev.Outcome == "" {
		ev.Outcome = models.OutcomeSuccess
	}
	if ev.RiskLevel == "" {
		ev.RiskLevel = models.RiskLow
	}

	enrich(ctx, &ev)
	ev.RetentionPeriod = s.retentionFor(ev.Category, ev.RetentionPeriod)

	if err := s.signer.Seal(&ev); err != nil {
		return models.AuditEvent{}, err
	}
	if err := validator.Validate(&ev); err != nil {
		return models.AuditEvent{}, err
	}
	return ev, nil
}

// enrich fills empty actor, source and request fields from the request context.
func enrich(ctx context.Context, ev *models.AuditEvent) {
	if actor, ok := requestcontext.ActorFrom(ctx); ok {
		fill(&ev.UserID, actor.UserID)
		fill(&ev.UserEmail, actor.Email)
		fill(&ev.UserRole, actor.Role)
		fill(&ev.SessionID, actor.SessionID)
	}
	fill(&ev.SourceIP, requestcontext.ClientIP(ctx))
	fill(&ev.UserAgent, requestcontext.UserAgent(ctx))
	fill(&ev.DeviceID, requestcontext.DeviceID(ctx))
	fill(&ev.RequestID, requestcontext.RequestID(ctx))
	endpoint := requestcontext.EndpointFrom(ctx)
	fill(&ev.APIEndpoint, endpoint.Path)
	fill(&ev.HTTPMethod, endpoint.Method)
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// retentionFor raises the requested retention to the configured default and the
// category floor.
func (s *Service) retentionFor(c models.Category, requested int) int {
	def := s.retentionDays
	if c.MinRetentionDays() >= models.RetentionSecurityDays {
		def = s.securityRetentionDays
	}
	if requested == 0 {
		requested = def
	}
	return max(requested, c.MinRetentionDays())
}

func (s *Service) enqueue(ctx context.Context, ev models.AuditEvent) {
	s.mu.Lock()
	s.buffer = append(s.buffer, ev)
	n := len(s.buffer)
	s.mu.Unlock()

	s.metrics.IncEventsLogged(string(ev.RiskLevel))
	s.metrics.SetBufferDepth(n)

	s.evaluateAlerts(ctx, &ev)

	switch {
	case ev.RiskLevel == models.RiskCritical:
		s.Flush(context.WithoutCancel(ctx))
	case n >= s.batchSize:
		s.signal()
	}
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// recordRejection replaces an invalid event with a failure event that names the
// failing fields only. The failure event itself is never re-reported.
func (s *Service) recordRejection(ctx context.Context, category models.Category, cause error) {
	s.metrics.IncEventsRejected()

	meta := map[string]string{"rejected_category": string(category)}
	var verr *validator.ValidationError
	if errors.As(cause, &verr) {
		meta["invalid_fields"] = strings.Join(verr.FieldNames(), ",")
		meta["schema"] = string(verr.Kind)
	}
	s.logger.WarnContext(ctx, "audit event rejected",
		"category", category,
		"invalid_fields", meta["invalid_fields"],
		"log_type", "audit",
	)

	failure, err := s.prepare(ctx, models.AuditEvent{
		Category:    models.CategorySystemConfigChange,
		Outcome:     models.OutcomeFailure,
		RiskLevel:   models.RiskMedium,
		Action:      "audit_log_failure",
		Description: "audit event rejected by schema validation",
		Metadata:    meta,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit failure event could not be recorded", "error", err, "log_type", "audit")
		return
	}
	s.enqueue(ctx, failure)
}

// recordInternal logs a service-originated event. Errors are logged, never returned.
func (s *Service) recordInternal(ctx context.Context, e models.AuditEvent) {
	ev, err := s.prepare(ctx, e)
	if err != nil {
		s.logger.ErrorContext(ctx, "internal audit event could not be recorded",
			"category", e.Category, "error", err, "log_type", "audit")
		return
	}
	s.enqueue(ctx, ev)
}
