// Package notify delivers audit alerts to an external channel on a best-effort
// basis. Alerts are queued in a bounded buffer, paced by a rate limiter and sent
// through a circuit breaker; when the primary sink is down they go to the log.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"haven/internal/audit/models"
	"haven/pkg/platform/circuit"
)

const (
	DefaultBufferSize   = 1000
	DefaultBatchSize    = 50
	DefaultRatePerSec   = 20
	DefaultBurst        = 40
	DefaultPollInterval = time.Second
)

// Dispatcher implements the audit service's Notifier. Notify never blocks on
// delivery and never fails.
type Dispatcher struct {
	primary  Sink
	fallback Sink
	buffer   *RingBuffer
	breaker  *circuit.Breaker
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *Metrics

	batchSize    int
	pollInterval time.Duration

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithFallback replaces the log sink used while the primary sink is unavailable.
func WithFallback(s Sink) Option {
	return func(d *Dispatcher) {
		d.fallback = s
	}
}

func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		d.buffer = NewRingBuffer(n)
	}
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(d *Dispatcher) {
		d.breaker = b
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

func NewDispatcher(primary Sink, opts ...Option) (*Dispatcher, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary alert sink is required")
	}
	d := &Dispatcher{
		primary:      primary,
		buffer:       NewRingBuffer(DefaultBufferSize),
		breaker:      circuit.New("alert-sink", circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second)),
		limiter:      rate.NewLimiter(rate.Limit(DefaultRatePerSec), DefaultBurst),
		logger:       slog.Default(),
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.fallback == nil {
		d.fallback = NewLogSink(d.logger)
	}
	return d, nil
}

// Notify queues the alert for delivery. A full queue drops its oldest alert.
func (d *Dispatcher) Notify(_ context.Context, a models.Alert) error {
	if d.buffer.Enqueue(a) {
		d.metrics.incDropped()
		d.logger.Warn("alert queue full, oldest alert dropped", "alert_kind", a.Kind)
	}
	d.metrics.setQueued(d.buffer.Len())
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start launches the delivery loop.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.started.Store(true)
		go d.run()
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-d.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-d.wake:
		case <-ticker.C:
		case <-d.stop:
			return
		}
		d.Drain(ctx)
	}
}

// Close stops the loop and delivers whatever is still queued. Alerts that
// cannot be paced before ctx ends go straight to the fallback sink.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })
	if d.started.Load() {
		select {
		case <-d.done:
		case <-ctx.Done():
		}
	}
	d.Drain(ctx)
	return nil
}

// Drain delivers every queued alert and returns how many were handled.
func (d *Dispatcher) Drain(ctx context.Context) int {
	handled := 0
	for {
		batch := d.buffer.DequeueBatch(d.batchSize)
		if len(batch) == 0 {
			d.metrics.setQueued(0)
			return handled
		}
		for _, a := range batch {
			d.deliver(ctx, a)
			handled++
		}
		d.metrics.setQueued(d.buffer.Len())
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a models.Alert) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.toFallback(context.WithoutCancel(ctx), a)
		return
	}

	if d.breaker.Allow() {
		err := d.primary.Deliver(ctx, a)
		if err == nil {
			if _, change := d.breaker.RecordSuccess(); change.Closed {
				d.metrics.setBreakerOpen(false)
				d.logger.InfoContext(ctx, "alert sink recovered", "breaker", d.breaker.Name())
			}
			d.metrics.incDelivered("primary")
			return
		}
		d.metrics.incFailures()
		if _, change := d.breaker.RecordFailure(); change.Opened {
			d.metrics.setBreakerOpen(true)
			d.logger.WarnContext(ctx, "alert sink circuit opened", "breaker", d.breaker.Name(), "error", err)
		} else {
			d.logger.WarnContext(ctx, "alert delivery failed", "alert_kind", a.Kind, "error", err)
		}
	}
	d.toFallback(ctx, a)
}

func (d *Dispatcher) toFallback(ctx context.Context, a models.Alert) {
	if err := d.fallback.Deliver(ctx, a); err != nil {
		d.logger.ErrorContext(ctx, "alert lost", "alert_kind", a.Kind, "alert_id", a.AlertID.String(), "error", err)
		return
	}
	d.metrics.incDelivered("fallback")
}
