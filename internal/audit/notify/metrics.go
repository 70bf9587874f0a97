package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for alert delivery. A nil *Metrics records nothing.
type Metrics struct {
	Queued       prometheus.Gauge
	Dropped      prometheus.Counter
	Delivered    *prometheus.CounterVec
	Failures     prometheus.Counter
	BreakerState prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Queued: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "haven_notify_queued_alerts",
			Help: "Alerts waiting for delivery",
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_notify_dropped_total",
			Help: "Alerts discarded because the delivery queue was full",
		}),
		Delivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_notify_delivered_total",
			Help: "Alerts delivered, by sink",
		}, []string{"sink"}),
		Failures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_notify_primary_failures_total",
			Help: "Primary sink delivery failures",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "haven_notify_breaker_open",
			Help: "1 while the primary sink circuit breaker is open",
		}),
	}
}

func (m *Metrics) setQueued(n int) {
	if m == nil {
		return
	}
	m.Queued.Set(float64(n))
}

func (m *Metrics) incDropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) incDelivered(sink string) {
	if m == nil {
		return
	}
	m.Delivered.WithLabelValues(sink).Inc()
}

func (m *Metrics) incFailures() {
	if m == nil {
		return
	}
	m.Failures.Inc()
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}
