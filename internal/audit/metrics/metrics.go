package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	EventsLogged       *prometheus.CounterVec
	EventsRejected     prometheus.Counter
	BufferDepth        prometheus.Gauge
	FlushDuration      prometheus.Histogram
	FlushFailures      prometheus.Counter
	RecordsPersisted   prometheus.Counter
	DecryptionFailures prometheus.Counter
	AlertsRaised       *prometheus.CounterVec
}

// New registers the audit metrics with the default registry. Call it once per process.
func New() *Metrics {
	return &Metrics{
		EventsLogged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_audit_events_logged_total",
			Help: "Total number of audit events accepted into the buffer",
		}, []string{"risk_level"}),
		EventsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_audit_events_rejected_total",
			Help: "Total number of audit events dropped for failing schema validation",
		}),
		BufferDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "haven_audit_buffer_depth",
			Help: "Current number of audit events waiting to be flushed",
		}),
		FlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "haven_audit_flush_duration_seconds",
			Help:    "Time spent encrypting and persisting one flush",
			Buckets: prometheus.DefBuckets,
		}),
		FlushFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_audit_flush_failures_total",
			Help: "Total number of flushes that re-queued events after a store failure",
		}),
		RecordsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_audit_records_persisted_total",
			Help: "Total number of encrypted audit records written to the store",
		}),
		DecryptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_audit_decryption_failures_total",
			Help: "Total number of stored records that failed authentication or checksum verification",
		}),
		AlertsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_audit_alerts_raised_total",
			Help: "Total number of alerts handed to the notifier",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncEventsLogged(risk string) {
	if m == nil {
		return
	}
	m.EventsLogged.WithLabelValues(risk).Inc()
}

func (m *Metrics) IncEventsRejected() {
	if m == nil {
		return
	}
	m.EventsRejected.Inc()
}

func (m *Metrics) SetBufferDepth(n int) {
	if m == nil {
		return
	}
	m.BufferDepth.Set(float64(n))
}

func (m *Metrics) ObserveFlush(d time.Duration) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(d.Seconds())
}

func (m *Metrics) IncFlushFailures() {
	if m == nil {
		return
	}
	m.FlushFailures.Inc()
}

func (m *Metrics) AddRecordsPersisted(n int) {
	if m == nil {
		return
	}
	m.RecordsPersisted.Add(float64(n))
}

func (m *Metrics) IncDecryptionFailures() {
	if m == nil {
		return
	}
	m.DecryptionFailures.Inc()
}

func (m *Metrics) IncAlertsRaised(kind string) {
	if m == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(kind).Inc()
}
