package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks        *prometheus.CounterVec
	ConfigMissing *prometheus.CounterVec
	StoreErrors   prometheus.Counter
	Swept         prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_ratelimit_checks_total",
			Help: "Rate limit checks by action, scope and result",
		}, []string{"action", "scope", "result"}),
		ConfigMissing: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_ratelimit_config_missing_total",
			Help: "Checks denied because the action has no configured limit",
		}, []string{"action"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_ratelimit_store_errors_total",
			Help: "Counter store failures",
		}),
		Swept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "haven_ratelimit_windows_swept_total",
			Help: "Expired windows removed by the background sweep",
		}),
	}
}

func (m *Metrics) IncrementCheck(action, scope string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.Checks.WithLabelValues(action, scope, result).Inc()
}

func (m *Metrics) IncrementConfigMissing(action string) {
	if m == nil {
		return
	}
	m.ConfigMissing.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Swept.Add(float64(n))
}
