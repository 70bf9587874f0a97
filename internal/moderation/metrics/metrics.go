package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections      *prometheus.CounterVec
	Flags           *prometheus.CounterVec
	CrisisDetection *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_moderation_rejections_total",
			Help: "Messages rejected before delivery, by reason code",
		}, []string{"code"}),
		Flags: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_moderation_flags_total",
			Help: "Messages flagged by the content moderator, by category and severity",
		}, []string{"category", "severity"}),
		CrisisDetection: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "haven_moderation_crisis_detections_total",
			Help: "Crisis language detections by severity and immediacy",
		}, []string{"severity", "immediate"}),
	}
}

func (m *Metrics) IncrementRejection(code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) IncrementFlag(category, severity string) {
	if m == nil {
		return
	}
	m.Flags.WithLabelValues(category, severity).Inc()
}

func (m *Metrics) IncrementCrisis(severity string, immediate bool) {
	if m == nil {
		return
	}
	label := "false"
	if immediate {
		label = "true"
	}
	m.CrisisDetection.WithLabelValues(severity, label).Inc()
}
