package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"haven/internal/audit/models"
	id "haven/pkg/domain"
)

// Thresholds configure when buffered events raise alerts. Zero disables a rule.
type Thresholds struct {
	// FailedLoginsPerHour alerts when one user or source IP exceeds it within an hour.
	// It is also the limit for the compliance report's failed-login finding.
	FailedLoginsPerHour int
	// PHIAccessPerUserHour alerts when one user exceeds it within an hour.
	PHIAccessPerUserHour int
	// SuspiciousScore alerts on any security event whose risk score reaches it.
	SuspiciousScore int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FailedLoginsPerHour:  10,
		PHIAccessPerUserHour: 50,
		SuspiciousScore:      75,
	}
}

const (
	alertWindow        = time.Hour
	alertSweepInterval = 1024
)

// alertTracker counts events per subject in fixed one-hour windows and reports
// the first crossing of a threshold in each window.
type alertTracker struct {
	mu      sync.Mutex
	windows map[string]*alertCounter
	hits    int
}

type alertCounter struct {
	start   time.Time
	count   int
	alerted bool
}

func newAlertTracker() *alertTracker {
	return &alertTracker{windows: make(map[string]*alertCounter)}
}

// hit records one event for key. It returns the window count and whether this
// event is the one that crossed the threshold.
func (t *alertTracker) hit(key string, now time.Time, threshold int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.hits++
	if t.hits%alertSweepInterval == 0 {
		for k, w := range t.windows {
			if now.Sub(w.start) >= alertWindow {
				delete(t.windows, k)
			}
		}
	}

	w, ok := t.windows[key]
	if !ok || now.Sub(w.start) >= alertWindow {
		w = &alertCounter{start: now}
		t.windows[key] = w
	}
	w.count++
	if w.count > threshold && !w.alerted {
		w.alerted = true
		return w.count, true
	}
	return w.count, false
}

// evaluateAlerts raises alerts for a buffered event. Delivery is best effort.
func (s *Service) evaluateAlerts(ctx context.Context, ev *models.AuditEvent) {
	now := s.now(ctx)

	switch {
	case ev.Category == models.CategoryDataBreachDetected:
		s.raise(ctx, ev, models.AlertDataBreach, models.RiskCritical, "Data breach detected", "", 0, 0)
	case ev.RiskLevel == models.RiskCritical:
		s.raise(ctx, ev, models.AlertCriticalEvent, models.RiskCritical, "Critical audit event", "", 0, 0)
	}

	if t := s.thresholds.FailedLoginsPerHour; t > 0 && ev.Category == models.CategoryLoginFailure {
		for _, subject := range []string{subjectKey("user", firstNonEmpty(ev.UserID, ev.UserEmail)), subjectKey("ip", ev.SourceIP)} {
			if subject == "" {
				continue
			}
			if n, crossed := s.alerts.hit("failed_login|"+subject, now, t); crossed {
				s.raise(ctx, ev, models.AlertExcessiveFailedLogins, models.RiskHigh, "Excessive failed login attempts", subject, n, t)
			}
		}
	}

	if t := s.thresholds.PHIAccessPerUserHour; t > 0 && ev.Category.Group() == models.GroupPHI && ev.UserID != "" {
		subject := subjectKey("user", ev.UserID)
		if n, crossed := s.alerts.hit("phi_access|"+subject, now, t); crossed {
			s.raise(ctx, ev, models.AlertExcessivePHIAccess, models.RiskHigh, "Excessive PHI access", subject, n, t)
		}
	}

	if t := s.thresholds.SuspiciousScore; t > 0 && ev.Details != nil && ev.Details.Security != nil &&
		ev.Details.Security.RiskScore >= t {
		s.raise(ctx, ev, models.AlertSuspiciousActivity, models.RiskHigh, "Suspicious activity score "+strconv.Itoa(ev.Details.Security.RiskScore),
			"", ev.Details.Security.RiskScore, t)
	}
}

func (s *Service) raise(ctx context.Context, ev *models.AuditEvent, kind models.AlertKind, severity models.RiskLevel,
	title, subject string, count, threshold int,
) {
	alert := models.Alert{
		AlertID:   id.NewAlertID(),
		Kind:      kind,
		Severity:  severity,
		Title:     title,
		EventID:   ev.EventID,
		Category:  ev.Category,
		Subject:   subject,
		Count:     count,
		Threshold: threshold,
		RaisedAt:  s.now(ctx).UTC(),
	}
	s.metrics.IncAlertsRaised(string(kind))
	s.logger.WarnContext(ctx, "audit alert raised",
		"alert_kind", kind,
		"event_id", ev.EventID.String(),
		"category", ev.Category,
		"subject", subject,
		"log_type", "audit",
	)

	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, alert); err != nil {
		s.logger.WarnContext(ctx, "alert delivery failed", "alert_kind", kind, "error", err)
	}
}

func subjectKey(scope, v string) string {
	if v == "" {
		return ""
	}
	return scope + ":" + v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
