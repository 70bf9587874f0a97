package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"haven/internal/audit/models"
	id "haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
)

const (
	reportFailedMsg = "failed to generate compliance report"
	statsFailedMsg  = "failed to compute audit statistics"

	// maxBreakdownRows bounds the per-user and per-resource tables.
	maxBreakdownRows = 100
)

// Finding rule identifiers.
const (
	RuleExcessiveFailedLogins = "excessive_failed_logins"
	RuleDataBreach            = "data_breach_detected"
	RuleUnjustifiedPHIAccess  = "phi_access_without_justification"
)

// ReportRequest selects the window and type of a compliance report.
type ReportRequest struct {
	StartDate   time.Time
	EndDate     time.Time
	GeneratedBy string
	// ReportType defaults to HIPAA_AUDIT.
	ReportType models.ReportType
}

// GenerateComplianceReport analyses up to models.MaxScanEvents events in the
// window, derives findings, signs the report and logs its generation.
func (s *Service) GenerateComplianceReport(ctx context.Context, req ReportRequest) (*models.ComplianceReport, error) {
	ctx, span := s.tracer.Start(ctx, "audit.compliance_report")
	defer span.End()

	if req.ReportType == "" {
		req.ReportType = models.ReportTypeHIPAA
	}
	if err := validateWindow(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.GeneratedBy) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "generatedBy is required")
	}
	if !req.ReportType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown report type")
	}

	events, truncated, err := s.scanWindow(ctx, req.StartDate, req.EndDate, reportFailedMsg)
	if err != nil {
		return nil, err
	}

	stats := computeStatistics(events)
	report := &models.ComplianceReport{
		ReportID:       id.NewReportID(),
		ReportType:     req.ReportType,
		GeneratedAt:    s.now(ctx).UTC(),
		GeneratedBy:    req.GeneratedBy,
		PeriodStart:    req.StartDate.UTC(),
		PeriodEnd:      req.EndDate.UTC(),
		EventsAnalyzed: len(events),
		Truncated:      truncated,
		Statistics:     stats,
		Findings:       evaluateFindings(stats, s.thresholds.FailedLoginsPerHour),
	}
	report.HIPAACompliant = !report.HasCriticalFinding()

	sig, err := s.signer.SignReport(report)
	if err != nil {
		s.logger.ErrorContext(ctx, "compliance report signing failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, reportFailedMsg)
	}
	report.Signature = sig

	span.SetAttributes(
		attribute.Int("audit.events_analyzed", report.EventsAnalyzed),
		attribute.Int("audit.findings", len(report.Findings)),
	)

	// Report generation is MEDIUM risk and never triggers another report.
	s.recordInternal(ctx, models.AuditEvent{
		Category:     models.CategoryComplianceReportGenerated,
		RiskLevel:    models.RiskMedium,
		Action:       "generate_compliance_report",
		Description:  "compliance report generated",
		UserID:       req.GeneratedBy,
		ResourceType: "compliance_report",
		ResourceID:   report.ReportID.String(),
		Metadata: map[string]string{
			"report_type":     string(report.ReportType),
			"events_analyzed": strconv.Itoa(report.EventsAnalyzed),
			"findings":        strconv.Itoa(len(report.Findings)),
			"hipaa_compliant": strconv.FormatBool(report.HIPAACompliant),
		},
	})

	return report, nil
}

// GetStatistics computes the statistics block for a window on its own.
func (s *Service) GetStatistics(ctx context.Context, start, end time.Time) (*models.AuditStatistics, error) {
	ctx, span := s.tracer.Start(ctx, "audit.statistics")
	defer span.End()

	if err := validateWindow(start, end); err != nil {
		return nil, err
	}
	events, _, err := s.scanWindow(ctx, start, end, statsFailedMsg)
	if err != nil {
		return nil, err
	}
	stats := computeStatistics(events)
	s.recordAccess(ctx, "get_statistics", stats.TotalEvents)
	return &stats, nil
}

func validateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "startDate and endDate are required")
	}
	if !start.Before(end) {
		return dErrors.New(dErrors.CodeInvalidInput, "startDate must be before endDate")
	}
	return nil
}

// scanWindow decrypts the newest models.MaxScanEvents events in the window and
// reports whether the window held more.
func (s *Service) scanWindow(ctx context.Context, start, end time.Time, failMsg string) ([]models.AuditEvent, bool, error) {
	rq := models.RecordQuery{Start: start, End: end}
	total, err := s.store.Count(ctx, rq)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit count failed", "error", err)
		return nil, false, storeError(err, failMsg)
	}
	rq.SortBy = models.SortByTimestamp
	rq.SortOrder = models.SortDesc
	rq.Take = models.MaxScanEvents
	events, err := s.findAndDecrypt(ctx, rq)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeOf(err), failMsg)
	}
	return events, total > models.MaxScanEvents, nil
}

func computeStatistics(events []models.AuditEvent) models.AuditStatistics {
	stats := models.AuditStatistics{
		TotalEvents: len(events),
		ByCategory:  make(map[models.Category]int),
		ByOutcome:   make(map[models.Outcome]int),
		ByRiskLevel: make(map[models.RiskLevel]int),
	}
	users := make(map[string]*models.UserActivity)
	resources := make(map[string]*models.ResourceActivity)

	for i := range events {
		ev := &events[i]
		stats.ByCategory[ev.Category]++
		stats.ByOutcome[ev.Outcome]++
		stats.ByRiskLevel[ev.RiskLevel]++

		isPHI := ev.Category.Group() == models.GroupPHI
		if isPHI {
			stats.Compliance.PHIAccessCount++
		}
		switch ev.Category {
		case models.CategoryLoginFailure:
			stats.Compliance.FailedLoginCount++
		case models.CategorySecurityIncident:
			stats.Compliance.SecurityIncidentCount++
		case models.CategoryDataBreachDetected:
			stats.Compliance.BreachCount++
		case models.CategoryPHIAccess:
			if ev.Details == nil || ev.Details.PHI == nil || strings.TrimSpace(ev.Details.PHI.AccessJustification) == "" {
				stats.Compliance.UnjustifiedPHIAccessCount++
			}
		}
		if ev.RiskLevel == models.RiskCritical {
			stats.Compliance.CriticalEventCount++
		}

		if ev.UserID != "" {
			u, ok := users[ev.UserID]
			if !ok {
				u = &models.UserActivity{UserID: ev.UserID}
				users[ev.UserID] = u
			}
			u.EventCount++
			if u.UserEmail == "" {
				u.UserEmail = ev.UserEmail
			}
			if isPHI {
				u.PHIAccessCount++
			}
			if ev.Category == models.CategoryLoginFailure {
				u.FailedLogins++
			}
		}
		if ev.ResourceType != "" {
			r, ok := resources[ev.ResourceType]
			if !ok {
				r = &models.ResourceActivity{ResourceType: ev.ResourceType}
				resources[ev.ResourceType] = r
			}
			r.AccessCount++
		}
	}

	stats.ByUser = make([]models.UserActivity, 0, len(users))
	for _, u := range users {
		stats.ByUser = append(stats.ByUser, *u)
	}
	slices.SortFunc(stats.ByUser, func(a, b models.UserActivity) int {
		return cmp.Or(cmp.Compare(b.EventCount, a.EventCount), cmp.Compare(a.UserID, b.UserID))
	})
	if len(stats.ByUser) > maxBreakdownRows {
		stats.ByUser = stats.ByUser[:maxBreakdownRows]
	}

	stats.ByResource = make([]models.ResourceActivity, 0, len(resources))
	for _, r := range resources {
		stats.ByResource = append(stats.ByResource, *r)
	}
	slices.SortFunc(stats.ByResource, func(a, b models.ResourceActivity) int {
		return cmp.Or(cmp.Compare(b.AccessCount, a.AccessCount), cmp.Compare(a.ResourceType, b.ResourceType))
	})
	if len(stats.ByResource) > maxBreakdownRows {
		stats.ByResource = stats.ByResource[:maxBreakdownRows]
	}
	return stats
}

// evaluateFindings applies the fixed compliance rules in a stable order.
func evaluateFindings(stats models.AuditStatistics, failedLoginThreshold int) []models.Finding {
	findings := make([]models.Finding, 0, 3)
	c := stats.Compliance

	if failedLoginThreshold > 0 && c.FailedLoginCount > failedLoginThreshold {
		findings = append(findings, models.Finding{
			Rule:           RuleExcessiveFailedLogins,
			Severity:       models.RiskHigh,
			Title:          "Excessive failed login attempts",
			Description:    fmt.Sprintf("%d failed login attempts in the reporting period exceed the threshold of %d", c.FailedLoginCount, failedLoginThreshold),
			Recommendation: "Review failed login sources and consider account lockout or MFA enforcement",
			EventCount:     c.FailedLoginCount,
		})
	}
	if c.BreachCount > 0 {
		findings = append(findings, models.Finding{
			Rule:           RuleDataBreach,
			Severity:       models.RiskCritical,
			Title:          "Data breach incidents detected",
			Description:    fmt.Sprintf("%d data breach events recorded in the reporting period", c.BreachCount),
			Recommendation: "Initiate the breach notification procedure immediately",
			EventCount:     c.BreachCount,
		})
	}
	if c.UnjustifiedPHIAccessCount > 0 {
		findings = append(findings, models.Finding{
			Rule:           RuleUnjustifiedPHIAccess,
			Severity:       models.RiskMedium,
			Title:          "PHI access without proper justification",
			Description:    fmt.Sprintf("%d PHI access events have no recorded justification", c.UnjustifiedPHIAccessCount),
			Recommendation: "Require an access justification for every PHI access",
			EventCount:     c.UnjustifiedPHIAccessCount,
		})
	}
	return findings
}
