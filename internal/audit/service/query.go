package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"haven/internal/audit/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
)

const queryFailedMsg = "failed to query audit events"

// QueryEvents returns one page of decrypted events. Index-column filters run in
// the store; user, IP, resource and text filters run after decryption over at
// most models.MaxScanEvents candidates.
func (s *Service) QueryEvents(ctx context.Context, f models.QueryFilter) (*models.EventPage, error) {
	ctx, span := s.tracer.Start(ctx, "audit.query")
	defer span.End()

	f, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	rq := models.RecordQuery{
		Start:      f.StartDate,
		End:        f.EndDate,
		Categories: f.Categories,
		Outcomes:   f.Outcomes,
		RiskLevels: f.RiskLevels,
		SortBy:     f.SortBy,
		SortOrder:  f.SortOrder,
	}

	var (
		events []models.AuditEvent
		total  int
	)
	if f.HasResidualFilters() {
		rq.Take = models.MaxScanEvents
		candidates, err := s.findAndDecrypt(ctx, rq)
		if err != nil {
			span.SetStatus(codes.Error, "query")
			return nil, err
		}
		matched := candidates[:0]
		for _, ev := range candidates {
			if matchesResidual(&ev, f) {
				matched = append(matched, ev)
			}
		}
		total = len(matched)
		from := min((f.Page-1)*f.Limit, total)
		to := min(from+f.Limit, total)
		events = matched[from:to]
	} else {
		total, err = s.store.Count(ctx, rq)
		if err != nil {
			s.logger.ErrorContext(ctx, "audit count failed", "error", err)
			return nil, storeError(err, queryFailedMsg)
		}
		rq.Skip = (f.Page - 1) * f.Limit
		rq.Take = f.Limit
		events, err = s.findAndDecrypt(ctx, rq)
		if err != nil {
			span.SetStatus(codes.Error, "query")
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("audit.total", total), attribute.Int("audit.returned", len(events)))
	s.recordAccess(ctx, "query_events", len(events))

	totalPages := 0
	if total > 0 {
		totalPages = (total + f.Limit - 1) / f.Limit
	}
	return &models.EventPage{
		Events:     events,
		TotalCount: total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: totalPages,
	}, nil
}

// findAndDecrypt loads and decrypts records. A tampered record is recorded as a
// SECURITY_INCIDENT and surfaces as a generic internal error.
func (s *Service) findAndDecrypt(ctx context.Context, rq models.RecordQuery) ([]models.AuditEvent, error) {
	records, err := s.store.FindMany(ctx, rq)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit find failed", "error", err)
		return nil, storeError(err, queryFailedMsg)
	}
	events, err := s.decryptAll(ctx, records)
	if err != nil {
		if errors.Is(err, models.ErrDecryptionFailure) {
			s.recordTamper(ctx, err)
		} else {
			s.logger.ErrorContext(ctx, "audit decrypt failed", "error", err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, queryFailedMsg)
	}
	return events, nil
}

func (s *Service) recordTamper(ctx context.Context, cause error) {
	s.metrics.IncDecryptionFailures()
	s.logger.ErrorContext(ctx, "audit record failed integrity verification", "error", cause, "log_type", "audit")
	s.LogSecurityEvent(ctx, SecurityEventParams{
		Description: "stored audit record failed integrity verification",
		ThreatLevel: models.RiskHigh,
		ThreatType:  "audit_record_tamper",
		Indicators:  []string{cause.Error()},
	})
}

// recordAccess audits reads of the audit log itself.
func (s *Service) recordAccess(ctx context.Context, action string, returned int) {
	s.recordInternal(ctx, models.AuditEvent{
		Category:     models.CategoryAuditLogAccessed,
		Action:       action,
		ResourceType: "audit_log",
		Metadata:     map[string]string{"returned": strconv.Itoa(returned)},
	})
}

// storeError maps store sentinels onto domain codes.
func storeError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, sentinel.ErrRetentionActive):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func normalizeFilter(f models.QueryFilter) (models.QueryFilter, error) {
	if f.Page < 0 || f.Limit < 0 {
		return f, dErrors.New(dErrors.CodeInvalidInput, "page and limit must not be negative")
	}
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = models.DefaultPageLimit
	}
	f.Limit = min(f.Limit, models.MaxPageLimit)
	if f.Page > math.MaxInt/f.Limit {
		return f, dErrors.New(dErrors.CodeInvalidInput, "page is out of range")
	}

	if f.SortBy == "" {
		f.SortBy = models.SortByTimestamp
	}
	if !f.SortBy.IsValid() {
		return f, dErrors.New(dErrors.CodeInvalidInput, "unsupported sort field")
	}
	switch f.SortOrder {
	case "":
		f.SortOrder = models.SortDesc
	case models.SortAsc, models.SortDesc:
	default:
		return f, dErrors.New(dErrors.CodeInvalidInput, "sort order must be asc or desc")
	}

	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate) {
		return f, dErrors.New(dErrors.CodeInvalidInput, "startDate must not be after endDate")
	}
	for _, c := range f.Categories {
		if !c.IsValid() {
			return f, dErrors.New(dErrors.CodeInvalidInput, "unknown category "+string(c))
		}
	}
	for _, o := range f.Outcomes {
		if !o.IsValid() {
			return f, dErrors.New(dErrors.CodeInvalidInput, "unknown outcome "+string(o))
		}
	}
	for _, r := range f.RiskLevels {
		if !r.IsValid() {
			return f, dErrors.New(dErrors.CodeInvalidInput, "unknown risk level "+string(r))
		}
	}
	return f, nil
}

func matchesResidual(ev *models.AuditEvent, f models.QueryFilter) bool {
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.UserEmail != "" && !strings.EqualFold(ev.UserEmail, f.UserEmail) {
		return false
	}
	if f.SourceIP != "" && ev.SourceIP != f.SourceIP {
		return false
	}
	if f.ResourceType != "" && ev.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && ev.ResourceID != f.ResourceID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.SearchQuery)); q != "" {
		if !strings.Contains(strings.ToLower(ev.Description), q) &&
			!strings.Contains(strings.ToLower(ev.Action), q) &&
			!strings.Contains(strings.ToLower(ev.UserEmail), q) {
			return false
		}
	}
	return true
}
