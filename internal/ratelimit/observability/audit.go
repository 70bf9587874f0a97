// Package observability provides audit logging helpers for the ratelimit module.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	auditmodels "haven/internal/audit/models"
	"haven/internal/ratelimit/ports"
	"haven/pkg/requestcontext"
)

// LogAudit logs a rate limit decision to the structured logger and records it in
// the audit log as a LOW risk SUSPICIOUS_ACTIVITY event. attrList holds flat
// key/value pairs; they become event metadata and must never carry message text.
func LogAudit(ctx context.Context, logger *slog.Logger, auditor ports.Auditor, event string, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)

	args := append([]any{}, attrList...)
	if requestID != "" {
		args = append(args, "request_id", requestID)
	}
	args = append(args, "event", event, "log_type", "audit")

	if logger != nil {
		logger.InfoContext(ctx, event, args...)
	}

	if auditor == nil {
		return
	}

	auditor.LogEvent(ctx, auditmodels.AuditEvent{
		Category:     auditmodels.CategorySuspiciousActivity,
		Outcome:      auditmodels.OutcomeFailure,
		RiskLevel:    auditmodels.RiskLow,
		Action:       event,
		Description:  describe(event, attrList),
		ResourceType: "rate_limit",
		ResourceID:   stringAttr(attrList, "action"),
		Metadata:     metadata(attrList),
	})
}

func describe(event string, attrList []any) string {
	if reason := stringAttr(attrList, "reason"); reason != "" {
		return event + ": " + reason
	}
	return event
}

func metadata(attrList []any) map[string]string {
	out := make(map[string]string, len(attrList)/2)
	for i := 0; i+1 < len(attrList); i += 2 {
		key, ok := attrList[i].(string)
		if !ok {
			continue
		}
		out[key] = fmt.Sprint(attrList[i+1])
	}
	return out
}

// stringAttr returns the string value paired with key, or "".
func stringAttr(attrList []any, key string) string {
	for i := 0; i+1 < len(attrList); i += 2 {
		if k, ok := attrList[i].(string); ok && k == key {
			v, _ := attrList[i+1].(string)
			return v
		}
	}
	return ""
}
