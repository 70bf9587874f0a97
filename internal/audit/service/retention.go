package service

import (
	"context"
	"strconv"
	"time"

	"haven/internal/audit/models"
)

// PurgeExpired deletes records whose retention has ended and records the run.
// Records still inside retention are never touched.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "audit.purge_expired")
	defer span.End()

	now := s.now(ctx).UTC()
	deleted, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit retention purge failed", "error", err, "log_type", "audit")
		return 0, storeError(err, "failed to apply retention policy")
	}

	s.logger.InfoContext(ctx, "audit retention policy applied", "deleted", deleted, "log_type", "audit")
	s.recordInternal(ctx, models.AuditEvent{
		Category:     models.CategoryRetentionPolicyApplied,
		RiskLevel:    models.RiskMedium,
		Action:       "purge_expired",
		Description:  "expired audit records deleted",
		ResourceType: "audit_log",
		Metadata: map[string]string{
			"deleted": strconv.Itoa(deleted),
			"cutoff":  now.Format(time.RFC3339),
		},
	})
	return deleted, nil
}
