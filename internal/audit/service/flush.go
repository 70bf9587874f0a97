package service

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"haven/internal/audit/models"
)

// Flush persists everything buffered so far. Failures re-queue the unpersisted
// events at the front of the buffer and are recorded, never returned.
func (s *Service) Flush(ctx context.Context) {
	_ = s.flush(ctx)
}

func (s *Service) flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	pending := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "audit.flush")
	defer span.End()
	span.SetAttributes(attribute.Int("audit.events", len(pending)))

	start := time.Now()
	defer func() { s.metrics.ObserveFlush(time.Since(start)) }()

	records, err := s.encryptAll(ctx, pending)
	if err != nil {
		s.requeue(pending)
		span.RecordError(err)
		span.SetStatus(codes.Error, "encrypt")
		s.logger.ErrorContext(ctx, "audit flush failed to encrypt batch", "error", err, "events", len(pending), "log_type", "audit")
		return err
	}

	persisted := 0
	for i := 0; i < len(records); i += s.batchSize {
		end := min(i+s.batchSize, len(records))

		storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		n, err := s.store.CreateMany(storeCtx, records[i:end])
		cancel()
		if err != nil {
			s.requeue(pending[i:])
			s.metrics.IncFlushFailures()
			s.metrics.AddRecordsPersisted(persisted)
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist")
			s.logger.ErrorContext(ctx, "audit flush failed, events re-queued",
				"error", err,
				"requeued", len(pending)-i,
				"log_type", "audit",
			)
			s.recordStoreFailure(ctx, len(pending)-i)
			return fmt.Errorf("%w: %v", models.ErrPersistenceFailure, err)
		}
		persisted += n
	}

	s.metrics.AddRecordsPersisted(persisted)
	s.metrics.SetBufferDepth(s.Pending())
	if s.storeFailing {
		s.storeFailing = false
		s.logger.InfoContext(ctx, "audit store recovered", "persisted", persisted)
	}
	return nil
}

// requeue puts events back at the front of the buffer in their original order,
// ahead of anything logged while the flush was running.
func (s *Service) requeue(events []models.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]models.AuditEvent, 0, len(events)+len(s.buffer))
	merged = append(merged, events...)
	merged = append(merged, s.buffer...)
	s.buffer = merged
}

// recordStoreFailure audits the first failure of an outage only, so a store that
// stays down does not grow the buffer by one event per cycle.
func (s *Service) recordStoreFailure(ctx context.Context, requeued int) {
	if s.storeFailing {
		return
	}
	s.storeFailing = true
	s.recordInternal(ctx, models.AuditEvent{
		Category:    models.CategorySystemConfigChange,
		Outcome:     models.OutcomeFailure,
		RiskLevel:   models.RiskMedium,
		Action:      "audit_flush_failure",
		Description: "audit store unavailable; events re-queued for retry",
		Metadata:    map[string]string{"requeued": strconv.Itoa(requeued)},
	})
}

func (s *Service) encryptAll(ctx context.Context, events []models.AuditEvent) ([]models.EncryptedRecord, error) {
	records := make([]models.EncryptedRecord, len(events))
	if len(events) <= parallelThreshold {
		for i := range events {
			rec, err := s.codec.Encrypt(&events[i])
			if err != nil {
				return nil, err
			}
			records[i] = rec
		}
		return records, nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range events {
		g.Go(func() error {
			rec, err := s.codec.Encrypt(&events[i])
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) decryptAll(ctx context.Context, records []models.EncryptedRecord) ([]models.AuditEvent, error) {
	events := make([]models.AuditEvent, len(records))
	if len(records) <= parallelThreshold {
		for i, r := range records {
			ev, err := s.codec.Decrypt(r)
			if err != nil {
				return nil, err
			}
			events[i] = *ev
		}
		return events, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range records {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			ev, err := s.codec.Decrypt(records[i])
			if err != nil {
				return err
			}
			events[i] = *ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return events, nil
}
