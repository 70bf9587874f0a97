// Package service runs a chat submission through rate limiting, validation,
// content moderation and crisis detection, then delivers it and records the
// outcome in the audit log. Message text is never logged.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	auditmodels "haven/internal/audit/models"
	"haven/internal/chat/models"
	"haven/internal/chat/ports"
	"haven/internal/crisis"
	"haven/internal/moderation"
	modmetrics "haven/internal/moderation/metrics"
	ratelimitconfig "haven/internal/ratelimit/config"
	id "haven/pkg/domain"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
	"haven/pkg/requestcontext"
)

// Type aliases for collaborator interfaces.
type (
	Limiter      = ports.Limiter
	Auditor      = ports.Auditor
	RoomStore    = ports.RoomStore
	MessageStore = ports.MessageStore
)

const codeRateLimited = "rate_limited"

type Service struct {
	rooms     RoomStore
	messages  MessageStore
	limiter   Limiter
	auditor   Auditor
	validator *moderation.Validator
	moderator *moderation.Moderator
	detector  *crisis.Detector
	logger    *slog.Logger
	metrics   *modmetrics.Metrics
	clock     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithLimiter(l Limiter) Option {
	return func(s *Service) {
		s.limiter = l
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

func WithValidator(v *moderation.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.validator = v
		}
	}
}

func WithDetector(d *crisis.Detector) Option {
	return func(s *Service) {
		if d != nil {
			s.detector = d
		}
	}
}

func WithMetrics(m *modmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func New(rooms RoomStore, messages MessageStore, opts ...Option) (*Service, error) {
	if rooms == nil {
		return nil, errors.New("room store is required")
	}
	if messages == nil {
		return nil, errors.New("message store is required")
	}
	moderator := moderation.NewModerator()
	svc := &Service{
		rooms:     rooms,
		messages:  messages,
		moderator: moderator,
		detector:  crisis.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.validator == nil {
		svc.validator = moderation.NewValidator(
			moderation.WithProfanityFilter(moderator.Profanity()),
			moderation.WithValidatorClock(func() time.Time { return svc.now(context.Background()) }),
		)
	}
	return svc, nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return requestcontext.Now(ctx)
}

// Submit processes a message from the member in ctx. Policy outcomes (rate
// limited, rejected, blocked) are reported in the Outcome; errors are reserved
// for unknown rooms and storage failures.
func (s *Service) Submit(ctx context.Context, sub models.Submission) (*models.Outcome, error) {
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "sender is not authenticated")
	}

	room, err := s.rooms.FindRoom(ctx, sub.RoomID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "room not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load room")
	}

	if out := s.checkRateLimit(ctx, userID); out != nil {
		return out, nil
	}

	decision := s.validator.Validate(moderation.Message{
		UserID:      userID,
		RoomID:      room.ID,
		Text:        sub.Text,
		Attachments: sub.Attachments,
	}, room.Rules)
	if !decision.Valid {
		s.metrics.IncrementRejection(decision.Code)
		s.logger.InfoContext(ctx, "chat message rejected", "room_id", room.ID, "code", decision.Code)
		return &models.Outcome{Status: models.StatusRejected, Code: decision.Code, Reason: decision.Reason}, nil
	}

	messageID := id.NewMessageID()
	mod := s.moderator.Moderate(sub.Text)
	if mod.Flagged {
		s.metrics.IncrementFlag(string(mod.Category), string(mod.Severity))
		s.auditModeration(ctx, room.ID, messageID, mod)
	}

	support := s.detectCrisis(ctx, room.ID, messageID, sub.Text)

	if mod.Blocked {
		return &models.Outcome{
			Status:    models.StatusBlocked,
			Code:      string(mod.Category),
			Reason:    mod.Reason,
			Moderated: true,
			Category:  mod.Category,
			Crisis:    support,
		}, nil
	}

	msg := &models.Message{
		ID:          messageID,
		RoomID:      room.ID,
		UserID:      userID,
		Text:        mod.CleanText,
		Attachments: sub.Attachments,
		Moderated:   mod.Flagged,
		CreatedAt:   s.now(ctx).UTC(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver message")
	}

	return &models.Outcome{
		Status:    models.StatusDelivered,
		MessageID: messageID.String(),
		Text:      msg.Text,
		Reason:    mod.Reason,
		Moderated: mod.Flagged,
		Category:  mod.Category,
		Crisis:    support,
	}, nil
}

// ListMessages returns the newest messages of a room, oldest first.
func (s *Service) ListMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error) {
	if _, err := s.rooms.FindRoom(ctx, roomID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "room not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load room")
	}
	msgs, err := s.messages.ListByRoom(ctx, roomID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list messages")
	}
	return msgs, nil
}

// checkRateLimit returns an outcome when the sender is over the limit. Limiter
// failures are logged and the message proceeds.
func (s *Service) checkRateLimit(ctx context.Context, userID string) *models.Outcome {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.CheckBothLimits(ctx, requestcontext.ClientIP(ctx), userID, ratelimitconfig.ActionPostMessage)
	if err != nil {
		s.logger.ErrorContext(ctx, "chat rate limit check failed", "error", err)
		return nil
	}
	if res.Allowed {
		return nil
	}
	s.metrics.IncrementRejection(codeRateLimited)
	return &models.Outcome{
		Status:     models.StatusRateLimited,
		Code:       codeRateLimited,
		Reason:     "You are sending messages too quickly. Please wait a moment.",
		RetryAfter: res.RetryAfter,
	}
}

func (s *Service) detectCrisis(ctx context.Context, roomID string, messageID id.MessageID, text string) *models.CrisisSupport {
	res := s.detector.Detect(text)
	if !res.Detected {
		return nil
	}
	s.metrics.IncrementCrisis(string(res.Severity), res.RequiresImmediate)
	s.logger.WarnContext(ctx, "crisis language detected",
		"room_id", roomID,
		"message_id", messageID.String(),
		"severity", res.Severity,
		"requires_immediate", res.RequiresImmediate,
		"log_type", "audit",
	)
	s.audit(ctx, auditmodels.AuditEvent{
		Category:             auditmodels.CategoryCrisisAlertTriggered,
		RiskLevel:            crisisRisk(res),
		Action:               "crisis_alert_triggered",
		Description:          "Crisis language detected in chat message",
		ResourceType:         "chat_message",
		ResourceID:           messageID.String(),
		DataSensitivity:      auditmodels.SensitivityRestricted,
		RequiresNotification: res.RequiresImmediate,
		Metadata: map[string]string{
			"room_id":             roomID,
			"severity":            string(res.Severity),
			"requires_immediate":  boolString(res.RequiresImmediate),
			"triggers":            strings.Join(res.Triggers, ","),
			"positive_indicators": itoa(res.PositiveIndicators),
			"negative_indicators": itoa(res.NegativeIndicators),
		},
	})
	return &models.CrisisSupport{
		Severity:          res.Severity,
		RequiresImmediate: res.RequiresImmediate,
		SuggestedResponse: res.SuggestedResponse,
	}
}

func (s *Service) auditModeration(ctx context.Context, roomID string, messageID id.MessageID, mod moderation.Result) {
	outcome := auditmodels.OutcomeSuccess
	action := "message_cleaned"
	if mod.Blocked {
		outcome = auditmodels.OutcomeFailure
		action = "message_blocked"
	}
	s.audit(ctx, auditmodels.AuditEvent{
		Category:        auditmodels.CategoryContentModerated,
		Outcome:         outcome,
		RiskLevel:       moderationRisk(mod.Severity),
		Action:          action,
		Description:     "Chat message flagged as " + string(mod.Category),
		ResourceType:    "chat_message",
		ResourceID:      messageID.String(),
		DataSensitivity: auditmodels.SensitivityConfidential,
		Metadata: map[string]string{
			"room_id":  roomID,
			"category": string(mod.Category),
			"severity": string(mod.Severity),
			"matches":  strings.Join(mod.Matches, ","),
		},
	})
}

func (s *Service) audit(ctx context.Context, e auditmodels.AuditEvent) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogEvent(ctx, e)
}

func crisisRisk(res crisis.Result) auditmodels.RiskLevel {
	switch {
	case res.RequiresImmediate:
		return auditmodels.RiskCritical
	case res.Severity == crisis.SeverityHigh:
		return auditmodels.RiskHigh
	case res.Severity == crisis.SeverityMedium:
		return auditmodels.RiskMedium
	default:
		return auditmodels.RiskLow
	}
}

func moderationRisk(sev moderation.Severity) auditmodels.RiskLevel {
	switch sev {
	case moderation.SeverityHigh:
		return auditmodels.RiskHigh
	case moderation.SeverityMedium:
		return auditmodels.RiskMedium
	default:
		return auditmodels.RiskLow
	}
}
