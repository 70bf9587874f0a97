package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	auditmodels "haven/internal/audit/models"
	"haven/internal/chat/models"
	"haven/internal/chat/store/memory"
	"haven/internal/crisis"
	"haven/internal/moderation"
	ratelimitconfig "haven/internal/ratelimit/config"
	ratelimitmodels "haven/internal/ratelimit/models"
	ratelimitservice "haven/internal/ratelimit/service"
	ratelimitmemory "haven/internal/ratelimit/store/memory"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/requestcontext"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []auditmodels.AuditEvent
}

func (a *recordingAuditor) LogEvent(_ context.Context, e auditmodels.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAuditor) recorded() []auditmodels.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]auditmodels.AuditEvent(nil), a.events...)
}

type brokenLimiter struct{}

func (brokenLimiter) CheckBothLimits(context.Context, string, string, string) (*ratelimitmodels.RateLimitResult, error) {
	return nil, errors.New("redis: connection refused")
}

type ServiceSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	auditor *recordingAuditor
	now     time.Time
	svc     *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.NewInMemoryStore(memory.DefaultRooms()...)
	s.auditor = &recordingAuditor{}
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithActor(context.Background(), requestcontext.Actor{UserID: "member-1"})
	s.ctx = requestcontext.WithClientMetadata(s.ctx, "203.0.113.7", "test-agent")

	limiter, err := ratelimitservice.New(ratelimitmemory.NewInMemoryWindowStore(),
		ratelimitservice.WithConfig(&ratelimitconfig.Config{Actions: map[string]ratelimitconfig.ActionLimit{
			ratelimitconfig.ActionPostMessage: {MaxRequests: 3, Window: time.Minute},
		}}),
		ratelimitservice.WithLogger(discard()),
		ratelimitservice.WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)

	s.svc = s.newService(WithLimiter(limiter))
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithAuditor(s.auditor),
		WithLogger(discard()),
		WithClock(func() time.Time { return s.now }),
		WithDetector(crisis.New(crisis.WithPicker(func(int) int { return 0 }))),
	}
	svc, err := New(s.store, s.store, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ServiceSuite) submit(room, text string) *models.Outcome {
	out, err := s.svc.Submit(s.ctx, models.Submission{RoomID: room, Text: text})
	s.Require().NoError(err)
	return out
}

func (s *ServiceSuite) TestNewRequiresStores() {
	_, err := New(nil, s.store)
	s.Error(err)
	_, err = New(s.store, nil)
	s.Error(err)
}

func (s *ServiceSuite) TestCleanMessageIsDelivered() {
	out := s.submit("general", "Had a good session with my counselor today")

	s.Equal(models.StatusDelivered, out.Status)
	s.NotEmpty(out.MessageID)
	s.False(out.Moderated)
	s.Nil(out.Crisis)
	s.Empty(s.auditor.recorded())

	msgs, err := s.svc.ListMessages(s.ctx, "general", 10)
	s.Require().NoError(err)
	s.Require().Len(msgs, 1)
	s.Equal("member-1", msgs[0].UserID)
	s.Equal(s.now, msgs[0].CreatedAt)
}

func (s *ServiceSuite) TestPIIIsRedactedAndAudited() {
	out := s.submit("general", "text me at 555-123-4567 if you want to talk")

	s.Equal(models.StatusDelivered, out.Status)
	s.True(out.Moderated)
	s.Equal(moderation.CategoryPII, out.Category)
	s.Contains(out.Text, "[PHONE REMOVED]")
	s.NotContains(out.Text, "555-123-4567")

	events := s.auditor.recorded()
	s.Require().Len(events, 1)
	e := events[0]
	s.Equal(auditmodels.CategoryContentModerated, e.Category)
	s.Equal(auditmodels.OutcomeSuccess, e.Outcome)
	s.Equal(auditmodels.RiskMedium, e.RiskLevel)
	s.Equal(out.MessageID, e.ResourceID)
	s.Equal("general", e.Metadata["room_id"])
	s.Equal("pii", e.Metadata["category"])
	for _, v := range e.Metadata {
		s.NotContains(v, "555-123-4567")
	}
}

func (s *ServiceSuite) TestHarmfulPatternIsBlocked() {
	out := s.submit("general", "this can be our little secret, ok?")

	s.Equal(models.StatusBlocked, out.Status)
	s.Equal(moderation.CategoryGrooming, out.Category)
	s.Empty(out.MessageID)

	msgs, err := s.svc.ListMessages(s.ctx, "general", 10)
	s.Require().NoError(err)
	s.Empty(msgs)

	events := s.auditor.recorded()
	s.Require().Len(events, 1)
	s.Equal(auditmodels.OutcomeFailure, events[0].Outcome)
	s.Equal(auditmodels.RiskHigh, events[0].RiskLevel)
	s.Equal("message_blocked", events[0].Action)
}

func (s *ServiceSuite) TestCrisisDetection() {
	s.Run("immediate risk raises a critical alert", func() {
		out := s.submit("general", "I want to die tonight")

		s.Equal(models.StatusDelivered, out.Status)
		s.Require().NotNil(out.Crisis)
		s.Equal(crisis.SeverityHigh, out.Crisis.Severity)
		s.True(out.Crisis.RequiresImmediate)
		s.Equal(crisis.ResponseTemplates(crisis.SeverityHigh)[0], out.Crisis.SuggestedResponse)

		events := s.auditor.recorded()
		s.Require().Len(events, 1)
		s.Equal(auditmodels.CategoryCrisisAlertTriggered, events[0].Category)
		s.Equal(auditmodels.RiskCritical, events[0].RiskLevel)
		s.True(events[0].RequiresNotification)
		s.Equal("true", events[0].Metadata["requires_immediate"])
	})

	s.Run("recovery language lowers the risk", func() {
		s.auditor.events = nil
		out := s.submit("general", "I used to feel hopeless but therapy helped")

		s.Require().NotNil(out.Crisis)
		s.Equal(crisis.SeverityLow, out.Crisis.Severity)
		s.False(out.Crisis.RequiresImmediate)

		events := s.auditor.recorded()
		s.Require().Len(events, 1)
		s.Equal(auditmodels.RiskLow, events[0].RiskLevel)
	})
}

func (s *ServiceSuite) TestCrisisIsDetectedOnBlockedMessages() {
	out := s.submit("general", "nobody likes you, I want to die")

	s.Equal(models.StatusBlocked, out.Status)
	s.Require().NotNil(out.Crisis)

	var categories []auditmodels.Category
	for _, e := range s.auditor.recorded() {
		categories = append(categories, e.Category)
	}
	s.ElementsMatch([]auditmodels.Category{
		auditmodels.CategoryContentModerated,
		auditmodels.CategoryCrisisAlertTriggered,
	}, categories)
}

func (s *ServiceSuite) TestValidationRejection() {
	out := s.submit("general", "   ")

	s.Equal(models.StatusRejected, out.Status)
	s.Equal(moderation.CodeEmpty, out.Code)
	s.Empty(s.auditor.recorded())
}

func (s *ServiceSuite) TestRoomRulesApply() {
	out := s.submit("youth", "this is crap")
	s.Equal(models.StatusRejected, out.Status)
	s.Equal(moderation.CodeRoomProfanity, out.Code)

	out = s.submit("general", "this is crap")
	s.Equal(models.StatusDelivered, out.Status)
	s.Equal(moderation.CategoryProfanity, out.Category)
	s.NotContains(out.Text, "crap")
}

func (s *ServiceSuite) TestRateLimit() {
	for _, text := range []string{"first", "second", "third"} {
		s.Equal(models.StatusDelivered, s.submit("general", text).Status)
	}

	out := s.submit("general", "fourth")
	s.Equal(models.StatusRateLimited, out.Status)
	s.Equal(60, out.RetryAfter)

	s.now = s.now.Add(61 * time.Second)
	s.Equal(models.StatusDelivered, s.submit("general", "fifth").Status)
}

func (s *ServiceSuite) TestLimiterFailureFailsOpen() {
	s.svc = s.newService(WithLimiter(brokenLimiter{}))

	out := s.submit("general", "still here")
	s.Equal(models.StatusDelivered, out.Status)
}

func (s *ServiceSuite) TestErrors() {
	s.Run("unknown room", func() {
		_, err := s.svc.Submit(s.ctx, models.Submission{RoomID: "missing", Text: "hello"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("anonymous sender", func() {
		_, err := s.svc.Submit(context.Background(), models.Submission{RoomID: "general", Text: "hello"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("listing an unknown room", func() {
		_, err := s.svc.ListMessages(s.ctx, "missing", 10)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
