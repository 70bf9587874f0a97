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
	"haven/internal/ratelimit/config"
	"haven/internal/ratelimit/models"
	"haven/internal/ratelimit/store/memory"
	dErrors "haven/pkg/domain-errors"
)

const postMessage = "postMessage"

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

type failingStore struct{}

func (failingStore) Hit(context.Context, string, int, time.Duration, time.Time) (models.Window, bool, error) {
	return models.Window{}, false, errors.New("connection refused")
}

func (failingStore) Reset(context.Context, string) error {
	return errors.New("connection refused")
}

type ServiceSuite struct {
	suite.Suite
	store   *memory.InMemoryWindowStore
	auditor *recordingAuditor
	now     time.Time
	svc     *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.NewInMemoryWindowStore()
	s.auditor = &recordingAuditor{}
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = context.Background()

	cfg := &config.Config{Actions: map[string]config.ActionLimit{
		postMessage: {MaxRequests: 5, Window: 60 * time.Second},
	}}
	svc, err := New(s.store,
		WithConfig(cfg),
		WithAuditor(s.auditor),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) TestNewRequiresStore() {
	_, err := New(nil)
	s.Error(err)
}

func (s *ServiceSuite) TestUserLimit() {
	s.Run("sixth call in the window is denied", func() {
		for i := 1; i <= 5; i++ {
			res, err := s.svc.CheckUserRateLimit(s.ctx, "user-1", postMessage)
			s.Require().NoError(err)
			s.True(res.Allowed, "call %d", i)
			s.Equal(i, res.Count)
		}

		res, err := s.svc.CheckUserRateLimit(s.ctx, "user-1", postMessage)
		s.Require().NoError(err)
		s.False(res.Allowed)
		s.Equal(0, res.Remaining)
		s.Equal(60, res.RetryAfter)
	})

	s.Run("after the window the counter restarts at one", func() {
		s.now = s.now.Add(61 * time.Second)

		res, err := s.svc.CheckUserRateLimit(s.ctx, "user-1", postMessage)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1, res.Count)
	})

	s.Run("users are counted separately", func() {
		res, err := s.svc.CheckUserRateLimit(s.ctx, "user-2", postMessage)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1, res.Count)
	})
}

func (s *ServiceSuite) TestIPLimitIsDoubleTheUserLimit() {
	for i := 1; i <= 10; i++ {
		res, err := s.svc.CheckIPRateLimit(s.ctx, "10.0.0.1", postMessage)
		s.Require().NoError(err)
		s.Require().True(res.Allowed, "call %d", i)
	}

	res, err := s.svc.CheckIPRateLimit(s.ctx, "10.0.0.1", postMessage)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(10, res.Limit)
	s.Equal(models.ScopeIP, res.Scope)
}

func (s *ServiceSuite) TestCheckBothLimits() {
	s.Run("user denial wins while the IP still has room", func() {
		for range 5 {
			res, err := s.svc.CheckBothLimits(s.ctx, "10.0.0.2", "user-3", postMessage)
			s.Require().NoError(err)
			s.Require().True(res.Allowed)
		}

		res, err := s.svc.CheckBothLimits(s.ctx, "10.0.0.2", "user-3", postMessage)
		s.Require().NoError(err)
		s.False(res.Allowed)
		s.Equal(models.ScopeUser, res.Scope)
	})

	s.Run("returns the more restrictive result", func() {
		res, err := s.svc.CheckBothLimits(s.ctx, "10.0.0.3", "user-4", postMessage)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(models.ScopeUser, res.Scope)
		s.Equal(4, res.Remaining)
	})

	s.Run("empty identifier skips that scope", func() {
		res, err := s.svc.CheckBothLimits(s.ctx, "10.0.0.4", "", postMessage)
		s.Require().NoError(err)
		s.Equal(models.ScopeIP, res.Scope)
	})

	s.Run("needs at least one identifier", func() {
		_, err := s.svc.CheckBothLimits(s.ctx, "", "", postMessage)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestDenialIsAudited() {
	for range 6 {
		_, err := s.svc.CheckUserRateLimit(s.ctx, "user-5", postMessage)
		s.Require().NoError(err)
	}

	events := s.auditor.recorded()
	s.Require().Len(events, 1)
	ev := events[0]
	s.Equal(auditmodels.CategorySuspiciousActivity, ev.Category)
	s.Equal(auditmodels.RiskLow, ev.RiskLevel)
	s.Equal(auditmodels.OutcomeFailure, ev.Outcome)
	s.Equal("user_rate_limit_exceeded", ev.Action)
	s.Equal(postMessage, ev.ResourceID)
	s.Equal("user", ev.Metadata["scope"])
	s.Equal("5", ev.Metadata["limit"])
	s.Equal("60", ev.Metadata["window_seconds"])
}

func (s *ServiceSuite) TestUnconfiguredActionIsDeniedAndAudited() {
	res, err := s.svc.CheckUserRateLimit(s.ctx, "user-6", "deleteEverything")
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal("deleteEverything", res.Action)

	events := s.auditor.recorded()
	s.Require().Len(events, 1)
	s.Equal("rate_limit_config_missing", events[0].Action)
	s.Equal("deleteEverything", events[0].ResourceID)
	s.Zero(s.store.Len())
}

func (s *ServiceSuite) TestStoreFailure() {
	svc, err := New(failingStore{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	_, err = svc.CheckUserRateLimit(s.ctx, "user-7", config.ActionPostMessage)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	err = svc.Reset(s.ctx, models.ScopeUser, "user-7", config.ActionPostMessage)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Zero(svc.Sweep(s.ctx))
}

func (s *ServiceSuite) TestReset() {
	for range 6 {
		_, _ = s.svc.CheckUserRateLimit(s.ctx, "user-8", postMessage)
	}
	s.Require().NoError(s.svc.Reset(s.ctx, models.ScopeUser, "user-8", postMessage))

	res, err := s.svc.CheckUserRateLimit(s.ctx, "user-8", postMessage)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *ServiceSuite) TestSweepRemovesStaleWindows() {
	_, _ = s.svc.CheckUserRateLimit(s.ctx, "user-9", postMessage)
	_, _ = s.svc.CheckIPRateLimit(s.ctx, "10.0.0.9", postMessage)
	s.Equal(2, s.store.Len())

	s.Zero(s.svc.Sweep(s.ctx))

	s.now = s.now.Add(2 * time.Minute)
	s.Equal(2, s.svc.Sweep(s.ctx))
	s.Zero(s.store.Len())
}

func (s *ServiceSuite) TestBackgroundSweep() {
	store := memory.NewInMemoryWindowStore()
	svc, err := New(store,
		WithSweepInterval(10*time.Millisecond),
		WithClock(func() time.Time { return time.Now().Add(time.Hour) }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)

	_, _, err = store.Hit(s.ctx, "user:x:post_message", 1, time.Minute, time.Now())
	s.Require().NoError(err)

	svc.Start()
	defer svc.Close()

	s.Eventually(func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *ServiceSuite) TestCloseWithoutStart() {
	s.svc.Close()
	s.svc.Close()
}
