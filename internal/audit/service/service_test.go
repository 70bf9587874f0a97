package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"haven/internal/audit/codec"
	"haven/internal/audit/integrity"
	"haven/internal/audit/models"
	"haven/internal/audit/ports/mocks"
	"haven/internal/audit/store/memory"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/sentinel"
	"haven/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	now    time.Time
	store  *memory.InMemoryStore
	codec  *codec.Codec
	signer *integrity.Signer
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s.store = memory.NewInMemoryStore()

	c, err := codec.New(bytes.Repeat([]byte{3}, 32))
	s.Require().NoError(err)
	s.codec = c
	signer, err := integrity.NewSigner(bytes.Repeat([]byte{5}, 32))
	s.Require().NoError(err)
	s.signer = signer

	s.svc = s.newService(s.store)
}

func (s *ServiceSuite) newService(store Store, opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return s.now }),
	}
	svc, err := New(store, s.codec, s.signer, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

// stored decrypts everything the memory store holds.
func (s *ServiceSuite) stored() []models.AuditEvent {
	var out []models.AuditEvent
	for _, rec := range s.store.Records() {
		ev, err := s.codec.Decrypt(rec)
		s.Require().NoError(err)
		out = append(out, *ev)
	}
	return out
}

func (s *ServiceSuite) storedByCategory(c models.Category) []models.AuditEvent {
	var out []models.AuditEvent
	for _, ev := range s.stored() {
		if ev.Category == c {
			out = append(out, ev)
		}
	}
	return out
}

func (s *ServiceSuite) buffered(c models.Category) []models.AuditEvent {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	var out []models.AuditEvent
	for _, ev := range s.svc.buffer {
		if ev.Category == c {
			out = append(out, ev)
		}
	}
	return out
}

func (s *ServiceSuite) loginFailure(userID string) {
	s.svc.LogAuthentication(s.ctx, AuthenticationParams{
		Category:      models.CategoryLoginFailure,
		UserID:        userID,
		Method:        models.AuthMethodPassword,
		FailureReason: "bad_password",
	})
}

func (s *ServiceSuite) phiAccess(userID, justification string) {
	s.svc.LogPHIAccess(s.ctx, PHIAccessParams{
		Action:        "view_session_notes",
		UserID:        userID,
		ResourceType:  "session_notes",
		ResourceID:    "note-1",
		PatientID:     "client-9",
		PHIFields:     []string{"notes"},
		Purpose:       models.PurposeTreatment,
		Justification: justification,
	})
}

func TestNew_RequiresCollaborators(t *testing.T) {
	c, err := codec.New(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	signer, err := integrity.NewSigner([]byte("k"))
	require.NoError(t, err)

	_, err = New(nil, c, signer)
	assert.Error(t, err)
	_, err = New(memory.NewInMemoryStore(), nil, signer)
	assert.ErrorIs(t, err, models.ErrConfiguration)
	_, err = New(memory.NewInMemoryStore(), c, nil)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

// =============================================================================
// Write path
// =============================================================================
// Justification: events are buffered, sealed and encrypted before persistence,
// and no business caller ever sees a logging error.

func (s *ServiceSuite) TestLogEvent_BuffersUntilFlush() {
	s.svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout, Action: "logout"})

	s.Equal(1, s.svc.Pending())
	s.Empty(s.store.Records())

	s.svc.Flush(s.ctx)

	s.Equal(0, s.svc.Pending())
	events := s.stored()
	s.Require().Len(events, 1)
	ev := events[0]
	s.False(ev.EventID.IsNil())
	s.True(s.now.Equal(ev.Timestamp))
	s.Equal(models.OutcomeSuccess, ev.Outcome)
	s.Equal(models.RiskLow, ev.RiskLevel)
	s.NotEmpty(ev.Checksum)
	s.Empty(ev.DigitalSignature)
	s.True(s.signer.VerifyEvent(&ev))
}

func (s *ServiceSuite) TestLogEvent_CallerEventIsNotMutated() {
	e := models.AuditEvent{Category: models.CategoryLogout, Metadata: map[string]string{"k": "v"}}
	s.svc.LogEvent(s.ctx, e)

	s.True(e.EventID.IsNil())
	s.Empty(e.Checksum)
	s.Equal(map[string]string{"k": "v"}, e.Metadata)
}

func (s *ServiceSuite) TestLogEvent_EnrichesFromRequestContext() {
	ctx := requestcontext.WithActor(s.ctx, requestcontext.Actor{UserID: "clin-1", Email: "c1@clinic.example", Role: "clinician"})
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.7", "test-agent")
	ctx = requestcontext.WithRequestID(ctx, "req-42")

	s.svc.LogEvent(ctx, models.AuditEvent{Category: models.CategoryLogout, UserRole: "supervisor"})
	s.svc.Flush(s.ctx)

	events := s.stored()
	s.Require().Len(events, 1)
	s.Equal("clin-1", events[0].UserID)
	s.Equal("c1@clinic.example", events[0].UserEmail)
	s.Equal("supervisor", events[0].UserRole, "explicit values win over context")
	s.Equal("10.0.0.7", events[0].SourceIP)
	s.Equal("test-agent", events[0].UserAgent)
	s.Equal("req-42", events[0].RequestID)
}

func (s *ServiceSuite) TestLogEvent_HighRiskIsSigned() {
	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{
		Description: "repeated token replay",
		ThreatLevel: models.RiskHigh,
		ThreatType:  "token_replay",
	})
	s.Equal(1, s.svc.Pending(), "HIGH events wait for the next flush")

	s.svc.Flush(s.ctx)
	events := s.stored()
	s.Require().Len(events, 1)
	s.Equal(models.RiskHigh, events[0].RiskLevel)
	s.NotEmpty(events[0].DigitalSignature)
	s.True(s.signer.VerifyEvent(&events[0]))
}

func (s *ServiceSuite) TestLogEvent_CriticalFlushesImmediately() {
	s.svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout})
	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{
		Description: "intrusion detected",
		ThreatLevel: models.RiskCritical,
	})

	s.Equal(0, s.svc.Pending())
	s.Len(s.store.Records(), 2)
	incidents := s.storedByCategory(models.CategorySecurityIncident)
	s.Require().Len(incidents, 1)
	s.Equal(models.RiskCritical, incidents[0].RiskLevel)
	s.NotEmpty(incidents[0].DigitalSignature)
}

func (s *ServiceSuite) TestLogEvent_InvalidEventReplacedByFailureEvent() {
	// PHI categories must carry PHI details.
	s.svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryPHIAccess, UserID: "clin-1"})
	s.svc.Flush(s.ctx)

	s.Empty(s.storedByCategory(models.CategoryPHIAccess))
	failures := s.storedByCategory(models.CategorySystemConfigChange)
	s.Require().Len(failures, 1)
	f := failures[0]
	s.Equal(models.OutcomeFailure, f.Outcome)
	s.Equal(models.RiskMedium, f.RiskLevel)
	s.Equal("audit_log_failure", f.Action)
	s.Equal("PHI_ACCESS", f.Metadata["rejected_category"])
	s.Equal("details", f.Metadata["invalid_fields"])
	s.Empty(f.UserID, "the failure event carries no data from the rejected event")
}

func (s *ServiceSuite) TestLogEvent_RetentionFloors() {
	s.svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout, RetentionPeriod: 30})
	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{ThreatLevel: models.RiskHigh})
	s.svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLoginSuccess, RetentionPeriod: 4000,
		Details: &models.Details{Authentication: &models.AuthenticationDetails{AuthenticationMethod: models.AuthMethodSSO}}})
	s.svc.Flush(s.ctx)

	s.Equal(models.RetentionGeneralDays, s.storedByCategory(models.CategoryLogout)[0].RetentionPeriod)
	s.Equal(models.RetentionSecurityDays, s.storedByCategory(models.CategorySecurityIncident)[0].RetentionPeriod)
	s.Equal(4000, s.storedByCategory(models.CategoryLoginSuccess)[0].RetentionPeriod)
}

func (s *ServiceSuite) TestWrappers_RiskAndOutcomeDefaults() {
	s.loginFailure("clin-1")
	s.svc.LogAuthentication(s.ctx, AuthenticationParams{UserID: "clin-1", Method: models.AuthMethodMFA, MFAMethod: models.MFATOTP})
	s.phiAccess("clin-1", "weekly session")
	s.svc.LogAdministrativeChange(s.ctx, AdministrativeChangeParams{
		Description:   "session timeout changed",
		ChangedFields: []string{"session_timeout"},
		NewValues:     map[string]string{"session_timeout": "15m"},
	})
	s.svc.Flush(s.ctx)

	failure := s.storedByCategory(models.CategoryLoginFailure)[0]
	s.Equal(models.RiskMedium, failure.RiskLevel)
	s.Equal(models.OutcomeFailure, failure.Outcome)

	success := s.storedByCategory(models.CategoryLoginSuccess)[0]
	s.Equal(models.RiskLow, success.RiskLevel)
	s.Equal(models.OutcomeSuccess, success.Outcome)

	phi := s.storedByCategory(models.CategoryPHIAccess)[0]
	s.Equal(models.RiskMedium, phi.RiskLevel)
	s.Equal(models.SensitivityRestricted, phi.DataSensitivity)
	s.Equal("client-9", phi.ResourceOwner)
	s.Equal("weekly session", phi.Details.PHI.AccessJustification)

	admin := s.storedByCategory(models.CategorySettingsChanged)[0]
	s.Equal(models.RiskMedium, admin.RiskLevel)
	s.Equal([]string{"session_timeout"}, admin.Details.Administrative.ChangedFields)
}

func (s *ServiceSuite) TestLogSecurityEvent_BreachRequiresNotification() {
	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{
		Category:        models.CategoryDataBreachDetected,
		ThreatLevel:     models.RiskCritical,
		AffectedRecords: 12,
	})

	breaches := s.storedByCategory(models.CategoryDataBreachDetected)
	s.Require().Len(breaches, 1)
	s.True(breaches[0].RequiresNotification)
	s.Equal(models.InvestigationOpen, breaches[0].Details.Security.InvestigationStatus)
}

// =============================================================================
// Flush failures
// =============================================================================
// Justification: a failing store must never lose events; they stay buffered
// in order and the outage itself is audited once.

func (s *ServiceSuite) TestFlush_StoreFailureRequeuesInOrder() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockStore(ctrl)
	svc := s.newService(store)

	var persisted []models.EncryptedRecord
	store.EXPECT().CreateMany(gomock.Any(), gomock.Any()).Return(0, errors.New("connection refused")).Times(2)
	store.EXPECT().CreateMany(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, recs []models.EncryptedRecord) (int, error) {
			persisted = recs
			return len(recs), nil
		})

	svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout, Action: "first"})
	svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout, Action: "second"})

	s.Require().ErrorIs(svc.flush(s.ctx), models.ErrPersistenceFailure)
	s.Equal(3, svc.Pending(), "both events re-queued plus one outage event")

	s.Require().Error(svc.flush(s.ctx))
	s.Equal(3, svc.Pending(), "a continuing outage is audited once")

	s.Require().NoError(svc.flush(s.ctx))
	s.Equal(0, svc.Pending())
	s.Require().Len(persisted, 3)
	s.Equal(models.CategoryLogout, persisted[0].Category)
	s.Equal(models.CategoryLogout, persisted[1].Category)
	s.Equal(models.CategorySystemConfigChange, persisted[2].Category)
}

func (s *ServiceSuite) TestShutdown_ReportsUnpersistedEvents() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().CreateMany(gomock.Any(), gomock.Any()).Return(0, errors.New("down")).AnyTimes()
	svc := s.newService(store)

	svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout})

	err := svc.Shutdown(s.ctx)
	s.Require().ErrorIs(err, models.ErrPersistenceFailure)
	s.Positive(svc.Pending())
}

func (s *ServiceSuite) TestShutdown_DrainsBuffer() {
	s.svc.Start()
	s.svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout})

	s.Require().NoError(s.svc.Shutdown(s.ctx))
	s.Equal(0, s.svc.Pending())
	s.Len(s.store.Records(), 1)
}

func (s *ServiceSuite) TestStart_FlushesWhenBatchIsFull() {
	svc := s.newService(s.store, WithBatchSize(2), WithFlushInterval(time.Hour))
	svc.Start()
	defer func() { _ = svc.Shutdown(s.ctx) }()

	svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout})
	svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout})

	s.Eventually(func() bool { return len(s.store.Records()) == 2 }, 2*time.Second, 10*time.Millisecond)
}

// =============================================================================
// Query
// =============================================================================

func (s *ServiceSuite) seedLogouts(users ...string) {
	for i, u := range users {
		s.svc.LogEvent(s.ctx, models.AuditEvent{
			Category:    models.CategoryLogout,
			Timestamp:   s.now.Add(time.Duration(i) * time.Minute),
			UserID:      u,
			Description: "user signed out",
		})
	}
	s.svc.Flush(s.ctx)
}

func (s *ServiceSuite) TestQueryEvents_Paginates() {
	s.seedLogouts("a", "b", "c", "d", "e")

	page, err := s.svc.QueryEvents(s.ctx, models.QueryFilter{Page: 2, Limit: 2})
	s.Require().NoError(err)
	s.Equal(5, page.TotalCount)
	s.Equal(3, page.TotalPages)
	s.Require().Len(page.Events, 2)
	s.Equal("c", page.Events[0].UserID, "newest first")
	s.Equal("b", page.Events[1].UserID)

	s.Len(s.buffered(models.CategoryAuditLogAccessed), 1, "reads are audited")
}

func (s *ServiceSuite) TestQueryEvents_ResidualFilters() {
	s.seedLogouts("a", "b", "a", "c", "a")

	page, err := s.svc.QueryEvents(s.ctx, models.QueryFilter{UserID: "a", Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, page.TotalCount)
	s.Equal(2, page.TotalPages)
	s.Len(page.Events, 2)
	for _, ev := range page.Events {
		s.Equal("a", ev.UserID)
	}

	page, err = s.svc.QueryEvents(s.ctx, models.QueryFilter{SearchQuery: "SIGNED OUT"})
	s.Require().NoError(err)
	s.Equal(5, page.TotalCount)
}

func (s *ServiceSuite) TestQueryEvents_InvalidFilter() {
	cases := map[string]models.QueryFilter{
		"negative limit":   {Limit: -1},
		"unknown sort":     {SortBy: "userId"},
		"unknown order":    {SortOrder: "sideways"},
		"inverted window":  {StartDate: s.now, EndDate: s.now.Add(-time.Hour)},
		"unknown category": {Categories: []models.Category{"NOPE"}},
		"page overflows":   {Page: math.MaxInt/50 + 2, Limit: 50},
		"huge residual":    {Page: math.MaxInt, UserID: "user-1"},
	}
	for name, f := range cases {
		s.Run(name, func() {
			_, err := s.svc.QueryEvents(s.ctx, f)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "got %v", err)
		})
	}
}

func (s *ServiceSuite) TestStoreErrors_MapToDomainCodes() {
	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"timeout", fmt.Errorf("count audit records: %w", sentinel.ErrTimeout), dErrors.CodeTimeout},
		{"unavailable", fmt.Errorf("count audit records: %w", sentinel.ErrUnavailable), dErrors.CodeUnavailable},
		{"other", errors.New("syntax error"), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			ctrl := gomock.NewController(s.T())
			store := mocks.NewMockStore(ctrl)
			store.EXPECT().Count(gomock.Any(), gomock.Any()).Return(0, tc.err)
			svc := s.newService(store)

			_, err := svc.QueryEvents(s.ctx, models.QueryFilter{})
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
			s.ErrorIs(err, tc.err)
		})
	}

	s.Run("early delete refused by the store is a conflict", func() {
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).
			Return(0, fmt.Errorf("delete expired audit records: %w", sentinel.ErrRetentionActive))
		svc := s.newService(store)

		_, err := svc.PurgeExpired(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict), "got %v", err)
		s.Zero(svc.Pending(), "a refused purge is not recorded as applied")
	})
}

func (s *ServiceSuite) TestQueryEvents_ClampsLimit() {
	page, err := s.svc.QueryEvents(s.ctx, models.QueryFilter{Limit: 5000})
	s.Require().NoError(err)
	s.Equal(models.MaxPageLimit, page.Limit)
	s.Equal(1, page.Page)
}

func (s *ServiceSuite) TestQueryEvents_TamperedRecordRaisesIncident() {
	s.seedLogouts("a")
	rec := s.store.Records()[0]
	rec.Ciphertext[0] ^= 0xFF
	s.Require().True(s.store.Replace(rec))

	_, err := s.svc.QueryEvents(s.ctx, models.QueryFilter{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.NotContains(err.Error(), "user signed out")

	incidents := s.buffered(models.CategorySecurityIncident)
	s.Require().Len(incidents, 1)
	s.Equal(models.RiskHigh, incidents[0].RiskLevel)
	s.Equal("audit_record_tamper", incidents[0].Details.Security.ThreatType)
}

// =============================================================================
// Reports and statistics
// =============================================================================
// Justification: findings decide HIPAA compliance, so each rule is pinned to
// the exact threshold behaviour.

func (s *ServiceSuite) window() (time.Time, time.Time) {
	return s.now.Add(-time.Hour), s.now.Add(time.Hour)
}

func (s *ServiceSuite) TestGenerateComplianceReport_ExcessiveFailedLogins() {
	for range 15 {
		s.loginFailure("clin-1")
	}
	s.svc.Flush(s.ctx)

	start, end := s.window()
	report, err := s.svc.GenerateComplianceReport(s.ctx, ReportRequest{StartDate: start, EndDate: end, GeneratedBy: "officer-1"})
	s.Require().NoError(err)

	s.Equal(15, report.EventsAnalyzed)
	s.Equal(15, report.Statistics.Compliance.FailedLoginCount)
	s.Require().Len(report.Findings, 1)
	s.Equal(RuleExcessiveFailedLogins, report.Findings[0].Rule)
	s.Equal(models.RiskHigh, report.Findings[0].Severity)
	s.True(report.HIPAACompliant)
	s.Equal(models.ReportTypeHIPAA, report.ReportType)
	s.True(s.signer.VerifyReport(report))

	generated := s.buffered(models.CategoryComplianceReportGenerated)
	s.Require().Len(generated, 1)
	s.Equal(models.RiskMedium, generated[0].RiskLevel)
}

func (s *ServiceSuite) TestGenerateComplianceReport_ThresholdIsExclusive() {
	for range 10 {
		s.loginFailure("clin-1")
	}
	s.svc.Flush(s.ctx)

	start, end := s.window()
	report, err := s.svc.GenerateComplianceReport(s.ctx, ReportRequest{StartDate: start, EndDate: end, GeneratedBy: "officer-1"})
	s.Require().NoError(err)
	s.Empty(report.Findings)
	s.True(report.HIPAACompliant)
}

func (s *ServiceSuite) TestGenerateComplianceReport_ZeroThresholdDisablesFailedLoginRule() {
	s.svc = s.newService(s.store, WithThresholds(Thresholds{}))
	for range 3 {
		s.loginFailure("clin-1")
	}
	s.svc.Flush(s.ctx)

	start, end := s.window()
	report, err := s.svc.GenerateComplianceReport(s.ctx, ReportRequest{StartDate: start, EndDate: end, GeneratedBy: "officer-1"})
	s.Require().NoError(err)
	s.Equal(3, report.Statistics.Compliance.FailedLoginCount)
	s.Empty(report.Findings)
}

func (s *ServiceSuite) TestGenerateComplianceReport_BreachAndUnjustifiedAccess() {
	s.phiAccess("clin-1", "")
	s.phiAccess("clin-2", "crisis follow-up")
	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{
		Category:    models.CategoryDataBreachDetected,
		ThreatLevel: models.RiskCritical,
	})
	s.svc.Flush(s.ctx)

	start, end := s.window()
	report, err := s.svc.GenerateComplianceReport(s.ctx, ReportRequest{StartDate: start, EndDate: end, GeneratedBy: "officer-1"})
	s.Require().NoError(err)

	s.Require().Len(report.Findings, 2)
	s.Equal(RuleDataBreach, report.Findings[0].Rule)
	s.Equal(models.RiskCritical, report.Findings[0].Severity)
	s.Equal(RuleUnjustifiedPHIAccess, report.Findings[1].Rule)
	s.Equal(1, report.Findings[1].EventCount)
	s.False(report.HIPAACompliant)

	stats := report.Statistics
	s.Equal(3, stats.TotalEvents)
	s.Equal(2, stats.Compliance.PHIAccessCount)
	s.Equal(1, stats.Compliance.BreachCount)
	s.Equal(2, stats.ByCategory[models.CategoryPHIAccess])
	s.Equal(1, stats.ByRiskLevel[models.RiskCritical])
}

func (s *ServiceSuite) TestGenerateComplianceReport_InvalidRequest() {
	start, end := s.window()
	cases := map[string]ReportRequest{
		"inverted window": {StartDate: end, EndDate: start, GeneratedBy: "officer-1"},
		"missing start":   {EndDate: end, GeneratedBy: "officer-1"},
		"missing author":  {StartDate: start, EndDate: end},
		"unknown type":    {StartDate: start, EndDate: end, GeneratedBy: "officer-1", ReportType: "QUARTERLY"},
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := s.svc.GenerateComplianceReport(s.ctx, req)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "got %v", err)
		})
	}
}

func (s *ServiceSuite) TestGetStatistics_GroupsByUser() {
	s.phiAccess("clin-1", "j")
	s.phiAccess("clin-1", "j")
	s.loginFailure("clin-2")
	s.svc.Flush(s.ctx)

	start, end := s.window()
	stats, err := s.svc.GetStatistics(s.ctx, start, end)
	s.Require().NoError(err)
	s.Equal(3, stats.TotalEvents)
	s.Require().Len(stats.ByUser, 2)
	s.Equal("clin-1", stats.ByUser[0].UserID)
	s.Equal(2, stats.ByUser[0].PHIAccessCount)
	s.Equal(1, stats.ByUser[1].FailedLogins)
	s.Require().Len(stats.ByResource, 1)
	s.Equal("session_notes", stats.ByResource[0].ResourceType)
}

// =============================================================================
// Alerts
// =============================================================================

func (s *ServiceSuite) TestAlerts_FailedLoginThresholdCrossedOnce() {
	ctrl := gomock.NewController(s.T())
	notifier := mocks.NewMockNotifier(ctrl)
	s.svc = s.newService(s.store, WithNotifier(notifier), WithThresholds(Thresholds{FailedLoginsPerHour: 2}))

	var got []models.Alert
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, a models.Alert) error {
			got = append(got, a)
			return nil
		}).Times(1)

	for range 5 {
		s.loginFailure("clin-1")
	}

	s.Require().Len(got, 1)
	s.Equal(models.AlertExcessiveFailedLogins, got[0].Kind)
	s.Equal("user:clin-1", got[0].Subject)
	s.Equal(3, got[0].Count)
	s.Equal(2, got[0].Threshold)
}

func (s *ServiceSuite) TestAlerts_WindowResetsAfterAnHour() {
	ctrl := gomock.NewController(s.T())
	notifier := mocks.NewMockNotifier(ctrl)
	s.svc = s.newService(s.store, WithNotifier(notifier), WithThresholds(Thresholds{FailedLoginsPerHour: 1}))
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	s.loginFailure("clin-1")
	s.loginFailure("clin-1")
	s.now = s.now.Add(61 * time.Minute)
	s.loginFailure("clin-1")
	s.loginFailure("clin-1")
}

func (s *ServiceSuite) TestAlerts_BreachAndCritical() {
	ctrl := gomock.NewController(s.T())
	notifier := mocks.NewMockNotifier(ctrl)
	s.svc = s.newService(s.store, WithNotifier(notifier))

	var kinds []models.AlertKind
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, a models.Alert) error {
			kinds = append(kinds, a.Kind)
			return errors.New("pager unavailable")
		}).Times(2)

	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{Category: models.CategoryDataBreachDetected, ThreatLevel: models.RiskCritical})
	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{ThreatLevel: models.RiskCritical})

	s.Equal([]models.AlertKind{models.AlertDataBreach, models.AlertCriticalEvent}, kinds)
	s.Len(s.store.Records(), 2, "notification failures never block persistence")
}

func (s *ServiceSuite) TestAlerts_SuspiciousScore() {
	ctrl := gomock.NewController(s.T())
	notifier := mocks.NewMockNotifier(ctrl)
	s.svc = s.newService(s.store, WithNotifier(notifier))
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, a models.Alert) error {
			s.Equal(models.AlertSuspiciousActivity, a.Kind)
			return nil
		}).Times(1)

	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{Category: models.CategorySuspiciousActivity, ThreatLevel: models.RiskHigh, RiskScore: 40})
	s.svc.LogSecurityEvent(s.ctx, SecurityEventParams{Category: models.CategorySuspiciousActivity, ThreatLevel: models.RiskHigh, RiskScore: 80})
}

// =============================================================================
// Retention and verification
// =============================================================================

func (s *ServiceSuite) TestPurgeExpired_DeletesOnlyExpiredRecords() {
	s.svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout, Timestamp: s.now.AddDate(-8, 0, 0)})
	s.svc.LogEvent(s.ctx, models.AuditEvent{Category: models.CategoryLogout, Timestamp: s.now.AddDate(-1, 0, 0)})
	s.svc.Flush(s.ctx)

	deleted, err := s.svc.PurgeExpired(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, deleted)
	s.Len(s.store.Records(), 1)

	applied := s.buffered(models.CategoryRetentionPolicyApplied)
	s.Require().Len(applied, 1)
	s.Equal("1", applied[0].Metadata["deleted"])
}

func (s *ServiceSuite) TestVerifyIntegrity_ReportsTamperedRecords() {
	s.seedLogouts("a", "b", "c")
	rec := s.store.Records()[1]
	rec.AuthTag[0] ^= 0x01
	s.Require().True(s.store.Replace(rec))

	report, err := s.svc.VerifyIntegrity(s.ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.Equal(3, report.Checked)
	s.False(report.OK())
	s.Equal(rec.EventID, report.Failed[0])
	s.Len(s.buffered(models.CategorySecurityIncident), 1)
}

func (s *ServiceSuite) TestVerifyIntegrity_CleanLog() {
	s.seedLogouts("a", "b")

	report, err := s.svc.VerifyIntegrity(s.ctx, time.Time{}, time.Time{})
	s.Require().NoError(err)
	s.Equal(2, report.Checked)
	s.True(report.OK())
}
