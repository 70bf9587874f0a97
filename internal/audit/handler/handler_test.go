package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"haven/internal/audit/handler/mocks"
	"haven/internal/audit/models"
	"haven/internal/audit/service"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/testutil"
)

type AuditHandlerSuite struct {
	suite.Suite
	svc    *mocks.MockService
	router chi.Router
}

func TestAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuditHandlerSuite))
}

func (s *AuditHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.svc = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *AuditHandlerSuite) TestQueryEvents_ParsesFilter() {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	s.svc.EXPECT().QueryEvents(gomock.Any(), models.QueryFilter{
		StartDate:   start,
		Categories:  []models.Category{models.CategoryPHIAccess, models.CategoryLoginFailure, models.CategoryLogout},
		RiskLevels:  []models.RiskLevel{models.RiskHigh},
		UserID:      "clin-1",
		SearchQuery: "notes",
		Page:        2,
		Limit:       25,
		SortBy:      models.SortByRiskLevel,
		SortOrder:   models.SortAsc,
	}).Return(&models.EventPage{TotalCount: 30, Page: 2, Limit: 25, TotalPages: 2}, nil)

	req := testutil.NewRequest(s.T(), http.MethodGet,
		"/audit/events?startDate=2025-05-01T00:00:00Z&categories=PHI_ACCESS,LOGIN_FAILURE&categories=LOGOUT"+
			"&riskLevels=HIGH&userId=clin-1&searchQuery=notes&page=2&limit=25&sortBy=riskLevel&sortOrder=ASC")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusOK(s.T(), rr)
	page := testutil.UnmarshalResponse[models.EventPage](s.T(), rr)
	s.Equal(30, page.TotalCount)
}

func (s *AuditHandlerSuite) TestQueryEvents_BadParameters() {
	for _, path := range []string{
		"/audit/events?startDate=yesterday",
		"/audit/events?page=two",
	} {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	}
}

func (s *AuditHandlerSuite) TestQueryEvents_InternalErrorHidesDetail() {
	s.svc.EXPECT().QueryEvents(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.Wrap(errors.New("record 42 failed authentication"), dErrors.CodeInternal, "failed to query audit events"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit/events"))

	testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
	s.NotContains(rr.Body.String(), "record 42")
}

func (s *AuditHandlerSuite) TestStatistics() {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.svc.EXPECT().GetStatistics(gomock.Any(), start, end).Return(&models.AuditStatistics{TotalEvents: 7}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet,
		"/audit/statistics?startDate=2025-05-01T00:00:00Z&endDate=2025-06-01T00:00:00Z"))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "totalEvents", float64(7))
}

func (s *AuditHandlerSuite) TestGenerateReport_UsesActorAsAuthor() {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.svc.EXPECT().GenerateComplianceReport(gomock.Any(), service.ReportRequest{
		StartDate:   start,
		EndDate:     end,
		GeneratedBy: "officer-1",
		ReportType:  models.ReportTypeHIPAA,
	}).Return(&models.ComplianceReport{HIPAACompliant: true, Signature: "sig"}, nil)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/reports", map[string]any{
		"startDate":  start,
		"endDate":    end,
		"reportType": "HIPAA_AUDIT",
	})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, "officer-1", "compliance_officer"))

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	report := testutil.UnmarshalResponse[models.ComplianceReport](s.T(), rr)
	s.True(report.HIPAACompliant)
	s.Equal("sig", report.Signature)
}

func (s *AuditHandlerSuite) TestGenerateReport_InvalidInput() {
	s.svc.EXPECT().GenerateComplianceReport(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInvalidInput, "startDate must be before endDate"))

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/audit/reports", map[string]any{
		"startDate": "2025-06-01T00:00:00Z",
		"endDate":   "2025-05-01T00:00:00Z",
	})
	rr := testutil.DoRequest(s.router, testutil.WithActor(req, "officer-1", "compliance_officer"))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
}

func (s *AuditHandlerSuite) TestGenerateReport_MalformedBody() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/audit/reports", "{not json")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}
