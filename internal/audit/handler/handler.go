// Package handler exposes the audit query surface over HTTP. Authentication
// and role checks are applied by the router that mounts it.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"haven/internal/audit/models"
	"haven/internal/audit/service"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
	request "haven/pkg/platform/middleware/request"
	strutil "haven/pkg/platform/strings"
	"haven/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the read side of the audit log.
type Service interface {
	QueryEvents(ctx context.Context, f models.QueryFilter) (*models.EventPage, error)
	GetStatistics(ctx context.Context, start, end time.Time) (*models.AuditStatistics, error)
	GenerateComplianceReport(ctx context.Context, req service.ReportRequest) (*models.ComplianceReport, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	h.RegisterQueries(r)
	h.RegisterReports(r)
}

// RegisterQueries mounts the read endpoints.
func (h *Handler) RegisterQueries(r chi.Router) {
	r.Get("/audit/events", h.handleQueryEvents)
	r.Get("/audit/statistics", h.handleStatistics)
}

// RegisterReports mounts report generation, which is rate limited separately.
func (h *Handler) RegisterReports(r chi.Router) {
	r.Post("/audit/reports", h.handleGenerateReport)
}

type reportRequest struct {
	StartDate  time.Time         `json:"startDate"`
	EndDate    time.Time         `json:"endDate"`
	ReportType models.ReportType `json:"reportType"`
}

func (h *Handler) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseQueryFilter(r.URL.Query())
	if err != nil {
		h.logger.WarnContext(ctx, "invalid audit query", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, err)
		return
	}

	page, err := h.svc.QueryEvents(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "audit query failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	start, err := parseTime(q, "startDate")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	end, err := parseTime(q, "endDate")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stats, err := h.svc.GetStatistics(ctx, start, end)
	if err != nil {
		h.writeServiceError(ctx, w, "audit statistics failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid report request", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	report, err := h.svc.GenerateComplianceReport(ctx, service.ReportRequest{
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		GeneratedBy: requestcontext.UserID(ctx),
		ReportType:  req.ReportType,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "compliance report failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, report)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
	}
	httputil.WriteError(w, err)
}

func parseQueryFilter(q url.Values) (models.QueryFilter, error) {
	var (
		f   models.QueryFilter
		err error
	)
	if f.StartDate, err = parseTime(q, "startDate"); err != nil {
		return f, err
	}
	if f.EndDate, err = parseTime(q, "endDate"); err != nil {
		return f, err
	}
	if f.Page, err = parseInt(q, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = parseInt(q, "limit"); err != nil {
		return f, err
	}
	f.Categories = parseList[models.Category](q, "categories")
	f.Outcomes = parseList[models.Outcome](q, "outcomes")
	f.RiskLevels = parseList[models.RiskLevel](q, "riskLevels")
	f.UserID = q.Get("userId")
	f.UserEmail = q.Get("userEmail")
	f.SourceIP = q.Get("sourceIp")
	f.ResourceType = q.Get("resourceType")
	f.ResourceID = q.Get("resourceId")
	f.SearchQuery = q.Get("searchQuery")
	f.SortBy = models.SortField(q.Get("sortBy"))
	f.SortOrder = models.SortOrder(strings.ToLower(q.Get("sortOrder")))
	return f, nil
}

func parseTime(q url.Values, key string) (time.Time, error) {
	v := q.Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, key+" must be an RFC 3339 timestamp")
	}
	return t, nil
}

func parseInt(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, key+" must be an integer")
	}
	return n, nil
}

// parseList accepts both repeated keys and comma-separated values.
func parseList[T ~string](q url.Values, key string) []T {
	var out []T
	for _, part := range strutil.SplitList(q[key]...) {
		out = append(out, T(part))
	}
	return out
}
