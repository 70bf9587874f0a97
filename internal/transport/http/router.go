// Package httptransport assembles the public HTTP surface from the module handlers.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "haven/internal/audit/handler"
	chathandler "haven/internal/chat/handler"
	"haven/internal/platform/metrics"
	ratelimitconfig "haven/internal/ratelimit/config"
	ratelimithandler "haven/internal/ratelimit/handler"
	ratelimitmw "haven/internal/ratelimit/middleware"
	"haven/pkg/platform/httputil"
	"haven/pkg/platform/middleware/auth"
	"haven/pkg/platform/middleware/metadata"
	request "haven/pkg/platform/middleware/request"
	"haven/pkg/platform/middleware/requesttime"
)

// Roles recognised by the router.
const (
	RoleMember            = "member"
	RoleModerator         = "moderator"
	RoleComplianceOfficer = "compliance_officer"
	RoleAdmin             = "admin"
)

// Deps are the handlers and cross-cutting collaborators behind the router.
type Deps struct {
	Logger    *slog.Logger
	Identity  auth.Validator
	Metrics   *metrics.Metrics
	RateLimit *ratelimitmw.Middleware

	Audit          *audithandler.Handler
	Chat           *chathandler.Handler
	RateLimitAdmin *ratelimithandler.Handler

	// Ready reports dependency health for /readyz. Nil means always ready.
	Ready func(r *http.Request) error
}

// NewRouter wires every route. Audit endpoints are restricted to compliance
// officers and admins; rate limit administration to moderators and admins.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(logger))
	r.Use(d.Metrics.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(req); err != nil {
				logger.WarnContext(req.Context(), "readiness check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireIdentity(d.Identity, logger))

		if d.Chat != nil {
			d.Chat.Register(r)
		}

		if d.Audit != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(logger, RoleComplianceOfficer, RoleAdmin))
				r.Group(func(r chi.Router) {
					r.Use(d.RateLimit.RateLimit(ratelimitconfig.ActionAuditQuery))
					d.Audit.RegisterQueries(r)
				})
				r.Group(func(r chi.Router) {
					r.Use(d.RateLimit.RateLimit(ratelimitconfig.ActionAuditReport))
					d.Audit.RegisterReports(r)
				})
			})
		}

		if d.RateLimitAdmin != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(logger, RoleModerator, RoleAdmin))
				d.RateLimitAdmin.RegisterAdmin(r)
			})
		}
	})

	return r
}
