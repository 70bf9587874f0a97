// Package handler exposes rate limit administration to moderators.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"haven/internal/ratelimit/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
)

const maxBodyBytes = 16 << 10

type Service interface {
	Reset(ctx context.Context, scope models.Scope, identifier, action string) error
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterAdmin mounts the admin routes. Callers wrap r with role checks.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/rate-limit/reset", h.HandleReset)
}

// ResetRequest clears one counter.
type ResetRequest struct {
	Scope      models.Scope `json:"scope"`
	Identifier string       `json:"identifier"`
	Action     string       `json:"action"`
}

func (r *ResetRequest) Normalize() {
	r.Scope = models.Scope(strings.ToLower(strings.TrimSpace(string(r.Scope))))
	r.Identifier = strings.TrimSpace(r.Identifier)
	r.Action = strings.TrimSpace(r.Action)
}

// Follows validation order: Size -> Required -> Syntax.
func (r *ResetRequest) Validate() error {
	if len(r.Identifier) > 255 || len(r.Action) > 64 {
		return dErrors.New(dErrors.CodeInvalidInput, "identifier or action too long")
	}
	if r.Identifier == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "identifier is required")
	}
	if r.Action == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "action is required")
	}
	if !r.Scope.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "scope must be 'user' or 'ip'")
	}
	return nil
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.svc.Reset(r.Context(), req.Scope, req.Identifier, req.Action); err != nil {
		h.logger.ErrorContext(r.Context(), "rate limit reset failed", "error", err, "action", req.Action)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "rate limit reset",
		"scope", req.Scope,
		"action", req.Action,
		"log_type", "audit",
	)
	w.WriteHeader(http.StatusNoContent)
}
