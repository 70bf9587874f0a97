// Package handler exposes peer-support chat over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"haven/internal/chat/models"
	dErrors "haven/pkg/domain-errors"
	"haven/pkg/platform/httputil"
	request "haven/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const (
	// Attachments are referenced by metadata; the body only carries text.
	maxBodyBytes = 64 << 10

	defaultListLimit = 50
	maxListLimit     = 200
)

type Service interface {
	Submit(ctx context.Context, sub models.Submission) (*models.Outcome, error)
	ListMessages(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the chat routes. Rate limiting for posts happens inside the
// service so the outcome can carry the moderation verdict.
func (h *Handler) Register(r chi.Router) {
	r.Post("/chat/rooms/{roomID}/messages", h.handlePostMessage)
	r.Get("/chat/rooms/{roomID}/messages", h.handleListMessages)
}

type listResponse struct {
	RoomID   string            `json:"roomId"`
	Messages []*models.Message `json:"messages"`
}

func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var sub models.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sub); err != nil {
		h.logger.WarnContext(ctx, "invalid chat message body", "error", err, "request_id", request.GetRequestID(ctx))
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	sub.RoomID = chi.URLParam(r, "roomID")

	out, err := h.svc.Submit(ctx, sub)
	if err != nil {
		h.writeServiceError(ctx, w, "chat submit failed", err)
		return
	}

	switch out.Status {
	case models.StatusDelivered:
		httputil.WriteJSON(w, http.StatusCreated, out)
	case models.StatusRateLimited:
		w.Header().Set("Retry-After", strconv.Itoa(out.RetryAfter))
		httputil.WriteJSON(w, http.StatusTooManyRequests, out)
	default:
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, out)
	}
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 200"))
			return
		}
		limit = n
	}

	roomID := chi.URLParam(r, "roomID")
	msgs, err := h.svc.ListMessages(ctx, roomID, limit)
	if err != nil {
		h.writeServiceError(ctx, w, "chat list failed", err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{RoomID: roomID, Messages: msgs})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", request.GetRequestID(ctx))
	}
	httputil.WriteError(w, err)
}
