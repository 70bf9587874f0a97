// Package ports defines the collaborators of the chat pipeline.
package ports

import (
	"context"

	auditmodels "haven/internal/audit/models"
	"haven/internal/chat/models"
	ratelimitmodels "haven/internal/ratelimit/models"
)

// Limiter applies per-user and per-IP action limits.
type Limiter interface {
	CheckBothLimits(ctx context.Context, ip, userID, action string) (*ratelimitmodels.RateLimitResult, error)
}

// Auditor records moderation and crisis events.
type Auditor interface {
	LogEvent(ctx context.Context, e auditmodels.AuditEvent)
}

// RoomStore resolves rooms. Unknown rooms return sentinel.ErrNotFound.
type RoomStore interface {
	FindRoom(ctx context.Context, roomID string) (*models.Room, error)
}

// MessageStore keeps delivered messages.
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	ListByRoom(ctx context.Context, roomID string, limit int) ([]*models.Message, error)
}
