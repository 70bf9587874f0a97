// Package ports defines the collaborators of the rate limit service.
package ports

import (
	"context"
	"time"

	auditmodels "haven/internal/audit/models"
	"haven/internal/ratelimit/models"
)

// Auditor records rate limit decisions in the audit log.
type Auditor interface {
	LogEvent(ctx context.Context, e auditmodels.AuditEvent)
}

// WindowStore manages fixed-window counters.
type WindowStore interface {
	// Hit counts one request against key and reports whether it is allowed.
	// A window whose reset time has passed restarts at one.
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.Window, bool, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error
}

// Sweeper is implemented by stores that must evict expired windows themselves.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}
