// Package ports defines the boundaries of the audit module: where encrypted
// records are persisted and where alerts are delivered.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Store,Notifier

import (
	"context"
	"time"

	"haven/internal/audit/models"
)

// Store persists encrypted audit records. Implementations are append-only:
// there is no update, and deletion is limited to records past retention.
type Store interface {
	// CreateMany inserts records, silently skipping event IDs that already exist.
	// It returns the number actually inserted.
	CreateMany(ctx context.Context, records []models.EncryptedRecord) (int, error)

	// Count returns how many records match the index filters. Skip and Take are ignored.
	Count(ctx context.Context, q models.RecordQuery) (int, error)

	// FindMany returns matching records in the requested order and page.
	FindMany(ctx context.Context, q models.RecordQuery) ([]models.EncryptedRecord, error)

	// DeleteExpired removes records whose retention ended before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Notifier delivers alerts for high-risk events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}
