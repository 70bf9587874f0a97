package models

import (
	"slices"
	"time"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 1000
	// MaxScanEvents bounds report windows and post-decryption filtering.
	MaxScanEvents = 10000
)

type SortField string

const (
	SortByTimestamp SortField = "timestamp"
	SortByCategory  SortField = "category"
	SortByRiskLevel SortField = "riskLevel"
	SortByOutcome   SortField = "outcome"
)

func (f SortField) IsValid() bool {
	switch f {
	case SortByTimestamp, SortByCategory, SortByRiskLevel, SortByOutcome:
		return true
	}
	return false
}

type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// QueryFilter is the caller-facing query over decrypted events.
// Zero times leave that side of the window open.
type QueryFilter struct {
	StartDate  time.Time
	EndDate    time.Time
	Categories []Category
	Outcomes   []Outcome
	RiskLevels []RiskLevel

	UserID       string
	UserEmail    string
	SourceIP     string
	ResourceType string
	ResourceID   string
	// SearchQuery matches description, action and email, case-insensitively.
	SearchQuery string

	Page      int
	Limit     int
	SortBy    SortField
	SortOrder SortOrder
}

// HasResidualFilters reports whether the filter needs fields that only exist
// inside the ciphertext.
func (f QueryFilter) HasResidualFilters() bool {
	return f.UserID != "" || f.UserEmail != "" || f.SourceIP != "" ||
		f.ResourceType != "" || f.ResourceID != "" || f.SearchQuery != ""
}

// RecordQuery is the store-facing query over plaintext index columns.
type RecordQuery struct {
	Start      time.Time
	End        time.Time
	Categories []Category
	Outcomes   []Outcome
	RiskLevels []RiskLevel

	SortBy    SortField
	SortOrder SortOrder
	Skip      int
	// Take of zero means no limit.
	Take int
}

type EventPage struct {
	Events     []AuditEvent `json:"events"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"totalPages"`
}

// Matches reports whether a record satisfies the index filters. Window bounds
// are inclusive.
func (q RecordQuery) Matches(r EncryptedRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if len(q.Categories) > 0 && !slices.Contains(q.Categories, r.Category) {
		return false
	}
	if len(q.Outcomes) > 0 && !slices.Contains(q.Outcomes, r.Outcome) {
		return false
	}
	if len(q.RiskLevels) > 0 && !slices.Contains(q.RiskLevels, r.RiskLevel) {
		return false
	}
	return true
}
