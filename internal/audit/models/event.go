// Package models defines the audit event, its category-specific variants and the
// derived query, statistics and report types.
package models

import (
	"maps"
	"slices"
	"time"

	id "haven/pkg/domain"
)

// Geolocation is an optional coarse location resolved from the source IP.
type Geolocation struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// AuditEvent is the unit of the append-only audit log.
//
// Actor fields are empty for system-originated events. ResourceOwner is the
// patient or client whose data was touched, distinct from UserID, the accessor.
type AuditEvent struct {
	EventID   id.EventID `json:"eventId"`
	Timestamp time.Time  `json:"timestamp"`

	Category    Category  `json:"category"`
	Outcome     Outcome   `json:"outcome"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Action      string    `json:"action,omitempty"`
	Description string    `json:"description,omitempty"`

	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	UserRole  string `json:"userRole,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	SourceIP    string       `json:"sourceIp,omitempty"`
	UserAgent   string       `json:"userAgent,omitempty"`
	DeviceID    string       `json:"deviceId,omitempty"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`

	ResourceType    string          `json:"resourceType,omitempty"`
	ResourceID      string          `json:"resourceId,omitempty"`
	ResourceOwner   string          `json:"resourceOwner,omitempty"`
	DataSensitivity DataSensitivity `json:"dataSensitivity,omitempty"`

	RequestID      string `json:"requestId,omitempty"`
	APIEndpoint    string `json:"apiEndpoint,omitempty"`
	HTTPMethod     string `json:"httpMethod,omitempty"`
	HTTPStatusCode int    `json:"httpStatusCode,omitempty"`
	// ResponseTime is in milliseconds.
	ResponseTime int64 `json:"responseTime,omitempty"`

	RequiresNotification bool `json:"requiresNotification,omitempty"`
	// RetentionPeriod is in days.
	RetentionPeriod int `json:"retentionPeriod"`

	Details  *Details          `json:"details,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	Checksum         string `json:"checksum,omitempty"`
	DigitalSignature string `json:"digitalSignature,omitempty"`
}

// RetainUntil is the earliest instant the event may be deleted.
func (e *AuditEvent) RetainUntil() time.Time {
	return e.Timestamp.AddDate(0, 0, e.RetentionPeriod)
}

// Clone returns a deep copy so callers can mutate without touching buffered events.
func (e AuditEvent) Clone() AuditEvent {
	out := e
	if e.Geolocation != nil {
		g := *e.Geolocation
		out.Geolocation = &g
	}
	if e.Metadata != nil {
		out.Metadata = maps.Clone(e.Metadata)
	}
	if e.Details != nil {
		d := Details{}
		if p := e.Details.PHI; p != nil {
			cp := *p
			cp.PHIFields = slices.Clone(p.PHIFields)
			d.PHI = &cp
		}
		if a := e.Details.Authentication; a != nil {
			cp := *a
			d.Authentication = &cp
		}
		if a := e.Details.Administrative; a != nil {
			cp := *a
			cp.ChangedFields = slices.Clone(a.ChangedFields)
			cp.PreviousValues = maps.Clone(a.PreviousValues)
			cp.NewValues = maps.Clone(a.NewValues)
			d.Administrative = &cp
		}
		if s := e.Details.Security; s != nil {
			cp := *s
			cp.IndicatorsOfCompromise = slices.Clone(s.IndicatorsOfCompromise)
			cp.MitigationActions = slices.Clone(s.MitigationActions)
			d.Security = &cp
		}
		out.Details = &d
	}
	return out
}
