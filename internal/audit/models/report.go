package models

import (
	"time"

	id "haven/pkg/domain"
)

type ReportType string

const (
	ReportTypeHIPAA    ReportType = "HIPAA_AUDIT"
	ReportTypeAccess   ReportType = "ACCESS_REVIEW"
	ReportTypeSecurity ReportType = "SECURITY_SUMMARY"
)

func (t ReportType) IsValid() bool {
	switch t {
	case ReportTypeHIPAA, ReportTypeAccess, ReportTypeSecurity:
		return true
	}
	return false
}

type UserActivity struct {
	UserID         string `json:"userId"`
	UserEmail      string `json:"userEmail,omitempty"`
	EventCount     int    `json:"eventCount"`
	PHIAccessCount int    `json:"phiAccessCount"`
	FailedLogins   int    `json:"failedLogins"`
}

type ResourceActivity struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId,omitempty"`
	AccessCount  int    `json:"accessCount"`
}

type ComplianceMetrics struct {
	PHIAccessCount            int `json:"phiAccessCount"`
	FailedLoginCount          int `json:"failedLoginCount"`
	SecurityIncidentCount     int `json:"securityIncidentCount"`
	BreachCount               int `json:"breachCount"`
	UnjustifiedPHIAccessCount int `json:"unjustifiedPhiAccessCount"`
	CriticalEventCount        int `json:"criticalEventCount"`
}

type AuditStatistics struct {
	TotalEvents int                `json:"totalEvents"`
	ByCategory  map[Category]int   `json:"byCategory"`
	ByOutcome   map[Outcome]int    `json:"byOutcome"`
	ByRiskLevel map[RiskLevel]int  `json:"byRiskLevel"`
	ByUser      []UserActivity     `json:"byUser"`
	ByResource  []ResourceActivity `json:"byResource"`
	Compliance  ComplianceMetrics  `json:"compliance"`
}

type Finding struct {
	Rule           string    `json:"rule"`
	Severity       RiskLevel `json:"severity"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation"`
	EventCount     int       `json:"eventCount"`
}

// ComplianceReport is derived on demand and never stored as a primary entity.
type ComplianceReport struct {
	ReportID       id.ReportID     `json:"reportId"`
	ReportType     ReportType      `json:"reportType"`
	GeneratedAt    time.Time       `json:"generatedAt"`
	GeneratedBy    string          `json:"generatedBy"`
	PeriodStart    time.Time       `json:"periodStart"`
	PeriodEnd      time.Time       `json:"periodEnd"`
	EventsAnalyzed int             `json:"eventsAnalyzed"`
	Truncated      bool            `json:"truncated,omitempty"`
	Statistics     AuditStatistics `json:"statistics"`
	Findings       []Finding       `json:"findings"`
	HIPAACompliant bool            `json:"hipaaCompliant"`
	Signature      string          `json:"signature,omitempty"`
}

// HasCriticalFinding reports whether any finding is CRITICAL.
func (r *ComplianceReport) HasCriticalFinding() bool {
	for _, f := range r.Findings {
		if f.Severity == RiskCritical {
			return true
		}
	}
	return false
}
