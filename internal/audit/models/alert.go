package models

import (
	"time"

	id "haven/pkg/domain"
)

type AlertKind string

const (
	AlertCriticalEvent         AlertKind = "CRITICAL_EVENT"
	AlertDataBreach            AlertKind = "DATA_BREACH"
	AlertExcessiveFailedLogins AlertKind = "EXCESSIVE_FAILED_LOGINS"
	AlertExcessivePHIAccess    AlertKind = "EXCESSIVE_PHI_ACCESS"
	AlertSuspiciousActivity    AlertKind = "SUSPICIOUS_ACTIVITY"
)

// Alert is the payload handed to the notification collaborator. It carries
// identifiers only, never PHI.
type Alert struct {
	AlertID   id.AlertID `json:"alertId"`
	Kind      AlertKind  `json:"kind"`
	Severity  RiskLevel  `json:"severity"`
	Title     string     `json:"title"`
	EventID   id.EventID `json:"eventId"`
	Category  Category   `json:"category"`
	Subject   string     `json:"subject,omitempty"`
	Count     int        `json:"count,omitempty"`
	Threshold int        `json:"threshold,omitempty"`
	RaisedAt  time.Time  `json:"raisedAt"`
}
