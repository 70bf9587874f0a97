package service

import (
	"context"
	"slices"
	"strings"

	"haven/internal/audit/models"
)

// PHIAccessParams describes one access to protected health information.
// Actor fields left empty are taken from the request context.
type PHIAccessParams struct {
	// Category defaults to PHI_ACCESS; any PHI-group category is accepted.
	Category      models.Category
	Action        string
	UserID        string
	UserEmail     string
	UserRole      string
	ResourceType  string
	ResourceID    string
	PatientID     string
	PHIFields     []string
	Purpose       models.AccessPurpose
	Justification string
	Consent       bool
	Emergency     bool
	Outcome       models.Outcome
	// RiskLevel overrides the MEDIUM default.
	RiskLevel models.RiskLevel
}

// LogPHIAccess records a PHI access. Defaults: MEDIUM risk, RESTRICTED data.
func (s *Service) LogPHIAccess(ctx context.Context, p PHIAccessParams) {
	category := p.Category
	if category == "" {
		category = models.CategoryPHIAccess
	}
	risk := p.RiskLevel
	if risk == "" {
		risk = models.RiskMedium
	}
	s.LogEvent(ctx, models.AuditEvent{
		Category:        category,
		Outcome:         p.Outcome,
		RiskLevel:       risk,
		Action:          p.Action,
		Description:     "PHI access to " + p.ResourceType,
		UserID:          p.UserID,
		UserEmail:       p.UserEmail,
		UserRole:        p.UserRole,
		ResourceType:    p.ResourceType,
		ResourceID:      p.ResourceID,
		ResourceOwner:   p.PatientID,
		DataSensitivity: models.SensitivityRestricted,
		Details: &models.Details{PHI: &models.PHIAccessDetails{
			PHIFields:           slices.Clone(p.PHIFields),
			AccessPurpose:       p.Purpose,
			AccessJustification: p.Justification,
			PatientConsent:      p.Consent,
			EmergencyAccess:     p.Emergency,
		}},
	})
}

// AuthenticationParams describes a sign-in, sign-out or credential event.
type AuthenticationParams struct {
	// Category defaults to LOGIN_SUCCESS.
	Category      models.Category
	UserID        string
	UserEmail     string
	Method        models.AuthenticationMethod
	MFAMethod     models.MFAMethod
	FailureReason string
	AttemptCount  int
	Outcome       models.Outcome
}

// LogAuthentication records an authentication event. LOGIN_FAILURE is MEDIUM
// risk with a FAILURE outcome; everything else is LOW.
func (s *Service) LogAuthentication(ctx context.Context, p AuthenticationParams) {
	category := p.Category
	if category == "" {
		category = models.CategoryLoginSuccess
	}
	risk := models.RiskLow
	outcome := p.Outcome
	if category == models.CategoryLoginFailure {
		risk = models.RiskMedium
		if outcome == "" {
			outcome = models.OutcomeFailure
		}
	}
	s.LogEvent(ctx, models.AuditEvent{
		Category:        category,
		Outcome:         outcome,
		RiskLevel:       risk,
		Action:          actionFor(category),
		UserID:          p.UserID,
		UserEmail:       p.UserEmail,
		DataSensitivity: models.SensitivityInternal,
		Details: &models.Details{Authentication: &models.AuthenticationDetails{
			AuthenticationMethod: p.Method,
			MFAMethod:            p.MFAMethod,
			FailureReason:        p.FailureReason,
			AttemptCount:         p.AttemptCount,
		}},
	})
}

// SecurityEventParams describes a detected threat or incident.
type SecurityEventParams struct {
	// Category defaults to SECURITY_INCIDENT; any security-group category is accepted.
	Category             models.Category
	Description          string
	ThreatLevel          models.ThreatLevel
	ThreatType           string
	Status               models.InvestigationStatus
	Indicators           []string
	Mitigations          []string
	AffectedRecords      int
	RiskScore            int
	ResourceType         string
	ResourceID           string
	RequiresNotification bool
}

// LogSecurityEvent records a security event: CRITICAL when the threat level is
// CRITICAL, otherwise HIGH. Data breaches always require notification.
func (s *Service) LogSecurityEvent(ctx context.Context, p SecurityEventParams) {
	category := p.Category
	if category == "" {
		category = models.CategorySecurityIncident
	}
	risk := models.RiskHigh
	if p.ThreatLevel == models.RiskCritical {
		risk = models.RiskCritical
	}
	status := p.Status
	if status == "" {
		status = models.InvestigationOpen
	}
	s.LogEvent(ctx, models.AuditEvent{
		Category:             category,
		Outcome:              models.OutcomeUnknown,
		RiskLevel:            risk,
		Action:               actionFor(category),
		Description:          p.Description,
		ResourceType:         p.ResourceType,
		ResourceID:           p.ResourceID,
		DataSensitivity:      models.SensitivityConfidential,
		RequiresNotification: p.RequiresNotification || category == models.CategoryDataBreachDetected,
		Details: &models.Details{Security: &models.SecurityDetails{
			ThreatLevel:            p.ThreatLevel,
			InvestigationStatus:    status,
			ThreatType:             p.ThreatType,
			IndicatorsOfCompromise: slices.Clone(p.Indicators),
			MitigationActions:      slices.Clone(p.Mitigations),
			AffectedRecords:        p.AffectedRecords,
			RiskScore:              p.RiskScore,
		}},
	})
}

// AdministrativeChangeParams describes a change to users, settings or policy.
type AdministrativeChangeParams struct {
	// Category defaults to SETTINGS_CHANGED.
	Category       models.Category
	Description    string
	TargetUserID   string
	ResourceType   string
	ResourceID     string
	ChangedFields  []string
	PreviousValues map[string]string
	NewValues      map[string]string
	Reason         string
}

// LogAdministrativeChange records an administrative change at MEDIUM risk.
func (s *Service) LogAdministrativeChange(ctx context.Context, p AdministrativeChangeParams) {
	category := p.Category
	if category == "" {
		category = models.CategorySettingsChanged
	}
	s.LogEvent(ctx, models.AuditEvent{
		Category:        category,
		RiskLevel:       models.RiskMedium,
		Action:          actionFor(category),
		Description:     p.Description,
		ResourceType:    p.ResourceType,
		ResourceID:      p.ResourceID,
		DataSensitivity: models.SensitivityConfidential,
		Details: &models.Details{Administrative: &models.AdministrativeDetails{
			ChangedFields:  slices.Clone(p.ChangedFields),
			PreviousValues: p.PreviousValues,
			NewValues:      p.NewValues,
			ChangeReason:   p.Reason,
			TargetUserID:   p.TargetUserID,
		}},
	})
}

func actionFor(c models.Category) string {
	return strings.ToLower(string(c))
}
