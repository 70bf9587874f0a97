package models

// DetailKind tags which category-specific variant an event carries.
type DetailKind string

const (
	KindBase           DetailKind = "base"
	KindPHIAccess      DetailKind = "phi_access"
	KindAuthentication DetailKind = "authentication"
	KindAdministrative DetailKind = "administrative"
	KindSecurity       DetailKind = "security"
	// KindAmbiguous means more than one variant is populated, which is never valid.
	KindAmbiguous DetailKind = "ambiguous"
)

// Details holds at most one category-specific variant.
type Details struct {
	PHI            *PHIAccessDetails      `json:"phi,omitempty"`
	Authentication *AuthenticationDetails `json:"authentication,omitempty"`
	Administrative *AdministrativeDetails `json:"administrative,omitempty"`
	Security       *SecurityDetails       `json:"security,omitempty"`
}

// Kind returns the populated variant. A nil receiver is the base schema.
func (d *Details) Kind() DetailKind {
	if d == nil {
		return KindBase
	}
	kind := KindBase
	set := 0
	if d.PHI != nil {
		kind, set = KindPHIAccess, set+1
	}
	if d.Authentication != nil {
		kind, set = KindAuthentication, set+1
	}
	if d.Administrative != nil {
		kind, set = KindAdministrative, set+1
	}
	if d.Security != nil {
		kind, set = KindSecurity, set+1
	}
	if set > 1 {
		return KindAmbiguous
	}
	return kind
}

type PHIAccessDetails struct {
	PHIFields           []string      `json:"phiFields"`
	AccessPurpose       AccessPurpose `json:"accessPurpose"`
	AccessJustification string        `json:"accessJustification,omitempty"`
	PatientConsent      bool          `json:"patientConsent,omitempty"`
	EmergencyAccess     bool          `json:"emergencyAccess,omitempty"`
}

type AuthenticationDetails struct {
	AuthenticationMethod AuthenticationMethod `json:"authenticationMethod"`
	MFAMethod            MFAMethod            `json:"mfaMethod,omitempty"`
	FailureReason        string               `json:"failureReason,omitempty"`
	AttemptCount         int                  `json:"attemptCount,omitempty"`
}

type AdministrativeDetails struct {
	ChangedFields  []string          `json:"changedFields"`
	PreviousValues map[string]string `json:"previousValues,omitempty"`
	NewValues      map[string]string `json:"newValues,omitempty"`
	ChangeReason   string            `json:"changeReason,omitempty"`
	TargetUserID   string            `json:"targetUserId,omitempty"`
}

type SecurityDetails struct {
	ThreatLevel            ThreatLevel         `json:"threatLevel"`
	InvestigationStatus    InvestigationStatus `json:"investigationStatus"`
	ThreatType             string              `json:"threatType,omitempty"`
	IndicatorsOfCompromise []string            `json:"indicatorsOfCompromise,omitempty"`
	MitigationActions      []string            `json:"mitigationActions,omitempty"`
	AffectedRecords        int                 `json:"affectedRecords,omitempty"`
	// RiskScore is a 0-100 suspicion score supplied by the detector that raised the event.
	RiskScore int `json:"riskScore,omitempty"`
}

// allowedKinds maps each group to the detail variants it may carry.
var allowedKinds = map[Group][]DetailKind{
	GroupPHI:            {KindPHIAccess},
	GroupAuthentication: {KindAuthentication},
	GroupSession:        {KindAuthentication},
	GroupAuthorization:  {KindAdministrative},
	GroupAdministrative: {KindAdministrative},
	GroupSecurity:       {KindSecurity},
}

// AllowsDetails reports whether category c may carry the given variant.
// The base schema is always allowed except where RequiresDetails says otherwise.
func (c Category) AllowsDetails(kind DetailKind) bool {
	if kind == KindBase {
		return true
	}
	for _, k := range allowedKinds[c.Group()] {
		if k == kind {
			return true
		}
	}
	return false
}

// RequiredDetails returns the variant a category must carry, or KindBase if none.
func (c Category) RequiredDetails() DetailKind {
	if c.Group() == GroupPHI {
		return KindPHIAccess
	}
	return KindBase
}
