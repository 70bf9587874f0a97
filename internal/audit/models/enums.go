package models

type Outcome string

const (
	OutcomeSuccess        Outcome = "SUCCESS"
	OutcomeFailure        Outcome = "FAILURE"
	OutcomePartialSuccess Outcome = "PARTIAL_SUCCESS"
	OutcomeUnknown        Outcome = "UNKNOWN"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomePartialSuccess, OutcomeUnknown:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

func (r RiskLevel) IsValid() bool {
	return r.Rank() > 0
}

// Rank orders risk levels from 1 (LOW) to 4 (CRITICAL); 0 for unknown values.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// RequiresSignature reports whether events at this level must carry a digital signature.
func (r RiskLevel) RequiresSignature() bool {
	return r == RiskHigh || r == RiskCritical
}

type DataSensitivity string

const (
	SensitivityPublic       DataSensitivity = "PUBLIC"
	SensitivityInternal     DataSensitivity = "INTERNAL"
	SensitivityConfidential DataSensitivity = "CONFIDENTIAL"
	SensitivityRestricted   DataSensitivity = "RESTRICTED"
)

func (s DataSensitivity) IsValid() bool {
	switch s {
	case SensitivityPublic, SensitivityInternal, SensitivityConfidential, SensitivityRestricted:
		return true
	}
	return false
}

type AccessPurpose string

const (
	PurposeTreatment            AccessPurpose = "TREATMENT"
	PurposePayment              AccessPurpose = "PAYMENT"
	PurposeHealthcareOperations AccessPurpose = "HEALTHCARE_OPERATIONS"
	PurposeResearch             AccessPurpose = "RESEARCH"
	PurposeOther                AccessPurpose = "OTHER"
)

func (p AccessPurpose) IsValid() bool {
	switch p {
	case PurposeTreatment, PurposePayment, PurposeHealthcareOperations, PurposeResearch, PurposeOther:
		return true
	}
	return false
}

type AuthenticationMethod string

const (
	AuthMethodPassword  AuthenticationMethod = "PASSWORD"
	AuthMethodMFA       AuthenticationMethod = "MFA"
	AuthMethodSSO       AuthenticationMethod = "SSO"
	AuthMethodAPIKey    AuthenticationMethod = "API_KEY"
	AuthMethodBiometric AuthenticationMethod = "BIOMETRIC"
)

func (m AuthenticationMethod) IsValid() bool {
	switch m {
	case AuthMethodPassword, AuthMethodMFA, AuthMethodSSO, AuthMethodAPIKey, AuthMethodBiometric:
		return true
	}
	return false
}

type MFAMethod string

const (
	MFATOTP     MFAMethod = "TOTP"
	MFASMS      MFAMethod = "SMS"
	MFAEmail    MFAMethod = "EMAIL"
	MFAWebAuthn MFAMethod = "WEBAUTHN"
	MFABackup   MFAMethod = "BACKUP_CODE"
)

func (m MFAMethod) IsValid() bool {
	switch m {
	case MFATOTP, MFASMS, MFAEmail, MFAWebAuthn, MFABackup:
		return true
	}
	return false
}

// ThreatLevel grades a security finding. It shares RiskLevel's vocabulary.
type ThreatLevel = RiskLevel

type InvestigationStatus string

const (
	InvestigationOpen       InvestigationStatus = "OPEN"
	InvestigationInProgress InvestigationStatus = "IN_PROGRESS"
	InvestigationResolved   InvestigationStatus = "RESOLVED"
	InvestigationClosed     InvestigationStatus = "CLOSED"
)

func (s InvestigationStatus) IsValid() bool {
	switch s {
	case InvestigationOpen, InvestigationInProgress, InvestigationResolved, InvestigationClosed:
		return true
	}
	return false
}
