package models

// Category is the closed set of auditable actions.
type Category string

// Group is the family a category belongs to. It decides which detail variant
// an event may carry and its retention floor.
type Group string

const (
	GroupPHI            Group = "phi_access"
	GroupAuthentication Group = "authentication"
	GroupAuthorization  Group = "authorization"
	GroupAdministrative Group = "administrative"
	GroupSecurity       Group = "security"
	GroupSystem         Group = "system"
	GroupCompliance     Group = "compliance"
	GroupSession        Group = "session"
)

const (
	// PHI access
	CategoryPHIAccess Category = "PHI_ACCESS"
	CategoryPHICreate Category = "PHI_CREATE"
	CategoryPHIUpdate Category = "PHI_UPDATE"
	CategoryPHIDelete Category = "PHI_DELETE"
	CategoryPHIExport Category = "PHI_EXPORT"
	CategoryPHIPrint  Category = "PHI_PRINT"
	CategoryPHIShare  Category = "PHI_SHARE"

	// Authentication
	CategoryLoginSuccess    Category = "LOGIN_SUCCESS"
	CategoryLoginFailure    Category = "LOGIN_FAILURE"
	CategoryLogout          Category = "LOGOUT"
	CategoryPasswordChange  Category = "PASSWORD_CHANGE"
	CategoryPasswordReset   Category = "PASSWORD_RESET"
	CategoryMFAEnabled      Category = "MFA_ENABLED"
	CategoryMFADisabled     Category = "MFA_DISABLED"
	CategoryMFAChallenge    Category = "MFA_CHALLENGE"
	CategoryAccountLocked   Category = "ACCOUNT_LOCKED"
	CategoryAccountUnlocked Category = "ACCOUNT_UNLOCKED"

	// Authorization
	CategoryAccessGranted    Category = "ACCESS_GRANTED"
	CategoryAccessDenied     Category = "ACCESS_DENIED"
	CategoryPermissionChange Category = "PERMISSION_CHANGE"
	CategoryRoleAssigned     Category = "ROLE_ASSIGNED"
	CategoryRoleRevoked      Category = "ROLE_REVOKED"

	// Administrative
	CategoryUserCreated         Category = "USER_CREATED"
	CategoryUserUpdated         Category = "USER_UPDATED"
	CategoryUserDeleted         Category = "USER_DELETED"
	CategorySettingsChanged     Category = "SETTINGS_CHANGED"
	CategoryPolicyUpdated       Category = "POLICY_UPDATED"
	CategoryDataExportRequested Category = "DATA_EXPORT_REQUESTED"

	// Security
	CategorySecurityIncident      Category = "SECURITY_INCIDENT"
	CategoryDataBreachDetected    Category = "DATA_BREACH_DETECTED"
	CategoryVulnerabilityDetected Category = "VULNERABILITY_DETECTED"
	CategorySuspiciousActivity    Category = "SUSPICIOUS_ACTIVITY"
	CategoryBruteForceDetected    Category = "BRUTE_FORCE_DETECTED"
	CategoryMalwareDetected       Category = "MALWARE_DETECTED"
	CategoryIntrusionAttempt      Category = "INTRUSION_ATTEMPT"

	// System
	CategorySystemStartup      Category = "SYSTEM_STARTUP"
	CategorySystemShutdown     Category = "SYSTEM_SHUTDOWN"
	CategorySystemConfigChange Category = "SYSTEM_CONFIGURATION_CHANGE"
	CategoryBackupCreated      Category = "BACKUP_CREATED"
	CategoryBackupRestored     Category = "BACKUP_RESTORED"

	// Compliance
	CategoryConsentGiven              Category = "CONSENT_GIVEN"
	CategoryConsentWithdrawn          Category = "CONSENT_WITHDRAWN"
	CategoryAuditLogAccessed          Category = "AUDIT_LOG_ACCESSED"
	CategoryComplianceReportGenerated Category = "COMPLIANCE_REPORT_GENERATED"
	CategoryRetentionPolicyApplied    Category = "RETENTION_POLICY_APPLIED"
	CategoryBreachNotificationSent    Category = "BREACH_NOTIFICATION_SENT"
	CategoryCrisisAlertTriggered      Category = "CRISIS_ALERT_TRIGGERED"
	CategoryContentModerated          Category = "CONTENT_MODERATED"

	// Session
	CategorySessionCreated            Category = "SESSION_CREATED"
	CategorySessionExpired            Category = "SESSION_EXPIRED"
	CategorySessionTerminated         Category = "SESSION_TERMINATED"
	CategorySessionTimeout            Category = "SESSION_TIMEOUT"
	CategoryConcurrentSessionDetected Category = "CONCURRENT_SESSION_DETECTED"
)

var categoryGroups = map[Category]Group{
	CategoryPHIAccess: GroupPHI,
	CategoryPHICreate: GroupPHI,
	CategoryPHIUpdate: GroupPHI,
	CategoryPHIDelete: GroupPHI,
	CategoryPHIExport: GroupPHI,
	CategoryPHIPrint:  GroupPHI,
	CategoryPHIShare:  GroupPHI,

	CategoryLoginSuccess:    GroupAuthentication,
	CategoryLoginFailure:    GroupAuthentication,
	CategoryLogout:          GroupAuthentication,
	CategoryPasswordChange:  GroupAuthentication,
	CategoryPasswordReset:   GroupAuthentication,
	CategoryMFAEnabled:      GroupAuthentication,
	CategoryMFADisabled:     GroupAuthentication,
	CategoryMFAChallenge:    GroupAuthentication,
	CategoryAccountLocked:   GroupAuthentication,
	CategoryAccountUnlocked: GroupAuthentication,

	CategoryAccessGranted:    GroupAuthorization,
	CategoryAccessDenied:     GroupAuthorization,
	CategoryPermissionChange: GroupAuthorization,
	CategoryRoleAssigned:     GroupAuthorization,
	CategoryRoleRevoked:      GroupAuthorization,

	CategoryUserCreated:         GroupAdministrative,
	CategoryUserUpdated:         GroupAdministrative,
	CategoryUserDeleted:         GroupAdministrative,
	CategorySettingsChanged:     GroupAdministrative,
	CategoryPolicyUpdated:       GroupAdministrative,
	CategoryDataExportRequested: GroupAdministrative,

	CategorySecurityIncident:      GroupSecurity,
	CategoryDataBreachDetected:    GroupSecurity,
	CategoryVulnerabilityDetected: GroupSecurity,
	CategorySuspiciousActivity:    GroupSecurity,
	CategoryBruteForceDetected:    GroupSecurity,
	CategoryMalwareDetected:       GroupSecurity,
	CategoryIntrusionAttempt:      GroupSecurity,

	CategorySystemStartup:      GroupSystem,
	CategorySystemShutdown:     GroupSystem,
	CategorySystemConfigChange: GroupSystem,
	CategoryBackupCreated:      GroupSystem,
	CategoryBackupRestored:     GroupSystem,

	CategoryConsentGiven:              GroupCompliance,
	CategoryConsentWithdrawn:          GroupCompliance,
	CategoryAuditLogAccessed:          GroupCompliance,
	CategoryComplianceReportGenerated: GroupCompliance,
	CategoryRetentionPolicyApplied:    GroupCompliance,
	CategoryBreachNotificationSent:    GroupCompliance,
	CategoryCrisisAlertTriggered:      GroupCompliance,
	CategoryContentModerated:          GroupCompliance,

	CategorySessionCreated:            GroupSession,
	CategorySessionExpired:            GroupSession,
	CategorySessionTerminated:         GroupSession,
	CategorySessionTimeout:            GroupSession,
	CategoryConcurrentSessionDetected: GroupSession,
}

// Retention floors in days.
const (
	RetentionGeneralDays  = 2555
	RetentionSecurityDays = 3650
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	_, ok := categoryGroups[c]
	return ok
}

// Group returns the category family, "" for unknown categories.
func (c Category) Group() Group {
	return categoryGroups[c]
}

// MinRetentionDays is the shortest retention the category may carry.
func (c Category) MinRetentionDays() int {
	switch c {
	case CategorySecurityIncident, CategoryDataBreachDetected, CategoryVulnerabilityDetected:
		return RetentionSecurityDays
	default:
		return RetentionGeneralDays
	}
}

// Categories returns every known category. Order is unspecified.
func Categories() []Category {
	out := make([]Category, 0, len(categoryGroups))
	for c := range categoryGroups {
		out = append(out, c)
	}
	return out
}
