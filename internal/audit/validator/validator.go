// Package validator checks audit events against the base schema and the
// category-specific variant schema.
package validator

import (
	"fmt"
	"net/http"
	"strings"

	"haven/internal/audit/models"
)

// FieldError names a failing field and the rule it broke. It never carries the
// field's value, so validation failures can be logged without leaking PHI.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError collects every failing field for one event.
type ValidationError struct {
	Kind   models.DetailKind
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Rule)
	}
	return fmt.Sprintf("%s (%s schema): %s", models.ErrInvalidEventStructure, e.Kind, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return models.ErrInvalidEventStructure }

// FieldNames lists the failing field names.
func (e *ValidationError) FieldNames() []string {
	out := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, f.Field)
	}
	return out
}

type collector struct {
	fields []FieldError
}

func (c *collector) add(field, rule string) {
	c.fields = append(c.fields, FieldError{Field: field, Rule: rule})
}

// Validate checks a sealed event. It returns nil or a *ValidationError wrapping
// models.ErrInvalidEventStructure.
func Validate(e *models.AuditEvent) error {
	c := &collector{}
	validateBase(c, e)

	kind := e.Details.Kind()
	switch {
	case kind == models.KindAmbiguous:
		c.add("details", "at most one variant may be set")
	case !e.Category.IsValid():
		// reported by base validation
	case !e.Category.AllowsDetails(kind):
		c.add("details", fmt.Sprintf("%s variant not allowed for %s", kind, e.Category))
	case e.Category.RequiredDetails() != models.KindBase && kind != e.Category.RequiredDetails():
		c.add("details", fmt.Sprintf("%s requires %s variant", e.Category, e.Category.RequiredDetails()))
	default:
		switch kind {
		case models.KindPHIAccess:
			validatePHI(c, e.Details.PHI)
		case models.KindAuthentication:
			validateAuthentication(c, e.Details.Authentication)
		case models.KindAdministrative:
			validateAdministrative(c, e.Details.Administrative)
		case models.KindSecurity:
			validateSecurity(c, e.Details.Security)
		}
	}

	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Kind: kind, Fields: c.fields}
}

func validateBase(c *collector, e *models.AuditEvent) {
	if e.EventID.IsNil() {
		c.add("eventId", "required")
	}
	if e.Timestamp.IsZero() {
		c.add("timestamp", "required")
	}
	if !e.Category.IsValid() {
		c.add("category", "unknown value")
	}
	if !e.Outcome.IsValid() {
		c.add("outcome", "unknown value")
	}
	if !e.RiskLevel.IsValid() {
		c.add("riskLevel", "unknown value")
	}
	if e.DataSensitivity != "" && !e.DataSensitivity.IsValid() {
		c.add("dataSensitivity", "unknown value")
	}
	if e.Category.IsValid() && e.RetentionPeriod < e.Category.MinRetentionDays() {
		c.add("retentionPeriod", fmt.Sprintf("below %d day floor", e.Category.MinRetentionDays()))
	}
	if e.UserEmail != "" && !strings.Contains(e.UserEmail, "@") {
		c.add("userEmail", "malformed")
	}
	if e.HTTPMethod != "" && !validMethod(e.HTTPMethod) {
		c.add("httpMethod", "unknown value")
	}
	if e.HTTPStatusCode != 0 && (e.HTTPStatusCode < 100 || e.HTTPStatusCode > 599) {
		c.add("httpStatusCode", "out of range")
	}
	if e.ResponseTime < 0 {
		c.add("responseTime", "negative")
	}
	if e.Checksum == "" {
		c.add("checksum", "required")
	}
	if e.RiskLevel.RequiresSignature() && e.DigitalSignature == "" {
		c.add("digitalSignature", "required for HIGH and CRITICAL risk")
	}
	if !e.RiskLevel.RequiresSignature() && e.DigitalSignature != "" {
		c.add("digitalSignature", "must be absent below HIGH risk")
	}
}

func validMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

func validatePHI(c *collector, d *models.PHIAccessDetails) {
	if len(d.PHIFields) == 0 {
		c.add("details.phi.phiFields", "must list at least one field")
	}
	for _, f := range d.PHIFields {
		if strings.TrimSpace(f) == "" {
			c.add("details.phi.phiFields", "blank field name")
			break
		}
	}
	if !d.AccessPurpose.IsValid() {
		c.add("details.phi.accessPurpose", "unknown value")
	}
}

func validateAuthentication(c *collector, d *models.AuthenticationDetails) {
	if !d.AuthenticationMethod.IsValid() {
		c.add("details.authentication.authenticationMethod", "unknown value")
	}
	if d.AuthenticationMethod == models.AuthMethodMFA && !d.MFAMethod.IsValid() {
		c.add("details.authentication.mfaMethod", "required for MFA")
	}
	if d.AuthenticationMethod != models.AuthMethodMFA && d.MFAMethod != "" && !d.MFAMethod.IsValid() {
		c.add("details.authentication.mfaMethod", "unknown value")
	}
	if d.AttemptCount < 0 {
		c.add("details.authentication.attemptCount", "negative")
	}
}

func validateAdministrative(c *collector, d *models.AdministrativeDetails) {
	if len(d.ChangedFields) == 0 {
		c.add("details.administrative.changedFields", "must list at least one field")
	}
	if len(d.PreviousValues) == 0 && len(d.NewValues) == 0 {
		c.add("details.administrative.values", "previous or new values required")
	}
	for _, f := range d.ChangedFields {
		_, inPrev := d.PreviousValues[f]
		_, inNew := d.NewValues[f]
		if !inPrev && !inNew {
			c.add("details.administrative.changedFields", "field without before/after value")
			break
		}
	}
}

func validateSecurity(c *collector, d *models.SecurityDetails) {
	if !d.ThreatLevel.IsValid() {
		c.add("details.security.threatLevel", "unknown value")
	}
	if !d.InvestigationStatus.IsValid() {
		c.add("details.security.investigationStatus", "unknown value")
	}
	if d.RiskScore < 0 || d.RiskScore > 100 {
		c.add("details.security.riskScore", "must be 0-100")
	}
	if d.AffectedRecords < 0 {
		c.add("details.security.affectedRecords", "negative")
	}
}
