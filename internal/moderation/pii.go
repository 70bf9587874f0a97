package moderation

import "regexp"

// PII kinds reported by Redact.
const (
	PIISSN        = "ssn"
	PIICreditCard = "credit_card"
	PIIPhone      = "phone"
	PIIEmail      = "email"
	PIIAddress    = "address"
)

type piiRule struct {
	kind        string
	placeholder string
	re          *regexp.Regexp
}

// Order matters: SSNs and card numbers are redacted before the looser phone rule sees them.
var piiRules = []piiRule{
	{PIISSN, "[SSN REMOVED]", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PIICreditCard, "[CARD REMOVED]", regexp.MustCompile(`\b\d(?:[ -]?\d){12,15}\b`)},
	{PIIPhone, "[PHONE REMOVED]", regexp.MustCompile(`(?:\+?1[-.\s]?)?(?:\(\d{3}\)|\b\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{PIIEmail, "[EMAIL REMOVED]", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{PIIAddress, "[ADDRESS REMOVED]", regexp.MustCompile(
		`(?i)\b\d{1,5}\s+(?:[A-Za-z0-9]+\s+){1,4}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl)\b\.?`)},
}

// PIIRedactor replaces personal identifiers with bracketed placeholders.
type PIIRedactor struct {
	rules []piiRule
}

func NewPIIRedactor() *PIIRedactor {
	return &PIIRedactor{rules: piiRules}
}

// Redact returns text with every identifier replaced and the kinds found.
func (r *PIIRedactor) Redact(text string) (string, []string) {
	var kinds []string
	for _, rule := range r.rules {
		if !rule.re.MatchString(text) {
			continue
		}
		text = rule.re.ReplaceAllLiteralString(text, rule.placeholder)
		kinds = append(kinds, rule.kind)
	}
	return text, kinds
}

// Detect reports whether text holds any identifier.
func (r *PIIRedactor) Detect(text string) bool {
	for _, rule := range r.rules {
		if rule.re.MatchString(text) {
			return true
		}
	}
	return false
}
