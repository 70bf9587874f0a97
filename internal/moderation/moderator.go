// Package moderation screens chat messages before delivery.
//
// Moderate runs three checks in order: profanity, harmful patterns, PII. The
// first check that matches decides the result; categories are never merged.
// Validator enforces length, attachment, spam and room rules before that.
package moderation

import (
	"regexp"
	"strings"
)

// Category names the check that flagged a message.
type Category string

const (
	CategoryProfanity  Category = "profanity"
	CategoryGrooming   Category = "grooming"
	CategoryHarassment Category = "harassment"
	CategoryPII        Category = "pii"
)

// Severity classifies a flagged message.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Result is the outcome of Moderate. CleanText is the text safe to deliver:
// profanity masked or PII replaced by placeholders. Blocked results must not
// be delivered at all.
type Result struct {
	Flagged   bool     `json:"flagged"`
	Category  Category `json:"category,omitempty"`
	Severity  Severity `json:"severity,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Blocked   bool     `json:"blocked"`
	CleanText string   `json:"cleanText"`
	// Matches lists matched words or PII kinds, never the PII itself.
	Matches []string `json:"matches,omitempty"`
}

type harmfulPattern struct {
	name     string
	category Category
	severity Severity
	re       *regexp.Regexp
}

var harmfulPatterns = []harmfulPattern{
	{"secrecy_request", CategoryGrooming, SeverityHigh,
		regexp.MustCompile(`(?i)\b(?:don'?t|do not)\s+tell\s+(?:your\s+)?(?:parents|mom|dad|anyone|therapist|counselor)\b`)},
	{"image_solicitation", CategoryGrooming, SeverityHigh,
		regexp.MustCompile(`(?i)\b(?:send|share)\s+(?:me\s+)?(?:a\s+|some\s+)?(?:pic|pics|picture|pictures|photo|photos|nudes)\b`)},
	{"age_probe", CategoryGrooming, SeverityHigh,
		regexp.MustCompile(`(?i)\bhow\s+old\s+are\s+you\b`)},
	{"private_meeting", CategoryGrooming, SeverityHigh,
		regexp.MustCompile(`(?i)\b(?:meet|meeting)\s+(?:me\s+)?(?:in\s+person|irl|alone|somewhere\s+private)\b`)},
	{"shared_secret", CategoryGrooming, SeverityHigh,
		regexp.MustCompile(`(?i)\bour\s+(?:little\s+)?secret\b`)},
	{"self_harm_incitement", CategoryHarassment, SeverityHigh,
		regexp.MustCompile(`(?i)\b(?:go\s+)?(?:kill|hurt)\s+yourself\b`)},
	{"insult", CategoryHarassment, SeverityMedium,
		regexp.MustCompile(`(?i)\byou(?:'re|\s+are)\s+(?:so\s+|such\s+)?(?:stupid|worthless|pathetic|disgusting|ugly|a\s+loser|an\s+idiot)\b`)},
	{"exclusion", CategoryHarassment, SeverityMedium,
		regexp.MustCompile(`(?i)\bnobody\s+(?:likes|wants|cares\s+about)\s+you\b`)},
}

// Moderator runs the ordered content checks.
type Moderator struct {
	profanity *ProfanityFilter
	pii       *PIIRedactor
}

// NewModerator creates a Moderator with the built-in word list and patterns.
func NewModerator() *Moderator {
	return &Moderator{
		profanity: NewProfanityFilter(),
		pii:       NewPIIRedactor(),
	}
}

// Profanity returns the filter used by the moderator, shared with room rules.
func (m *Moderator) Profanity() *ProfanityFilter {
	return m.profanity
}

// Moderate checks text in order profanity, harmful pattern, PII and stops at
// the first match.
func (m *Moderator) Moderate(text string) Result {
	if clean, words := m.profanity.Clean(text); len(words) > 0 {
		return Result{
			Flagged:   true,
			Category:  CategoryProfanity,
			Severity:  SeverityLow,
			Reason:    "Message contains inappropriate language",
			CleanText: clean,
			Matches:   words,
		}
	}

	for _, p := range harmfulPatterns {
		if p.re.MatchString(text) {
			return Result{
				Flagged:  true,
				Category: p.category,
				Severity: p.severity,
				Reason:   harmfulReason(p.category),
				Blocked:  true,
				Matches:  []string{p.name},
			}
		}
	}

	if redacted, kinds := m.pii.Redact(text); len(kinds) > 0 {
		return Result{
			Flagged:   true,
			Category:  CategoryPII,
			Severity:  SeverityMedium,
			Reason:    "Personal information was removed to protect your privacy",
			CleanText: redacted,
			Matches:   kinds,
		}
	}

	return Result{CleanText: text}
}

func harmfulReason(c Category) string {
	if c == CategoryGrooming {
		return "Message was blocked because it may put a community member at risk"
	}
	return "Message was blocked because it may be hurtful to others"
}

// ProfanityFilter matches whole words from a closed list.
type ProfanityFilter struct {
	re *regexp.Regexp
}

var profanityWords = []string{
	"fuck", "fucking", "fucked", "fucker",
	"shit", "shitty", "bullshit",
	"bitch", "bitches",
	"asshole", "bastard",
	"damn", "goddamn",
	"crap", "dick", "piss", "pissed",
	"slut", "whore",
}

// NewProfanityFilter compiles the built-in word list.
func NewProfanityFilter() *ProfanityFilter {
	return NewProfanityFilterWords(profanityWords)
}

// NewProfanityFilterWords compiles a custom word list.
func NewProfanityFilterWords(words []string) *ProfanityFilter {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return &ProfanityFilter{re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)}
}

// Contains reports whether text has any listed word.
func (f *ProfanityFilter) Contains(text string) bool {
	return f.re.MatchString(text)
}

// Clean masks every listed word with asterisks and returns the distinct
// lower-cased words found, in order of first appearance.
func (f *ProfanityFilter) Clean(text string) (string, []string) {
	var found []string
	seen := map[string]bool{}
	clean := f.re.ReplaceAllStringFunc(text, func(w string) string {
		lw := strings.ToLower(w)
		if !seen[lw] {
			seen[lw] = true
			found = append(found, lw)
		}
		return strings.Repeat("*", len(w))
	})
	return clean, found
}
