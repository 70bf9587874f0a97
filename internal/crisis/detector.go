// Package crisis flags chat messages that suggest a member may be at risk.
//
// Detection is keyword based and deliberately permissive: phrases are matched
// as case-insensitive substrings so compound phrases such as "kill myself" are
// caught regardless of surrounding punctuation. A second pass weighs recovery
// language against immediacy language and may lower the severity by one tier.
// The detector is one signal among several and never the only safety net.
package crisis

import (
	"math/rand/v2"
	"strings"
)

// Severity is the tier of the strongest matched phrase.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// downgrade lowers the severity one tier, flooring at low.
func (s Severity) downgrade() Severity {
	switch s {
	case SeverityHigh:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

var (
	highRiskPhrases = []string{
		"kill myself",
		"end my life",
		"suicide",
		"suicidal",
		"want to die",
		"better off dead",
		"take my own life",
		"no reason to live",
		"overdose",
		"hang myself",
	}
	mediumRiskPhrases = []string{
		"self harm",
		"self-harm",
		"cutting myself",
		"hurt myself",
		"hopeless",
		"can't go on",
		"cant go on",
		"worthless",
		"give up on everything",
		"nobody would care",
	}
	lowRiskPhrases = []string{
		"depressed",
		"anxious",
		"panic attack",
		"can't sleep",
		"lonely",
		"overwhelmed",
		"stressed",
		"exhausted",
		"sad all the time",
	}

	positiveIndicators = []string{
		"used to",
		"recovered",
		"recovering",
		"recover",
		"therapy helped",
		"getting better",
		"feel better",
		"in the past",
		"coping",
		"grateful",
		"my therapist",
		"doing better",
	}
	negativeIndicators = []string{
		"tonight",
		"right now",
		"planning",
		"plan to",
		"goodbye",
		"final",
		"can't take it anymore",
		"wrote a note",
		"have the pills",
		"no way out",
	}
)

// Result is the outcome of scanning one message.
type Result struct {
	Detected           bool     `json:"detected"`
	Severity           Severity `json:"severity,omitempty"`
	Triggers           []string `json:"triggers"`
	SuggestedResponse  string   `json:"suggestedResponse,omitempty"`
	RequiresImmediate  bool     `json:"requiresImmediate"`
	PositiveIndicators int      `json:"positiveIndicators"`
	NegativeIndicators int      `json:"negativeIndicators"`
}

// Detector scans free text for crisis language.
type Detector struct {
	pick func(n int) int
}

// Option configures a Detector.
type Option func(*Detector)

// WithPicker replaces the random template choice. pick receives the number of
// templates and returns an index in [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(d *Detector) {
		if pick != nil {
			d.pick = pick
		}
	}
}

// New creates a Detector.
func New(opts ...Option) *Detector {
	d := &Detector{pick: rand.IntN}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect scans text. Matches from every tier are reported as triggers; the
// severity is the highest tier matched, lowered one tier when recovery
// language outweighs immediacy language.
func (d *Detector) Detect(text string) Result {
	lowered := strings.ToLower(text)

	result := Result{Triggers: []string{}}
	tiers := []struct {
		severity Severity
		phrases  []string
	}{
		{SeverityHigh, highRiskPhrases},
		{SeverityMedium, mediumRiskPhrases},
		{SeverityLow, lowRiskPhrases},
	}
	for _, tier := range tiers {
		matched := matchAll(lowered, tier.phrases)
		if len(matched) == 0 {
			continue
		}
		if result.Severity == "" {
			result.Severity = tier.severity
		}
		result.Triggers = append(result.Triggers, matched...)
	}
	if result.Severity == "" {
		return result
	}

	result.Detected = true
	result.PositiveIndicators = len(matchAll(lowered, positiveIndicators))
	result.NegativeIndicators = len(matchAll(lowered, negativeIndicators))

	positiveContext := result.PositiveIndicators > result.NegativeIndicators
	if positiveContext {
		result.Severity = result.Severity.downgrade()
	}
	result.RequiresImmediate = result.Severity == SeverityHigh && !positiveContext
	result.SuggestedResponse = d.suggest(result.Severity)
	return result
}

func (d *Detector) suggest(severity Severity) string {
	templates := responseTemplates[severity]
	if len(templates) == 0 {
		return ""
	}
	return templates[d.pick(len(templates))]
}

func matchAll(lowered string, phrases []string) []string {
	var matched []string
	for _, phrase := range phrases {
		if strings.Contains(lowered, phrase) {
			matched = append(matched, phrase)
		}
	}
	return matched
}
