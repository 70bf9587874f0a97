package moderation

import (
	"net/url"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`)

// ExtractURLs returns the links in text in order of appearance.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

var defaultBlockedHosts = []string{
	"bit.ly",
	"tinyurl.com",
	"goo.gl",
	"t.co",
	"ow.ly",
	"is.gd",
	"buff.ly",
	"adf.ly",
	"cutt.ly",
	"rb.gy",
}

var defaultPhishingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:login|signin|verify|account|secure|update|support)[-.](?:paypal|apple|microsoft|google|amazon|bank|netflix)`),
	regexp.MustCompile(`(?i)(?:paypal|apple|microsoft|google|amazon|netflix)[-.](?:login|verify|secure|account|support)`),
	regexp.MustCompile(`(?i)^xn--|\.xn--`),
	regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}$`),
	regexp.MustCompile(`(?i)free[-.]?(?:gift|prize|meds|pills)`),
}

// LinkChecker flags URL shorteners and hosts that look like phishing.
type LinkChecker struct {
	blockedHosts []string
	patterns     []*regexp.Regexp
}

func NewLinkChecker() *LinkChecker {
	return &LinkChecker{blockedHosts: defaultBlockedHosts, patterns: defaultPhishingPatterns}
}

// NewLinkCheckerWith adds hosts to the built-in block list.
func NewLinkCheckerWith(extraHosts ...string) *LinkChecker {
	c := NewLinkChecker()
	c.blockedHosts = append(slices.Clone(c.blockedHosts), extraHosts...)
	return c
}

// Suspicious reports whether raw points at a blocked host or a phishing-like host.
// Links that cannot be parsed are suspicious.
func (c *LinkChecker) Suspicious(raw string) bool {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return true
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, blocked := range c.blockedHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	for _, p := range c.patterns {
		if p.MatchString(host) {
			return true
		}
	}
	return false
}

// longestRun returns the length of the longest run of one repeated character,
// ignoring whitespace.
func longestRun(text string) int {
	longest, run := 0, 0
	var prev rune
	for _, r := range text {
		if unicode.IsSpace(r) {
			run, prev = 0, 0
			continue
		}
		if r == prev {
			run++
		} else {
			run, prev = 1, r
		}
		longest = max(longest, run)
	}
	return longest
}

func letterCounts(text string) (upper, letters int) {
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return upper, letters
}
