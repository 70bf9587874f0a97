// Package strings parses comma-separated lists from environment variables and
// query parameters.
package strings

import "strings"

// SplitList splits each value on commas, trims the parts and drops empty and
// repeated entries. Order of first appearance is kept. Repeated query keys and
// comma-separated values therefore parse the same way.
func SplitList(values ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range values {
		for part := range strings.SplitSeq(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
