package models

import "strings"

// keyEscaper neutralises the segment delimiter and whitespace so an
// identifier such as "10.0.0.1:post_message" cannot address another
// counter.
var keyEscaper = strings.NewReplacer(":", "_", " ", "_", "\n", "_")

// Key builds the counter key "<scope>:<identifier>:<action>".
func Key(scope Scope, identifier, action string) string {
	return string(scope) + ":" + keyEscaper.Replace(identifier) + ":" + keyEscaper.Replace(action)
}
