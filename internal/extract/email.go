// Package extract pulls contact addresses out of inbound DM replies.
// Deterministic regex extraction runs first; the model-assisted fallback
// only sees messages the regex could not resolve.
package extract

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// "my email is john@x.com", "email: john@x.com" and similar phrasings.
	contextualPattern = regexp.MustCompile(`(?i)e-?mail\s*(?:is|:)?\s*([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`)
)

// Email returns the first address found in text, lowercased.
func Email(text string) (string, bool) {
	if m := contextualPattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1]), true
	}
	if m := emailPattern.FindString(text); m != "" {
		return strings.ToLower(m), true
	}
	return "", false
}
