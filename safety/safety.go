// Package safety provides the input/output gate applied around every model
// call: PII masking, prompt-injection detection, and banned-output filtering.
// All functions are pure text transforms or predicates.
package safety

import "regexp"

var (
	emailPattern = regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.[a-zA-Z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b(?:\+?1[-.\s]?)?(?:\(\d{3}\)|\d{3})[-.\s]?\d{3}[-.\s]?\d{4}\b`)
)

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+all\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)forget\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)system\s*prompt`),
	regexp.MustCompile(`(?i)jailbreak`),
}

var bannedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmalware\b`),
	regexp.MustCompile(`(?i)\bhack\b`),
	regexp.MustCompile(`(?i)\bexploit\b`),
}

// MaskPII replaces email-like and phone-like substrings with fixed
// placeholder tokens. Masking already-masked text is a no-op.
func MaskPII(text string) string {
	if text == "" {
		return text
	}
	text = emailPattern.ReplaceAllString(text, "[EMAIL]")
	text = phonePattern.ReplaceAllString(text, "[PHONE]")
	return text
}

// DetectPromptInjection reports whether text matches a known jailbreak or
// instruction-override phrase. Heuristic: false negatives are expected.
func DetectPromptInjection(text string) bool {
	if text == "" {
		return false
	}
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// FilterOutput reports whether text contains banned content and must not be
// returned to the caller.
func FilterOutput(text string) bool {
	if text == "" {
		return false
	}
	for _, pattern := range bannedPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
