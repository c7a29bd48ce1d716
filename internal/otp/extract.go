// Package otp extracts one-time passcodes from raw SMS text and normalizes
// the phone numbers they arrive on.
package otp

import (
	"regexp"
	"strings"
)

// codePatterns are tried in order; the first match wins. Longer codes go
// first so a 6-digit code is never reported as its 4-digit prefix. The
// 8-digit form is rare and sits last to keep the common orderings stable.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{6}\b`),
	regexp.MustCompile(`\b\d{4}\b`),
	regexp.MustCompile(`\b\d{3}-\d{3}\b`),
	regexp.MustCompile(`\b\d{8}\b`),
}

// Extract returns the first plausible OTP code found in message.
// Hyphenated codes are returned with the hyphen stripped. The second return
// is false when the message carries no recognizable code; that is not an
// error, the message is simply not an OTP yet.
func Extract(message string) (string, bool) {
	for _, pat := range codePatterns {
		if m := pat.FindString(message); m != "" {
			return strings.ReplaceAll(m, "-", ""), true
		}
	}
	return "", false
}
