package utils

import (
	"regexp"
	"strings"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	codePattern  = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,31}$`)
)

// SanitizeText trims s and removes control characters other than tab and newline
func SanitizeText(s string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(s, ""))
}

// NormalizeCode upper-cases a short identifier such as a supplier code and
// reports whether it is well formed (letters, digits, '-' or '_', at most 32).
func NormalizeCode(s string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(s))
	return code, codePattern.MatchString(code)
}
