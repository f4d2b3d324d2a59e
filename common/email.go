package common

import "strings"

// NormalizeEmail is the only equality key for user-entered emails.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailsEqual compares two emails after normalization.
func EmailsEqual(a, b string) bool {
	return NormalizeEmail(a) == NormalizeEmail(b)
}
