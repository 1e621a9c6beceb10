package service

import "strings"

// CanonicalizeEmail normalizes an email address for uniqueness checks and
// lookups.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
