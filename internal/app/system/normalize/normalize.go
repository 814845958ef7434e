// Package normalize provides canonical forms for user-entered identity
// fields, applied once at the write boundary so queries and sort keys never
// have to re-fold.
package normalize

import "strings"

// Email lowercases and trims an email address. Empty or whitespace-only
// input normalizes to the empty string.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims surrounding whitespace but preserves case; display names are
// folded separately for the case-insensitive index.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Program lowercases a degree program code ("MCA" and "mca" are the same
// cohort everywhere in the system).
func Program(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
