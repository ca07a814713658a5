package store

import "strings"

// OutcomeKey is the normalized form of an outcome label. It is stored next to
// every label so comparisons never need to case-fold again.
func OutcomeKey(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
