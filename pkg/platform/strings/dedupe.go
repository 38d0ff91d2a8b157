// Package strings provides small slice helpers used when normalising input.
package strings

import (
	"strings"
)

// DedupeAndTrimLower normalises a configured list (trim, lowercase), drops
// blanks and keeps the first occurrence of each entry.
//
//	DedupeAndTrimLower([]string{" Low", "contested ", "LOW", ""})
//	// Returns: []string{"low", "contested"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if n := strings.ToLower(strings.TrimSpace(v)); n != "" {
			out = append(out, n)
		}
	}
	return Dedupe(out)
}

// Dedupe keeps the first occurrence of every element, preserving order.
// Zero values are kept like any other value.
func Dedupe[T comparable](values []T) []T {
	if len(values) == 0 {
		return values
	}
	seen := make(map[T]struct{}, len(values))
	result := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
