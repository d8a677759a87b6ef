// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrimLower removes duplicates and empty strings from a slice,
// trimming and lowercasing each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  IN_REVIEW ", "blocked", "in_review", ""})
//	// Returns: []string{"in_review", "blocked"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits comma-separated query values (repeated params are
// flattened first) and applies DedupeAndTrimLower.
//
// Example:
//
//	SplitList([]string{"submitted,in_review", "Blocked"})
//	// Returns: []string{"submitted", "in_review", "blocked"}
func SplitList(raw []string) []string {
	var parts []string
	for _, r := range raw {
		parts = append(parts, strings.Split(r, ",")...)
	}
	return DedupeAndTrimLower(parts)
}
