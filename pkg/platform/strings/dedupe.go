// Package strings cleans lists of field ids, such as the mismatched
// identifiers a remote backend reports.
package strings

import (
	"slices"
	"strings"
)

// DedupeAndTrim trims each id and drops blanks and repeats, keeping the
// first occurrence order. A nil input stays nil.
func DedupeAndTrim(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SortedUnique is DedupeAndTrim with a stable sorted order, for logging and
// audit reasons that should not depend on map iteration.
func SortedUnique(ids []string) []string {
	out := DedupeAndTrim(ids)
	slices.Sort(out)
	return out
}
