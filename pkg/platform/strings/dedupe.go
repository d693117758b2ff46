// Package strings holds small list helpers shared by config parsing and
// token issuance.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every value and keeps the first occurrence of each
// non-empty one, in order. It returns nil when nothing is left.
func DedupeAndTrim(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma separated setting such as a broker list.
func SplitList(s string) []string {
	return DedupeAndTrim(strings.Split(s, ","))
}
