// Package strings holds small string helpers shared by config parsing.
package strings

import (
	"strings"
)

// SplitList splits raw on sep, trims each item and drops empty and repeated
// items. Order of first occurrence is preserved; nil is returned when nothing
// survives.
//
//	SplitList(" a, b,,a ", ",") // []string{"a", "b"}
func SplitList(raw, sep string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, item := range strings.Split(raw, sep) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
