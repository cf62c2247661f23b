package sanitize

import (
	"sort"
	"strings"
)

// Filter drops lines containing any of its noise patterns.
type Filter struct {
	patterns []string
}

// NewFilter returns a Filter for the given substrings. Empty patterns are ignored.
func NewFilter(patterns []string) Filter {
	kept := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return Filter{patterns: kept}
}

// Keep reports whether line should reach the operator and the log.
func (f Filter) Keep(line string) bool {
	for _, p := range f.patterns {
		if strings.Contains(line, p) {
			return false
		}
	}
	return true
}

// EnvNames returns the sorted names of environ entries ("NAME=value") that
// start with one of prefixes. Values are never returned.
func EnvNames(environ []string, prefixes []string) []string {
	seen := make(map[string]struct{})
	for _, entry := range environ {
		name, _, _ := strings.Cut(entry, "=")
		if name == "" {
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				seen[name] = struct{}{}
				break
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
