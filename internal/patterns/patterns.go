// Package patterns converts glob-style include/exclude patterns into a
// matching predicate for URLs.
package patterns

import (
	"regexp"
	"strings"
	"sync"
)

// Pattern is one configured glob pattern; Enabled mirrors a per-entry
// toggle from the site's discovery settings.
type Pattern struct {
	Glob    string
	Enabled bool
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*regexp.Regexp)
)

// compile translates a glob pattern to an anchored regular expression:
// `*` matches any run of characters, `?` matches exactly one character,
// every other regex metacharacter is escaped literally.
func compile(glob string) *regexp.Regexp {
	cacheMu.RLock()
	if re, ok := cache[glob]; ok {
		cacheMu.RUnlock()
		return re
	}
	cacheMu.RUnlock()

	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re := regexp.MustCompile(b.String())

	cacheMu.Lock()
	cache[glob] = re
	cacheMu.Unlock()

	return re
}

// Matches reports whether url matches the given glob pattern.
func Matches(url, glob string) bool {
	return compile(glob).MatchString(url)
}

// MatchesAny reports whether url matches any pattern in the list,
// returning true on the first match.
func MatchesAny(url string, pats []Pattern) bool {
	for _, p := range pats {
		if Matches(url, p.Glob) {
			return true
		}
	}
	return false
}

// ShouldInclude implements the spec's precedence rule: exclude always
// wins; an empty include list means everything not excluded passes;
// otherwise at least one enabled include pattern must match.
func ShouldInclude(url string, include, exclude []Pattern) bool {
	for _, p := range exclude {
		if Matches(url, p.Glob) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, p := range include {
		if p.Enabled && Matches(url, p.Glob) {
			return true
		}
	}
	return false
}

// StringsToPatterns wraps a plain glob-string slice as enabled Patterns,
// for callers that don't need the per-entry enable toggle.
func StringsToPatterns(globs []string) []Pattern {
	out := make([]Pattern, 0, len(globs))
	for _, g := range globs {
		out = append(out, Pattern{Glob: g, Enabled: true})
	}
	return out
}
