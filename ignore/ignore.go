// Package ignore implements gitignore-style pattern matching over
// root-relative paths, per spec.md §4.2. Matching never blocks a
// caller: a malformed pattern is rejected (and logged) at SetPatterns
// time rather than risk a panic deep inside a later match, so a bad
// pattern can never wedge the synchronization pipeline.
package ignore

import (
	"path"
	"sort"
	"strings"

	"github.com/mrsimpson/piddie-sub002/internal/logging"
)

// protectedPatterns are always-on and not user-editable. At minimum
// they must cover the version-control metadata directory.
var protectedPatterns = []string{".git", ".git/**"}

// Matcher evaluates whether a path should be ignored during
// synchronization. It is not safe for concurrent use while SetPatterns
// is being called; IsIgnored calls may run concurrently with each
// other.
type Matcher struct {
	logger   *logging.Logger
	compiled []compiledPattern
	user     []string
}

// New creates a Matcher with no user patterns set (only the protected
// set is active).
func New(logger *logging.Logger) *Matcher {
	m := &Matcher{logger: logger}
	m.compile(nil)
	return m
}

// SetPatterns replaces the user pattern set. Invalid patterns are
// dropped with a warning rather than rejecting the whole call, since a
// single bad line in a user-edited ignore file shouldn't disable
// ignoring entirely.
func (m *Matcher) SetPatterns(patterns []string) {
	m.compile(patterns)
}

// GetPatterns returns the protected patterns followed by the user
// patterns, in that order.
func (m *Matcher) GetPatterns() []string {
	result := make([]string, 0, len(protectedPatterns)+len(m.user))
	result = append(result, protectedPatterns...)
	result = append(result, m.user...)
	return result
}

// compile parses and stores the protected patterns followed by the
// supplied user patterns.
func (m *Matcher) compile(user []string) {
	compiled := make([]compiledPattern, 0, len(protectedPatterns)+len(user))
	for _, raw := range protectedPatterns {
		p, err := newPatternFrom(raw, true)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn(err)
			}
			continue
		}
		compiled = append(compiled, p)
	}
	for _, raw := range user {
		p, err := newPatternFrom(raw, false)
		if err != nil {
			if m.logger != nil {
				m.logger.Warn(err)
			}
			continue
		}
		compiled = append(compiled, p)
	}

	m.compiled = compiled
	m.user = append([]string(nil), user...)
}

// IsIgnored reports whether path should be ignored. path is
// root-relative; any leading slash is stripped.
func (m *Matcher) IsIgnored(p string, directory bool) bool {
	p = strings.TrimPrefix(p, "/")

	// Later patterns take precedence, matching gitignore semantics,
	// so a user pattern can re-include something an earlier user
	// pattern excluded. A path matched by a protected pattern is
	// ignored at once, so user patterns can never override it.
	result := false
	for _, pattern := range m.compiled {
		if !pattern.matches(p, directory) {
			continue
		}
		if pattern.protectedSource {
			// Protected patterns are always-on; a negated protected
			// pattern would be a contradiction in terms, so we simply
			// never allow the protected set to be un-ignored.
			return true
		}
		result = !pattern.negated
	}
	return result
}

// cleanPreservingTrailingSlash is a variant of path.Clean that preserves
// a trailing slash, which is semantically significant for gitignore
// directory-only patterns.
func cleanPreservingTrailingSlash(p string) string {
	var needsTrailingSlash bool
	if l := len(p); l > 1 {
		needsTrailingSlash = p[l-1] == '/'
	}
	cleaned := path.Clean(p)
	if needsTrailingSlash {
		return cleaned + "/"
	}
	return cleaned
}

// SortedPatterns returns a copy of patterns sorted for stable display
// (e.g. in CLI output), without affecting matching order.
func SortedPatterns(patterns []string) []string {
	result := append([]string(nil), patterns...)
	sort.Strings(result)
	return result
}
