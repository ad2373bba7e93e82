package synchronization

import "github.com/mrsimpson/piddie-sub002/ignore"

// ignoreMatcher adapts *ignore.Matcher with a nil-safe zero value that
// ignores nothing, so a SyncTarget constructed without an explicit
// ignore matcher (e.g. in unit tests that don't care about ignore
// behavior) doesn't need a separate code path.
type ignoreMatcher struct {
	inner *ignore.Matcher
}

// isIgnored reports whether path should be excluded from
// synchronization.
func (m *ignoreMatcher) isIgnored(path string, directory bool) bool {
	if m == nil || m.inner == nil {
		return false
	}
	return m.inner.IsIgnored(path, directory)
}
