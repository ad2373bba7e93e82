package ignore

import (
	"errors"
	"fmt"
	pathpkg "path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// compiledPattern is a single parsed gitignore-style pattern.
type compiledPattern struct {
	// negated indicates that a match un-ignores rather than ignores.
	negated bool
	// directoryOnly indicates the pattern should only match
	// directories ("dir/" syntax).
	directoryOnly bool
	// matchLeaf indicates the pattern should also be matched against a
	// path's basename, for slash-free patterns that should match at any
	// depth ("name" syntax).
	matchLeaf bool
	// pattern is the glob pattern to evaluate, with doublestar's "**"
	// supported for matching any number of path segments.
	pattern string
	// protectedSource marks a pattern as coming from the always-on
	// protected set rather than user-supplied patterns.
	protectedSource bool
}

// newPatternFrom validates and parses a single pattern line. protected
// marks the pattern as belonging to the always-on protected set.
func newPatternFrom(raw string, protected bool) (compiledPattern, error) {
	if len(raw) == 0 {
		return compiledPattern{}, errors.New("empty ignore pattern")
	}

	pattern := raw
	var negated bool
	if pattern[0] == '!' {
		negated = true
		pattern = pattern[1:]
	}
	if pattern == "" {
		return compiledPattern{}, errors.New("negated empty ignore pattern")
	}

	pattern = cleanPreservingTrailingSlash(pattern)

	if pattern == "/" {
		return compiledPattern{}, errors.New("root pattern not allowed")
	} else if pattern == "//" {
		return compiledPattern{}, errors.New("root directory pattern not allowed")
	}

	var absolute bool
	if pattern[0] == '/' {
		absolute = true
		pattern = pattern[1:]
	}

	var directoryOnly bool
	if pattern[len(pattern)-1] == '/' {
		directoryOnly = true
		pattern = pattern[:len(pattern)-1]
	}

	containsSlash := strings.IndexByte(pattern, '/') >= 0

	if _, err := doublestar.Match(pattern, "a"); err != nil {
		return compiledPattern{}, fmt.Errorf("unable to validate ignore pattern %q: %w", raw, err)
	}

	return compiledPattern{
		negated:         negated,
		directoryOnly:   directoryOnly,
		matchLeaf:       !absolute && !containsSlash,
		pattern:         pattern,
		protectedSource: protected,
	}, nil
}

// matches reports whether the pattern matches the given path.
func (p compiledPattern) matches(path string, directory bool) bool {
	if p.ancestorMatches(path) {
		return true
	}

	if p.directoryOnly && !directory {
		return false
	}

	if match, _ := doublestar.Match(p.pattern, path); match {
		return true
	}

	if p.matchLeaf && path != "" {
		if match, _ := doublestar.Match(p.pattern, pathpkg.Base(path)); match {
			return true
		}
	}

	return false
}

// ancestorMatches reports whether some proper ancestor directory of
// path matches this pattern. A pattern that matches a directory always
// excludes everything beneath it, whether or not it was written with a
// trailing slash: ".git" must exclude "vendor/dep/.git/HEAD" exactly as
// ".git/" would, the way real gitignore (and matching a directory by
// leaf name at any depth) behaves.
func (p compiledPattern) ancestorMatches(path string) bool {
	for i := 0; i < len(path); i++ {
		if path[i] != '/' {
			continue
		}
		ancestor := path[:i]
		if match, _ := doublestar.Match(p.pattern, ancestor); match {
			return true
		}
		if p.matchLeaf {
			if match, _ := doublestar.Match(p.pattern, pathpkg.Base(ancestor)); match {
				return true
			}
		}
	}
	return false
}
