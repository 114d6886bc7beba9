package migration

import (
	"path"
)

// Matcher selects entries by path
type Matcher interface {
	Match(path string) bool
}

// MatcherFunc adapts a function to a Matcher
type MatcherFunc func(path string) bool

// Match implements Matcher
func (f MatcherFunc) Match(p string) bool {
	return f(p)
}

// GlobMatcher matches slash separated entry paths against a shell pattern
// as understood by path.Match. A malformed pattern matches nothing.
func GlobMatcher(pattern string) Matcher {
	return MatcherFunc(func(p string) bool {
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	})
}
