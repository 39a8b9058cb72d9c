// Package match selects bulk transfer items by key pattern, size and
// modification time.
//
// Patterns are doublestar globs evaluated against an item's key relative to
// the transfer target, so "**/*.csv" selects every CSV below a prefix no
// matter how deep.
package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates include and exclude patterns against object keys.
//
// An empty include list matches every key. Excludes win over includes.
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes []string
	excludes []string
}

// Errors returned when building a Selector.
var (
	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidSize is returned for unparseable or inverted size bounds.
	ErrInvalidSize = errors.New("invalid size value")

	// ErrInvalidDate is returned for unparseable or inverted date bounds.
	ErrInvalidDate = errors.New("invalid date value")

	// ErrInvalidRegex is returned when KeyRegex does not compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// NewMatcher validates the patterns and returns a Matcher.
func NewMatcher(includes, excludes []string) (*Matcher, error) {
	for _, list := range [][]string{includes, excludes} {
		for _, p := range list {
			if !doublestar.ValidatePattern(p) {
				return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
			}
		}
	}
	return &Matcher{
		includes: append([]string(nil), includes...),
		excludes: append([]string(nil), excludes...),
	}, nil
}

// Match reports whether key passes the patterns. Keys are matched as-is;
// object keys are opaque and may contain any character.
func (m *Matcher) Match(key string) bool {
	if len(m.includes) > 0 && !matchAny(m.includes, key) {
		return false
	}
	return !matchAny(m.excludes, key)
}

// IncludePatterns returns the include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

func matchAny(patterns []string, key string) bool {
	for _, p := range patterns {
		// Patterns were validated at construction time.
		if ok, err := doublestar.Match(p, key); err == nil && ok {
			return true
		}
	}
	return false
}
