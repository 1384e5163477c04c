package indexer

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter matches slash-separated paths relative to a root against include and exclude
// patterns. An empty include list matches everything.
type Filter struct {
	includes []string
	excludes []string
}

// NewFilter validates the patterns and returns a Filter.
func NewFilter(includes, excludes []string) (*Filter, error) {
	for _, p := range append(append([]string(nil), includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	return &Filter{includes: includes, excludes: excludes}, nil
}

// PatternError reports a malformed glob pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string { return "invalid pattern: " + e.Pattern }

// Match reports whether rel (relative to the root) is included and not excluded.
func (f *Filter) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if f.Excluded(rel) {
		return false
	}
	if len(f.includes) == 0 {
		return true
	}
	return matchAny(f.includes, rel)
}

// Excluded reports whether rel matches an exclude pattern. Directories should be passed
// with a trailing slash so patterns like "archive/**" prune them.
func (f *Filter) Excluded(rel string) bool {
	return matchAny(f.excludes, filepath.ToSlash(rel))
}

// Recursive reports whether any include pattern can match below the root's top level.
func (f *Filter) Recursive() bool {
	if len(f.includes) == 0 {
		return true
	}
	for _, p := range f.includes {
		if strings.Contains(p, "/") || strings.Contains(p, "**") {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
