package publisher

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter selects destinations using glob patterns
type GlobFilter struct {
	globs []glob.Glob
}

// NewGlobFilter compiles destination patterns. Empty patterns match everything.
func NewGlobFilter(patterns []string) (*GlobFilter, error) {
	filter := &GlobFilter{
		globs: make([]glob.Glob, 0, len(patterns)),
	}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid destination pattern %q: %w", pattern, err)
		}
		filter.globs = append(filter.globs, g)
	}

	return filter, nil
}

// Match returns true if destination matches any configured pattern
func (f *GlobFilter) Match(destination string) bool {
	if len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(destination) {
			return true
		}
	}
	return false
}
