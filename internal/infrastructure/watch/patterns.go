package watch

import (
	"path/filepath"
)

// DefaultExclude skips hidden files and the partial files browsers and
// editors leave behind while writing.
var DefaultExclude = []string{".*", "*.tmp", "*.part", "*.crdownload", "*.swp", "*~"}

// PatternFilter decides by file name which dropped files are attached.
type PatternFilter struct {
	Include []string
	Exclude []string
}

// NewPatternFilter creates a filter. DefaultExclude always applies in
// addition to exclude.
func NewPatternFilter(include, exclude []string) *PatternFilter {
	return &PatternFilter{
		Include: include,
		Exclude: append(append([]string(nil), DefaultExclude...), exclude...),
	}
}

// Matches reports whether the base name of path passes the filter. With
// include patterns set, at least one must match.
func (f *PatternFilter) Matches(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range f.Exclude {
		if matched, _ := filepath.Match(pattern, base); matched {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
