package git

import (
	"path/filepath"
	"strings"
)

// SourceFilter recognizes source-code files by extension
type SourceFilter struct {
	extensions map[string]struct{}
}

// NewSourceFilter builds a filter from extensions such as ".go". Matching is
// case insensitive.
func NewSourceFilter(extensions []string) SourceFilter {
	f := SourceFilter{extensions: make(map[string]struct{}, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions[ext] = struct{}{}
	}
	return f
}

// Match reports whether path has a recognized extension
func (f SourceFilter) Match(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	_, ok := f.extensions[ext]
	return ok
}
